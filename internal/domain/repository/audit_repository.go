package repository

import (
	"context"

	"github.com/diillson/fastgate/internal/domain/model"
)

// AuditLogRepository guarda o histórico de requisições encaminhadas
type AuditLogRepository interface {
	// AddAuditLog persiste um registro, gerando ID e CreatedAt quando vazios
	AddAuditLog(ctx context.Context, entry *model.AuditLog) error

	// ListAuditLogs devolve os registros mais recentes primeiro
	ListAuditLogs(ctx context.Context, filter model.AuditLogFilter) ([]*model.AuditLog, error)
}
