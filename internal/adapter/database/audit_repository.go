package database

import (
	"context"
	"fmt"
	"time"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/domain/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditLogRepository implementa repository.AuditLogRepository com gorm
type AuditLogRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	tracer trace.Tracer
}

func NewAuditLogRepository(db *gorm.DB, logger *zap.Logger) repository.AuditLogRepository {
	return &AuditLogRepository{
		db:     db,
		logger: logger,
		tracer: otel.GetTracerProvider().Tracer("fastgate.repository.audit"),
	}
}

func (r *AuditLogRepository) AddAuditLog(ctx context.Context, entry *model.AuditLog) error {
	ctx, span := r.tracer.Start(ctx, "AuditLogRepository.AddAuditLog",
		trace.WithAttributes(
			attribute.String("db.operation", "insert"),
			attribute.String("db.table", model.AuditLog{}.TableName()),
			attribute.String("route.id", entry.RouteID),
		),
	)
	defer span.End()

	if entry.ID == "" {
		entry.ID = model.NewAuditLogID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("falha ao gravar registro de auditoria: %w", err)
	}
	return nil
}

func (r *AuditLogRepository) ListAuditLogs(ctx context.Context, filter model.AuditLogFilter) ([]*model.AuditLog, error) {
	ctx, span := r.tracer.Start(ctx, "AuditLogRepository.ListAuditLogs",
		trace.WithAttributes(
			attribute.String("db.operation", "select"),
			attribute.String("db.table", model.AuditLog{}.TableName()),
		),
	)
	defer span.End()

	query := r.db.WithContext(ctx).Model(&model.AuditLog{})
	if filter.RouteID != "" {
		query = query.Where("route_id = ?", filter.RouteID)
	}
	if filter.Method != "" {
		query = query.Where("method = ?", filter.Method)
	}
	if filter.StatusCode != 0 {
		query = query.Where("status_code = ?", filter.StatusCode)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at <= ?", filter.Until)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	limit = min(limit, maxAuditLimit)

	var entries []*model.AuditLog
	err := query.Order("created_at DESC, id DESC").Offset(max(filter.Offset, 0)).Limit(limit).Find(&entries).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("falha ao consultar auditoria: %w", err)
	}
	span.SetAttributes(attribute.Int("audit.count", len(entries)))
	return entries, nil
}
