package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/domain/repository"
	apperrors "github.com/diillson/fastgate/pkg/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuditHandler expõe a consulta dos registros de auditoria do proxy
type AuditHandler struct {
	repo   repository.AuditLogRepository
	logger *zap.Logger
}

func NewAuditHandler(repo repository.AuditLogRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{repo: repo, logger: logger}
}

func (h *AuditHandler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/audit-logs", h.ListAuditLogs)
}

// ListAuditLogs aceita route_id, method, status_code, since, until (RFC 3339),
// skip e limit. O mais recente vem primeiro.
func (h *AuditHandler) ListAuditLogs(c *gin.Context) {
	filter := model.AuditLogFilter{
		RouteID: c.Query("route_id"),
		Method:  strings.ToUpper(c.Query("method")),
	}

	var err error
	if filter.StatusCode, err = queryInt(c, "status_code", 0); err != nil || filter.StatusCode < 0 {
		h.fail(c, apperrors.BadRequest("Parâmetro 'status_code' inválido", err))
		return
	}
	if filter.Offset, err = queryInt(c, "skip", 0); err != nil || filter.Offset < 0 {
		h.fail(c, apperrors.BadRequest("Parâmetro 'skip' inválido", err))
		return
	}
	filter.Limit, err = queryInt(c, "limit", defaultListLimit)
	if err != nil || filter.Limit < 1 || filter.Limit > maxListLimit {
		h.fail(c, apperrors.BadRequest("Parâmetro 'limit' deve estar entre 1 e 1000", err))
		return
	}
	if filter.Since, err = queryTime(c, "since"); err != nil {
		h.fail(c, apperrors.BadRequest("Parâmetro 'since' inválido", err))
		return
	}
	if filter.Until, err = queryTime(c, "until"); err != nil {
		h.fail(c, apperrors.BadRequest("Parâmetro 'until' inválido", err))
		return
	}

	entries, err := h.repo.ListAuditLogs(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *AuditHandler) fail(c *gin.Context, err error) {
	apiErr := apperrors.FromDomain(err)
	if apiErr.Code >= http.StatusInternalServerError {
		h.logger.Error("Falha ao consultar auditoria", zap.Error(err))
	}
	c.JSON(apiErr.Code, apiErr)
}

func queryTime(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
