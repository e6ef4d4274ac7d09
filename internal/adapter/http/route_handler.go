package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/diillson/fastgate/internal/app/route"
	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/engine/tester"
	"github.com/diillson/fastgate/internal/infra/metrics"
	apperrors "github.com/diillson/fastgate/pkg/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// RouteHandler implementa a API administrativa de rotas
type RouteHandler struct {
	routeService *route.Service
	logger       *zap.Logger
	metrics      *metrics.APIMetrics
}

// NewRouteHandler cria um novo handler de rotas; apiMetrics pode ser nil
func NewRouteHandler(routeService *route.Service, apiMetrics *metrics.APIMetrics, logger *zap.Logger) *RouteHandler {
	return &RouteHandler{
		routeService: routeService,
		logger:       logger,
		metrics:      apiMetrics,
	}
}

// RegisterRoutes monta os endpoints no grupo administrativo
func (h *RouteHandler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/routes", h.ListRoutes)
	admin.POST("/routes", h.CreateRoute)
	admin.POST("/routes/test", h.TestDefinition)
	admin.POST("/routes/reload", h.Reload)
	admin.GET("/routes/:id", h.GetRoute)
	admin.POST("/routes/update/:id", h.UpdateRoute)
	admin.POST("/routes/delete/:id", h.DeleteRoute)
	admin.POST("/routes/:id/toggle", h.ToggleRoute)
	admin.POST("/routes/:id/test", h.TestRoute)
	admin.GET("/metrics", h.GetMetrics)
}

// ListRoutes lista as rotas na ordem de resolução. Aceita is_active, skip e limit.
func (h *RouteHandler) ListRoutes(c *gin.Context) {
	skip, err := queryInt(c, "skip", 0)
	if err != nil || skip < 0 {
		h.fail(c, "list_routes", apperrors.BadRequest("Parâmetro 'skip' inválido", err))
		return
	}
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit < 1 || limit > maxListLimit {
		h.fail(c, "list_routes", apperrors.BadRequest("Parâmetro 'limit' deve estar entre 1 e 1000", err))
		return
	}

	routes, err := h.routeService.ListRoutes(c.Request.Context())
	if err != nil {
		h.fail(c, "list_routes", err)
		return
	}

	if raw, ok := c.GetQuery("is_active"); ok {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(c, "list_routes", apperrors.BadRequest("Parâmetro 'is_active' inválido", err))
			return
		}
		filtered := routes[:0:0]
		for _, r := range routes {
			if r.IsActive == active {
				filtered = append(filtered, r)
			}
		}
		routes = filtered
	}

	if skip >= len(routes) {
		routes = routes[:0]
	} else {
		routes = routes[skip:min(skip+limit, len(routes))]
	}

	c.JSON(http.StatusOK, routes)
}

// GetRoute obtém uma rota pelo id
func (h *RouteHandler) GetRoute(c *gin.Context) {
	r, err := h.routeService.GetRoute(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get_route", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// CreateRoute cadastra uma nova rota
func (h *RouteHandler) CreateRoute(c *gin.Context) {
	var in model.RouteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, "create_route", apperrors.BadRequest("Dados inválidos: "+err.Error(), err))
		return
	}

	created, err := h.routeService.CreateRoute(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "create_route", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateRoute substitui a definição de uma rota
func (h *RouteHandler) UpdateRoute(c *gin.Context) {
	var in model.RouteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, "update_route", apperrors.BadRequest("Dados inválidos: "+err.Error(), err))
		return
	}

	updated, err := h.routeService.UpdateRoute(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, "update_route", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteRoute remove uma rota
func (h *RouteHandler) DeleteRoute(c *gin.Context) {
	if err := h.routeService.DeleteRoute(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete_route", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rota removida com sucesso"})
}

type toggleRequest struct {
	IsActive *bool `json:"is_active"`
}

// ToggleRoute ativa ou desativa uma rota
func (h *RouteHandler) ToggleRoute(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		h.fail(c, "toggle_route", apperrors.BadRequest("Informe o campo 'is_active'", err))
		return
	}

	r, err := h.routeService.ToggleRoute(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		h.fail(c, "toggle_route", err)
		return
	}

	msg := "Rota desativada com sucesso"
	if r.IsActive {
		msg = "Rota ativada com sucesso"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "route": r})
}

// TestRoute testa uma rota persistida com uma requisição sintética
func (h *RouteHandler) TestRoute(c *gin.Context) {
	var in model.TestRequest
	if err := bindOptionalJSON(c, &in); err != nil {
		h.fail(c, "test_route", apperrors.BadRequest("Dados inválidos: "+err.Error(), err))
		return
	}

	report, err := h.routeService.TestRoute(c.Request.Context(), tester.Target{RouteID: c.Param("id")}, in)
	if err != nil {
		h.fail(c, "test_route", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type testDefinitionRequest struct {
	Route *model.RouteInput `json:"route"`
	model.TestRequest
}

// TestDefinition testa uma definição de rota ainda não salva
func (h *RouteHandler) TestDefinition(c *gin.Context) {
	var req testDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "test_route", apperrors.BadRequest("Dados inválidos: "+err.Error(), err))
		return
	}
	if req.Route == nil {
		h.fail(c, "test_route", model.NewValidationError("route", "é obrigatório"))
		return
	}

	report, err := h.routeService.TestRoute(c.Request.Context(), tester.Target{Route: req.Route}, req.TestRequest)
	if err != nil {
		h.fail(c, "test_route", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Reload força a reconstrução da tabela de rotas a partir do armazenamento
func (h *RouteHandler) Reload(c *gin.Context) {
	snap, err := h.routeService.Refresh(c.Request.Context())
	if err != nil {
		h.fail(c, "reload_routes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "Tabela de rotas recarregada",
		"active_routes": snap.Len(),
		"skipped":       snap.Skipped(),
	})
}

// GetMetrics retorna os contadores agregados do tráfego encaminhado
func (h *RouteHandler) GetMetrics(c *gin.Context) {
	summary, err := h.routeService.Summary(c.Request.Context())
	if err != nil {
		h.fail(c, "get_metrics", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *RouteHandler) fail(c *gin.Context, op string, err error) {
	apiErr := apperrors.FromDomain(err)
	if apiErr.Code >= http.StatusInternalServerError {
		h.logger.Error("Falha na operação administrativa",
			zap.String("operation", op),
			zap.Error(err))
		if h.metrics != nil {
			h.metrics.RequestError(c.FullPath(), c.Request.Method, op+"_error")
		}
	}
	c.JSON(apiErr.Code, apiErr)
}

// bindOptionalJSON aceita corpo vazio, mantendo os valores padrão
func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
