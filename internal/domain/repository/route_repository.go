package repository

import (
	"context"
	"errors"
	"time"

	"github.com/diillson/fastgate/internal/domain/model"
)

var (
	ErrRouteNotFound = errors.New("route not found")
	ErrRouteExists   = errors.New("route already exists")
)

// RouteRepository define a interface para armazenamento de rotas.
// Listagens seguem a ordem de resolução: prioridade, criação, sequência.
type RouteRepository interface {
	// GetRoutes retorna todas as rotas, ativas ou não
	GetRoutes(ctx context.Context) ([]*model.Route, error)

	// GetActiveRoutes retorna apenas as rotas ativas
	GetActiveRoutes(ctx context.Context) ([]*model.Route, error)

	// GetRouteByID obtém uma rota pelo identificador
	GetRouteByID(ctx context.Context, routeID string) (*model.Route, error)

	// AddRoute persiste uma nova rota e preenche sequência e timestamps
	AddRoute(ctx context.Context, route *model.Route) error

	// UpdateRoute substitui a definição de uma rota existente
	UpdateRoute(ctx context.Context, route *model.Route) error

	// DeleteRoute remove uma rota pelo identificador
	DeleteRoute(ctx context.Context, routeID string) error

	// SetRouteActive altera apenas o estado de ativação
	SetRouteActive(ctx context.Context, routeID string, active bool) error

	// UpdateMetrics acumula os contadores de uso de uma rota
	UpdateMetrics(ctx context.Context, routeID string, responseTime time.Duration, failed bool) error
}
