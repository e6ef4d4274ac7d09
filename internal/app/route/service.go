package route

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/domain/repository"
	"github.com/diillson/fastgate/internal/engine/matcher"
	"github.com/diillson/fastgate/internal/engine/router"
	"github.com/diillson/fastgate/internal/engine/tester"
	"github.com/diillson/fastgate/internal/infra/metrics"
	"github.com/diillson/fastgate/pkg/cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultCacheTTL = 5 * time.Minute

// Service é o único escritor da tabela de rotas: persiste alterações e
// republica o snapshot do roteador depois de cada uma
type Service struct {
	repo     repository.RouteRepository
	cache    cache.Cache
	router   *router.Router
	tester   *tester.Tester
	metrics  *metrics.APIMetrics
	logger   *zap.Logger
	cacheTTL time.Duration

	lookups singleflight.Group

	reloadMu  sync.Mutex
	requested atomic.Uint64
	applied   uint64
}

// Option configura o Service
type Option func(*Service)

// WithMetrics publica o número de rotas ativas a cada recarga
func WithMetrics(m *metrics.APIMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCacheTTL altera a validade das rotas em cache
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func NewService(repo repository.RouteRepository, cache cache.Cache, rt *router.Router, tst *tester.Tester, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		cache:    cache,
		router:   rt,
		tester:   tst,
		logger:   logger,
		cacheTTL: defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListRoutes retorna todas as rotas na ordem de resolução
func (s *Service) ListRoutes(ctx context.Context) ([]*model.Route, error) {
	return s.repo.GetRoutes(ctx)
}

// GetRoute obtém uma rota pelo id, consultando o cache primeiro
func (s *Service) GetRoute(ctx context.Context, routeID string) (*model.Route, error) {
	var route model.Route

	cacheKey := cache.RouteKey(routeID)
	found, err := s.cache.Get(ctx, cacheKey, &route)
	if err != nil {
		// segue para o repositório
		s.logger.Error("Erro ao buscar rota do cache", zap.String("route_id", routeID), zap.Error(err))
	} else if found {
		return &route, nil
	}

	v, err, _ := s.lookups.Do(routeID, func() (interface{}, error) {
		r, err := s.repo.GetRouteByID(ctx, routeID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, cacheKey, r, s.cacheTTL); err != nil {
			s.logger.Warn("Erro ao armazenar rota no cache", zap.String("route_id", routeID), zap.Error(err))
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Route).Clone(), nil
}

// CreateRoute valida e persiste uma nova rota com id gerado
func (s *Service) CreateRoute(ctx context.Context, in model.RouteInput) (*model.Route, error) {
	route := in.ToRoute()
	route.ID = model.NewRouteID()

	if err := matcher.Validate(route); err != nil {
		return nil, err
	}
	if err := s.repo.AddRoute(ctx, route); err != nil {
		return nil, err
	}

	s.logger.Info("Rota criada",
		zap.String("route_id", route.ID),
		zap.String("match_path", route.MatchPath),
		zap.Int("priority", route.Priority))

	s.reloadAfterWrite(ctx)
	return route, nil
}

// UpdateRoute substitui a definição de uma rota. Id, data de criação e
// contadores de uso são preservados.
func (s *Service) UpdateRoute(ctx context.Context, routeID string, in model.RouteInput) (*model.Route, error) {
	existing, err := s.repo.GetRouteByID(ctx, routeID)
	if err != nil {
		return nil, err
	}

	route := in.ToRoute()
	route.ID = existing.ID
	route.Seq = existing.Seq
	route.CreatedAt = existing.CreatedAt
	route.CallCount = existing.CallCount
	route.ErrorCount = existing.ErrorCount
	route.TotalResponse = existing.TotalResponse
	route.AverageResponseMs = existing.AverageResponseMs
	route.LastCalledAt = existing.LastCalledAt

	if err := matcher.Validate(route); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRoute(ctx, route); err != nil {
		return nil, err
	}

	s.invalidate(ctx, routeID)
	s.logger.Info("Rota atualizada", zap.String("route_id", routeID))

	s.reloadAfterWrite(ctx)
	return route, nil
}

// DeleteRoute remove uma rota
func (s *Service) DeleteRoute(ctx context.Context, routeID string) error {
	if err := s.repo.DeleteRoute(ctx, routeID); err != nil {
		return err
	}

	s.invalidate(ctx, routeID)
	s.logger.Info("Rota removida", zap.String("route_id", routeID))

	s.reloadAfterWrite(ctx)
	return nil
}

// ToggleRoute ativa ou desativa uma rota e devolve o estado resultante
func (s *Service) ToggleRoute(ctx context.Context, routeID string, active bool) (*model.Route, error) {
	if err := s.repo.SetRouteActive(ctx, routeID, active); err != nil {
		return nil, err
	}

	s.invalidate(ctx, routeID)
	s.logger.Info("Estado da rota alterado",
		zap.String("route_id", routeID),
		zap.Bool("is_active", active))

	s.reloadAfterWrite(ctx)
	return s.repo.GetRouteByID(ctx, routeID)
}

// Reload relê as rotas ativas e publica um novo snapshot. Chamadas
// concorrentes são agrupadas: uma leitura iniciada depois do pedido do
// chamador satisfaz o pedido.
func (s *Service) Reload(ctx context.Context) (*router.Snapshot, error) {
	gen := s.requested.Add(1)

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.applied >= gen {
		return s.router.Snapshot(), nil
	}
	target := s.requested.Load()

	routes, err := s.repo.GetActiveRoutes(ctx)
	if err != nil {
		s.logger.Error("Erro ao recarregar rotas", zap.Error(err))
		return nil, err
	}

	snap := s.router.Load(routes)
	s.applied = target
	if s.metrics != nil {
		s.metrics.SetActiveRoutes(snap.Len())
	}
	return snap, nil
}

// Refresh descarta o cache de rotas e relê a tabela do armazenamento.
// Usado quando outra instância pode ter alterado as rotas.
func (s *Service) Refresh(ctx context.Context) (*router.Snapshot, error) {
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Warn("Erro ao limpar cache de rotas", zap.Error(err))
	}
	return s.Reload(ctx)
}

// Seed insere ou substitui as rotas de um arquivo de inicialização.
// Definições inválidas são ignoradas com aviso; falhas de armazenamento
// interrompem a carga.
func (s *Service) Seed(ctx context.Context, inputs []model.RouteInput) (int, error) {
	applied := 0
	for i := range inputs {
		route := inputs[i].ToRoute()
		if route.ID == "" {
			route.ID = model.NewRouteID()
		}
		if err := matcher.Validate(route); err != nil {
			s.logger.Warn("Rota de inicialização inválida ignorada",
				zap.Int("index", i),
				zap.String("route_name", route.Name),
				zap.Error(err))
			continue
		}

		existing, err := s.repo.GetRouteByID(ctx, route.ID)
		switch {
		case errors.Is(err, repository.ErrRouteNotFound):
			err = s.repo.AddRoute(ctx, route)
		case err == nil:
			route.Seq = existing.Seq
			route.CreatedAt = existing.CreatedAt
			err = s.repo.UpdateRoute(ctx, route)
			s.invalidate(ctx, route.ID)
		}
		if err != nil {
			return applied, err
		}
		applied++
	}

	if applied > 0 {
		s.logger.Info("Rotas de inicialização aplicadas", zap.Int("count", applied))
	}
	_, err := s.Reload(ctx)
	return applied, err
}

// TestRoute executa o teste de uma rota persistida ou de uma definição avulsa
func (s *Service) TestRoute(ctx context.Context, target tester.Target, in model.TestRequest) (*model.TestReport, error) {
	return s.tester.Test(ctx, target, in)
}

// RecordUsage acumula os contadores de uso de uma rota encaminhada
func (s *Service) RecordUsage(ctx context.Context, routeID string, responseTime time.Duration, failed bool) {
	if err := s.repo.UpdateMetrics(ctx, routeID, responseTime, failed); err != nil {
		if !errors.Is(err, repository.ErrRouteNotFound) {
			s.logger.Warn("Erro ao atualizar métricas da rota",
				zap.String("route_id", routeID),
				zap.Error(err))
		}
		return
	}
	s.invalidate(ctx, routeID)
}

// Summary combina os contadores do tráfego com o estado da tabela de rotas
func (s *Service) Summary(ctx context.Context) (metrics.SummarySnapshot, error) {
	routes, err := s.repo.GetRoutes(ctx)
	if err != nil {
		return metrics.SummarySnapshot{}, err
	}
	active := s.router.Snapshot().Len()
	if s.metrics == nil {
		return metrics.NewSummary(0).Snapshot(active, len(routes)), nil
	}
	return s.metrics.Summary().Snapshot(active, len(routes)), nil
}

// Watch recarrega a tabela periodicamente até ctx ser cancelado, para que
// alterações feitas por outras instâncias sejam aplicadas
func (s *Service) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("Recarga periódica de rotas falhou", zap.Error(err))
			}
		}
	}
}

// reloadAfterWrite publica a alteração já persistida; uma falha aqui não
// desfaz a escrita e a próxima recarga a aplica
func (s *Service) reloadAfterWrite(ctx context.Context) {
	if _, err := s.Reload(ctx); err != nil {
		s.logger.Error("Rota persistida, mas a tabela de rotas não foi atualizada", zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, routeID string) {
	if err := s.cache.Delete(ctx, cache.RouteKey(routeID)); err != nil {
		s.logger.Warn("Erro ao invalidar cache de rota",
			zap.String("route_id", routeID),
			zap.Error(err))
	}
}
