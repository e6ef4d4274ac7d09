package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/diillson/fastgate/internal/adapter/database"
	handler "github.com/diillson/fastgate/internal/adapter/http"
	"github.com/diillson/fastgate/internal/adapter/proxy"
	"github.com/diillson/fastgate/internal/app/route"
	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/engine/router"
	"github.com/diillson/fastgate/internal/engine/tester"
	"github.com/diillson/fastgate/internal/engine/upstream"
	"github.com/diillson/fastgate/internal/infra/metrics"
	"github.com/diillson/fastgate/internal/infra/middleware"
	"github.com/diillson/fastgate/pkg/cache"
	"github.com/diillson/fastgate/pkg/config"
	"github.com/diillson/fastgate/pkg/ratelimit"
	"github.com/diillson/fastgate/pkg/resilience"
	"github.com/diillson/fastgate/pkg/security"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App reúne as dependências do gateway
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	DB           *database.Database
	Cache        cache.Cache
	Registry     *prometheus.Registry
	APIMetrics   *metrics.APIMetrics
	Router       *router.Router
	RouteService *route.Service
	Forwarder    *proxy.Forwarder
	Middleware   *middleware.Middleware

	routeHandler   *handler.RouteHandler
	health         *handler.HealthChecker
	auditHandler   *handler.AuditHandler
	metricsHandler *middleware.MetricsHandler
	redis          *redis.Client
}

// NewApp cria uma nova instância da aplicação com todas as dependências injetadas
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewDatabase(ctx, database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        database.ParseLogLevel(cfg.Database.LogLevel),
		SlowThreshold:   cfg.Database.SlowThreshold,
		SkipMigrations:  cfg.Database.SkipMigrations,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("erro ao inicializar banco de dados: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db}

	// Registrador próprio: os testes podem criar várias instâncias
	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.APIMetrics = metrics.NewAPIMetrics(a.Registry)
	a.metricsHandler = middleware.NewMetricsHandler(a.Registry, logger)

	if err := a.setupCache(ctx); err != nil {
		a.Close()
		return nil, err
	}

	limiter, err := a.setupRateLimiter(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	routeRepo := database.NewRouteRepository(db.DB(), logger)
	a.Router = router.New(logger)

	client := upstream.NewClient(logger,
		upstream.WithBackOff(upstream.ExponentialBackOff(cfg.Proxy.RetryInitialInterval, cfg.Proxy.RetryMaxInterval)),
		upstream.WithMaxBodyBytes(cfg.Proxy.MaxBodyBytes),
		upstream.WithAttemptHook(a.APIMetrics.UpstreamAttempt),
	)

	routeTester := tester.New(routeRepo, client, logger,
		tester.WithReportHook(func(report *model.TestReport) {
			a.APIMetrics.RouteTested(report.Matched, report.Success)
		}),
	)

	a.RouteService = route.NewService(routeRepo, a.Cache, a.Router, routeTester, logger,
		route.WithMetrics(a.APIMetrics),
		route.WithCacheTTL(cfg.Cache.TTL),
	)

	var breakers *resilience.Registry
	if cb := cfg.Proxy.CircuitBreaker; cb.Enabled {
		breakers = resilience.NewRegistry(resilience.CircuitBreakerConfig{
			MaxRequestsFail: cb.MaxFailures,
			Interval:        cb.Interval,
			Timeout:         cb.Timeout,
			MaxRequests:     cb.HalfOpenRequests,
		}, logger, func(name, _, to string) {
			a.APIMetrics.CircuitBreakerStateChanged(name, to == "open")
		})
	}

	auditRepo := database.NewAuditLogRepository(db.DB(), logger)
	var audit proxy.AuditRecorder
	if cfg.Proxy.AuditLog {
		audit = auditRepo
	}

	a.Forwarder = proxy.NewForwarder(a.Router, client, breakers, a.RouteService, audit, a.APIMetrics, logger, proxy.Options{
		ProxiedBy:    cfg.Proxy.ProxiedBy,
		UserAgent:    cfg.Proxy.UserAgent,
		MaxBodyBytes: cfg.Proxy.MaxBodyBytes,
	})

	var keys *security.KeyManager
	if cfg.Admin.JWTSecret != "" {
		keys, err = security.NewKeyManager(cfg.Admin.JWTSecret, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	adminAuth := middleware.NewAdminAuthMiddleware(cfg.Admin.Token, keys, logger)

	var requestMetrics *metrics.APIMetrics
	if cfg.Metrics.Enabled {
		requestMetrics = a.APIMetrics
	}
	a.Middleware = middleware.NewMiddleware(logger, middleware.Options{
		AdminAuth:      adminAuth,
		Metrics:        requestMetrics,
		Limiter:        limiter,
		AllowedOrigins: cfg.Admin.AllowedOrigins,
	})

	a.routeHandler = handler.NewRouteHandler(a.RouteService, a.APIMetrics, logger)
	a.auditHandler = handler.NewAuditHandler(auditRepo, logger)

	var cachePinger handler.Pinger
	if cfg.Cache.Enabled {
		cachePinger = a.Cache
	}
	a.health = handler.NewHealthChecker(a.Router, db, cachePinger, logger)
	if breakers != nil {
		a.health.WithBreakers(breakers)
	}

	if err := a.bootstrapRoutes(ctx); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) setupCache(ctx context.Context) error {
	cfg := a.Config.Cache
	if !cfg.Enabled {
		a.Cache = &cache.NoOpCache{}
		a.Logger.Info("Cache de rotas desabilitado")
		return nil
	}

	switch cfg.Type {
	case "redis":
		client, err := a.redisClient(ctx)
		if err != nil {
			return fmt.Errorf("erro ao conectar ao Redis: %w", err)
		}
		a.Cache = cache.NewRedisCache(client, a.Logger)
	default:
		a.Cache = cache.NewMemoryCache(cfg.TTL, cfg.CleanupInterval, a.APIMetrics.UpdateCacheHitRatio, a.Logger)
	}
	a.Logger.Info("Cache de rotas inicializado", zap.String("type", cfg.Type))
	return nil
}

func (a *App) setupRateLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	cfg := a.Config.RateLimit
	if !cfg.Enabled {
		return nil, nil
	}

	limits := ratelimit.LimitConfig{
		Limit:       cfg.Limit,
		Period:      cfg.Period,
		BurstFactor: cfg.BurstFactor,
	}

	if cfg.Backend == "redis" {
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("erro ao conectar ao Redis para rate limiting: %w", err)
		}
		return ratelimit.NewRedisLimiter(client, limits, a.Logger)
	}
	return ratelimit.NewMemoryLimiter(limits)
}

// redisClient compartilha uma única conexão entre cache e rate limiting
func (a *App) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	r := a.Config.Cache.Redis
	client, err := cache.NewRedisClient(ctx, cache.RedisOptions{
		Address:      r.Address,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		MinIdleConns: r.MinIdleConns,
		MaxRetries:   r.MaxRetries,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
		PoolTimeout:  r.PoolTimeout,
		IdleTimeout:  r.IdleTimeout,
		MaxConnAge:   r.MaxConnAge,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.redis = client
	return client, nil
}

// bootstrapRoutes semeia o arquivo de rotas, se configurado, e publica a
// primeira tabela de rotas
func (a *App) bootstrapRoutes(ctx context.Context) error {
	if path := a.Config.Routes.BootstrapFile; path != "" {
		inputs, err := database.NewRouteFileLoader(a.Logger).Load(path)
		if err != nil {
			return err
		}
		if _, err := a.RouteService.Seed(ctx, inputs); err != nil {
			return fmt.Errorf("erro ao semear rotas: %w", err)
		}
		return nil
	}

	if _, err := a.RouteService.Reload(ctx); err != nil {
		return fmt.Errorf("erro ao carregar tabela de rotas: %w", err)
	}
	return nil
}

// Engine monta o router gin com middlewares, API administrativa e
// encaminhamento
func (a *App) Engine() *gin.Engine {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	a.RegisterRoutes(engine)
	return engine
}

// RegisterRoutes registra todas as rotas no router
func (a *App) RegisterRoutes(engine *gin.Engine) {
	engine.Use(a.Middleware.Recovery())
	if a.Config.Tracing.Enabled {
		engine.Use(a.Middleware.Tracing())
	}
	engine.Use(a.Middleware.Logger())
	engine.Use(a.Middleware.Metrics())
	engine.Use(a.Middleware.IgnoreFavicon())

	if a.Config.Metrics.Enabled {
		a.metricsHandler.RegisterEndpoint(engine, a.Config.Metrics.PrometheusPath)
	}

	a.health.RegisterRoutes(engine)

	admin := engine.Group("/admin")
	admin.Use(a.Middleware.SecurityHeaders(), a.Middleware.CORS(), a.Middleware.AuthenticateAdmin)
	// preflight CORS: respondido pelo middleware antes da autenticação
	admin.OPTIONS("/*path", func(c *gin.Context) {})
	a.routeHandler.RegisterRoutes(admin)
	a.auditHandler.RegisterRoutes(admin)

	// tudo que não pertence ao gateway é encaminhado
	engine.NoRoute(a.Middleware.RateLimit(), a.Forwarder.Handle)
}

// Run atende em srv e recarrega a tabela de rotas periodicamente até ctx ser
// cancelado; então encerra o servidor de forma graciosa
func (a *App) Run(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if srv.TLSConfig != nil {
			a.Logger.Info("Iniciando servidor HTTPS", zap.String("addr", srv.Addr))
			// certificados vazios usam TLSConfig.GetCertificate (autocert)
			err = srv.ListenAndServeTLS(a.Config.Server.CertFile, a.Config.Server.KeyFile)
		} else {
			a.Logger.Info("Iniciando servidor HTTP", zap.String("addr", srv.Addr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("erro no servidor: %w", err)
		}
		return nil
	})

	if interval := a.Config.Routes.RefreshInterval; interval > 0 {
		g.Go(func() error {
			return a.RouteService.Watch(gctx, interval)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("Encerrando servidor...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("erro ao encerrar servidor: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close libera conexões e aguarda as atualizações de uso pendentes
func (a *App) Close() {
	if a.Forwarder != nil {
		done := make(chan struct{})
		go func() {
			a.Forwarder.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			a.Logger.Warn("Atualizações de uso pendentes descartadas no encerramento")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("Erro ao fechar conexão com Redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("Erro ao fechar banco de dados", zap.Error(err))
		}
	}
}
