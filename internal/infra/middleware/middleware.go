package middleware

import (
	"net/http"
	"time"

	"github.com/diillson/fastgate/internal/infra/metrics"
	"github.com/diillson/fastgate/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Middleware contém todos os middlewares da aplicação
type Middleware struct {
	logger              *zap.Logger
	adminAuth           *AdminAuthMiddleware
	recoveryMiddleware  *RecoveryMiddleware
	securityMiddleware  *SecurityMiddleware
	tracingMiddleware   *TracingMiddleware
	metricsMiddleware   *MetricsMiddleware
	rateLimitMiddleware *RateLimitMiddleware
}

// Options reúne as dependências opcionais dos middlewares. Metrics e Limiter
// nil desabilitam métricas e rate limiting.
type Options struct {
	AdminAuth      *AdminAuthMiddleware
	Metrics        *metrics.APIMetrics
	Limiter        ratelimit.Limiter
	AllowedOrigins []string
}

// NewMiddleware cria um novo conjunto de middlewares
func NewMiddleware(logger *zap.Logger, opts Options) *Middleware {
	m := &Middleware{
		logger:             logger,
		adminAuth:          opts.AdminAuth,
		recoveryMiddleware: NewRecoveryMiddleware(logger),
		securityMiddleware: NewSecurityMiddleware(opts.AllowedOrigins, logger),
		tracingMiddleware:  NewTracingMiddleware(logger),
	}
	if opts.Metrics != nil {
		m.metricsMiddleware = NewMetricsMiddleware(opts.Metrics)
	}
	if opts.Limiter != nil {
		m.rateLimitMiddleware = NewRateLimitMiddleware(opts.Limiter, opts.Metrics, logger)
	}
	return m
}

// Metrics retorna o middleware de métricas
func (m *Middleware) Metrics() gin.HandlerFunc {
	if m.metricsMiddleware != nil {
		return m.metricsMiddleware.Middleware()
	}
	return passthrough
}

// RateLimit retorna o limitador por IP do tráfego encaminhado
func (m *Middleware) RateLimit() gin.HandlerFunc {
	if m.rateLimitMiddleware != nil {
		return m.rateLimitMiddleware.IPRateLimit()
	}
	return passthrough
}

// AuthenticateAdmin middleware para autenticação de administradores
func (m *Middleware) AuthenticateAdmin(c *gin.Context) {
	m.adminAuth.Authenticate(c)
}

// Recovery middleware para recuperação de pânicos
func (m *Middleware) Recovery() gin.HandlerFunc {
	return m.recoveryMiddleware.Recovery()
}

// IgnoreFavicon responde 204 a /favicon.ico sem consultar a tabela de rotas
func (m *Middleware) IgnoreFavicon() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/favicon.ico" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Logger registra uma linha por requisição. O nível acompanha o status:
// 5xx em error, 4xx em warn e o restante em info.
func (m *Middleware) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if routeID := c.GetString("route_id"); routeID != "" {
			fields = append(fields, zap.String("route_id", routeID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		level := zapcore.InfoLevel
		switch errorClass(status) {
		case "server_error":
			level = zapcore.ErrorLevel
		case "client_error":
			level = zapcore.WarnLevel
		}
		if ce := m.logger.Check(level, "Requisição concluída"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// SecurityHeaders middleware para adicionar cabeçalhos de segurança
func (m *Middleware) SecurityHeaders() gin.HandlerFunc {
	return m.securityMiddleware.Headers()
}

// CORS middleware para configurar CORS
func (m *Middleware) CORS() gin.HandlerFunc {
	return m.securityMiddleware.CORS()
}

// Tracing retorna o middleware de tracing
func (m *Middleware) Tracing() gin.HandlerFunc {
	return m.tracingMiddleware.Middleware()
}

func passthrough(c *gin.Context) {
	c.Next()
}
