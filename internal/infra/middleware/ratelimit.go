package middleware

import (
	"strconv"
	"time"

	"github.com/diillson/fastgate/internal/infra/metrics"
	apperrors "github.com/diillson/fastgate/pkg/errors"
	"github.com/diillson/fastgate/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimitMiddleware limita o tráfego encaminhado por IP de origem
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	logger  *zap.Logger
	metrics *metrics.APIMetrics
}

// NewRateLimitMiddleware cria um novo middleware de rate limiting
func NewRateLimitMiddleware(limiter ratelimit.Limiter, metrics *metrics.APIMetrics, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
}

// IPRateLimit limita requisições por IP
func (m *RateLimitMiddleware) IPRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		decision, err := m.limiter.Allow(c.Request.Context(), "ip:"+clientIP)
		if err != nil {
			// em caso de erro, permite a requisição
			m.logger.Error("erro ao verificar rate limit", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(decision.ResetAfter).Unix(), 10))

		if !decision.Allowed {
			retryAfter := max(int(decision.ResetAfter.Seconds()), 1)
			if m.metrics != nil {
				m.metrics.RateLimitExceeded(proxyPathLabel, c.Request.Method, "ip_limit")
			}
			m.logger.Debug("Requisição limitada",
				zap.String("ip", clientIP),
				zap.String("path", c.Request.URL.Path))

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			apiErr := apperrors.TooManyRequests("Taxa de requisições excedida").
				WithDetails(gin.H{"retry_after": retryAfter})
			c.AbortWithStatusJSON(apiErr.Code, apiErr)
			return
		}

		c.Next()
	}
}
