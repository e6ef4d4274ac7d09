package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	corsAllowHeaders = "Content-Type, Authorization, " + AdminTokenHeader + ", Accept, Origin, Cache-Control, X-Requested-With"
	corsAllowMethods = "GET, POST, OPTIONS"
	corsMaxAge       = "600"
)

// respostas geradas pelo próprio gateway; respostas encaminhadas preservam os
// cabeçalhos do upstream
var adminResponseHeaders = map[string]string{
	"X-Frame-Options":              "DENY",
	"X-Content-Type-Options":       "nosniff",
	"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
	"Strict-Transport-Security":    "max-age=31536000; includeSubDomains",
	"Referrer-Policy":              "no-referrer",
	"Cross-Origin-Resource-Policy": "same-origin",
	"Cache-Control":                "no-store",
	"Server":                       "FastGate",
}

// SecurityMiddleware aplica cabeçalhos de segurança e CORS na API administrativa
type SecurityMiddleware struct {
	origins   []string
	anyOrigin bool
	logger    *zap.Logger
}

// NewSecurityMiddleware cria o middleware. Sem origens configuradas, ou com
// "*", qualquer origem é aceita.
func NewSecurityMiddleware(allowedOrigins []string, logger *zap.Logger) *SecurityMiddleware {
	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return &SecurityMiddleware{
		origins:   origins,
		anyOrigin: len(origins) == 0 || slices.Contains(origins, "*"),
		logger:    logger,
	}
}

// Headers adiciona os cabeçalhos de segurança
func (m *SecurityMiddleware) Headers() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for k, v := range adminResponseHeaders {
			h.Set(k, v)
		}
		c.Next()
	}
}

// CORS responde preflights antes da autenticação e marca as respostas
// para origens permitidas
func (m *SecurityMiddleware) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		h := c.Writer.Header()

		switch {
		case m.anyOrigin:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(m.origins, origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		case origin != "":
			m.logger.Debug("Origem CORS não permitida", zap.String("origin", origin))
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}

		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Max-Age", corsMaxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}
