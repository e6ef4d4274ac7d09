package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	apperrors "github.com/diillson/fastgate/pkg/errors"
	"github.com/diillson/fastgate/pkg/security"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminTokenHeader carrega o token estático de administração
const AdminTokenHeader = "X-Admin-Token"

// AdminAuthMiddleware protege a API administrativa. Aceita o token estático
// configurado (cabeçalho X-Admin-Token ou parâmetro token) ou um JWT Bearer
// com papel admin.
type AdminAuthMiddleware struct {
	token  []byte
	keys   *security.KeyManager
	logger *zap.Logger
}

// NewAdminAuthMiddleware cria o middleware; keys pode ser nil quando apenas
// o token estático é usado
func NewAdminAuthMiddleware(token string, keys *security.KeyManager, logger *zap.Logger) *AdminAuthMiddleware {
	if token == "" && keys == nil {
		logger.Warn("API administrativa sem credenciais configuradas; todas as requisições serão recusadas")
	}
	return &AdminAuthMiddleware{
		token:  []byte(token),
		keys:   keys,
		logger: logger,
	}
}

// Authenticate verifica as credenciais de administrador
func (m *AdminAuthMiddleware) Authenticate(c *gin.Context) {
	if provided := staticToken(c); provided != "" {
		if len(m.token) > 0 && subtle.ConstantTimeCompare([]byte(provided), m.token) == 1 {
			c.Set("admin_subject", "static-token")
			c.Next()
			return
		}
		m.reject(c, apperrors.Unauthorized("Token de administração inválido", nil))
		return
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		m.reject(c, apperrors.Unauthorized("Credenciais de administração não fornecidas", nil))
		return
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		m.reject(c, apperrors.Unauthorized("Formato inválido do token", nil))
		return
	}
	if m.keys == nil {
		m.reject(c, apperrors.Unauthorized("Autenticação JWT não configurada", nil))
		return
	}

	claims, err := m.keys.VerifyToken(tokenString)
	if err != nil {
		msg := "Token inválido"
		if errors.Is(err, security.ErrTokenExpired) {
			msg = "Token expirado"
		}
		m.reject(c, apperrors.Unauthorized(msg, err))
		return
	}

	if !claims.IsAdmin() {
		m.reject(c, apperrors.Forbidden("Acesso negado: permissão de administrador necessária", nil))
		return
	}

	c.Set("admin_subject", claims.Subject)
	c.Next()
}

func (m *AdminAuthMiddleware) reject(c *gin.Context, apiErr *apperrors.APIError) {
	m.logger.Debug("Acesso administrativo recusado",
		zap.String("path", c.Request.URL.Path),
		zap.String("ip", c.ClientIP()),
		zap.Int("status", apiErr.Code),
		zap.Error(apiErr))
	c.AbortWithStatusJSON(apiErr.Code, apiErr)
}

func staticToken(c *gin.Context) string {
	if token := c.GetHeader(AdminTokenHeader); token != "" {
		return token
	}
	return c.Query("token")
}
