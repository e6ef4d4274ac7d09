package middleware

import (
	"errors"
	"net"
	"os"
	"runtime/debug"
	"syscall"

	apperrors "github.com/diillson/fastgate/pkg/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware converte pânicos em 500 sem derrubar o servidor
type RecoveryMiddleware struct {
	logger *zap.Logger
}

func NewRecoveryMiddleware(logger *zap.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: logger}
}

// Recovery retorna o handler gin
func (m *RecoveryMiddleware) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			// cliente desconectado no meio de uma resposta encaminhada
			if err, ok := rec.(error); ok && brokenPipe(err) {
				m.logger.Debug("Conexão com o cliente interrompida",
					zap.String("path", c.Request.URL.Path),
					zap.Error(err))
				c.Abort()
				return
			}

			fields := []zap.Field{
				zap.Any("panic", rec),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.ByteString("stack", debug.Stack()),
			}
			if routeID := c.GetString("route_id"); routeID != "" {
				fields = append(fields, zap.String("route_id", routeID))
			}
			m.logger.Error("Pânico recuperado", fields...)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			apiErr := apperrors.InternalServer("", nil)
			c.AbortWithStatusJSON(apiErr.Code, apiErr)
		}()

		c.Next()
	}
}

func brokenPipe(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	var sysErr *os.SyscallError
	if errors.As(opErr, &sysErr) {
		return errors.Is(sysErr.Err, syscall.EPIPE) || errors.Is(sysErr.Err, syscall.ECONNRESET)
	}
	return false
}
