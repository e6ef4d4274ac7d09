package middleware

import (
	"strconv"
	"time"

	"github.com/diillson/fastgate/internal/infra/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// proxyPathLabel agrupa as requisições encaminhadas, que não têm rota gin.
// Usar o caminho bruto explodiria a cardinalidade das séries.
const proxyPathLabel = "proxy"

// pathLabel devolve o padrão gin da rota, ou proxyPathLabel para o tráfego
// encaminhado pelo NoRoute
func pathLabel(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return proxyPathLabel
}

func errorClass(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return ""
	}
}

// MetricsMiddleware alimenta os coletores HTTP do APIMetrics
type MetricsMiddleware struct {
	metrics *metrics.APIMetrics
}

func NewMetricsMiddleware(m *metrics.APIMetrics) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: m}
}

func (m *MetricsMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path, method := pathLabel(c), c.Request.Method
		requestSize := int(max(c.Request.ContentLength, 0))

		m.metrics.RequestStarted(path, method)
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		m.metrics.RequestCompleted(path, method, strconv.Itoa(status), time.Since(start), requestSize, max(c.Writer.Size(), 0))
		if class := errorClass(status); class != "" {
			m.metrics.RequestError(path, method, class)
		}
	}
}

// MetricsHandler expõe o registrador Prometheus por HTTP
type MetricsHandler struct {
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

func NewMetricsHandler(gatherer prometheus.Gatherer, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{gatherer: gatherer, logger: logger}
}

// RegisterEndpoint publica o formato de exposição do Prometheus em path
func (h *MetricsHandler) RegisterEndpoint(router gin.IRoutes, path string) {
	handler := promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(h.logger),
		ErrorHandling: promhttp.ContinueOnError,
	})
	router.GET(path, gin.WrapH(handler))
	h.logger.Info("Endpoint de métricas Prometheus registrado", zap.String("path", path))
}
