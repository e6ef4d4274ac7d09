package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracingMiddleware abre um span de servidor por requisição, continuando o
// trace recebido nos cabeçalhos quando houver
type TracingMiddleware struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	logger     *zap.Logger
}

// NewTracingMiddleware usa o provedor e o propagador globais do OpenTelemetry
func NewTracingMiddleware(logger *zap.Logger) *TracingMiddleware {
	return &TracingMiddleware{
		tracer:     otel.Tracer("fastgate.http"),
		propagator: otel.GetTextMapPropagator(),
		logger:     logger,
	}
}

// Middleware retorna o handler gin
func (m *TracingMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request
		ctx := m.propagator.Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		forwarded := c.FullPath() == ""
		name := req.Method + " " + c.FullPath()
		if forwarded {
			name = req.Method + " " + proxyPathLabel
		}

		ctx, span := m.tracer.Start(ctx, name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.target", req.URL.RequestURI()),
				attribute.String("http.host", req.Host),
				attribute.String("http.client_ip", c.ClientIP()),
				attribute.Bool("fastgate.forwarded", forwarded),
			),
		)
		defer span.End()

		c.Request = req.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if routeID := c.GetString("route_id"); routeID != "" {
			span.SetAttributes(attribute.String("fastgate.route_id", routeID))
		}
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last())
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
