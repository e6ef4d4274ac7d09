package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// APIMetrics gerencia as métricas do gateway
type APIMetrics struct {
	requestCounter     *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	requestSize        *prometheus.SummaryVec
	responseSize       *prometheus.SummaryVec
	activeRequests     *prometheus.GaugeVec
	errorsTotal        *prometheus.CounterVec
	proxiedTotal       *prometheus.CounterVec
	proxyDuration      *prometheus.HistogramVec
	upstreamAttempts   *prometheus.CounterVec
	upstreamDuration   *prometheus.HistogramVec
	routeTests         *prometheus.CounterVec
	activeRoutes       prometheus.Gauge
	circuitBreakerOpen *prometheus.GaugeVec
	rateLimited        *prometheus.CounterVec
	cacheHitRatio      *prometheus.GaugeVec

	summary *Summary
}

// NewAPIMetrics cria e registra as métricas no registrador informado
func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	factory := promauto.With(reg)

	return &APIMetrics{
		requestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastgate_http_requests_total",
				Help: "Total number of HTTP requests by handler path, method, and status code",
			},
			[]string{"path", "method", "status"},
		),

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fastgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		requestSize: factory.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "fastgate_http_request_size_bytes",
				Help:       "HTTP request size in bytes",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"path", "method"},
		),

		responseSize: factory.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "fastgate_http_response_size_bytes",
				Help:       "HTTP response size in bytes",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"path", "method"},
		),

		activeRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fastgate_http_active_requests",
				Help: "Number of in-flight requests being processed",
			},
			[]string{"path", "method"},
		),

		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastgate_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"path", "method", "error_type"},
		),

		proxiedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastgate_proxied_requests_total",
				Help: "Total number of proxied requests by route and upstream status",
			},
			[]string{"route_id", "status"},
		),

		proxyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fastgate_proxied_request_duration_seconds",
				Help:    "End-to-end duration of proxied requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route_id"},
		),

		upstreamAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastgate_upstream_attempts_total",
				Help: "Upstream call attempts by host and outcome",
			},
			[]string{"host", "outcome"},
		),

		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fastgate_upstream_attempt_duration_seconds",
				Help:    "Duration of individual upstream attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"host"},
		),

		routeTests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastgate_route_tests_total",
				Help: "Route tests executed by result",
			},
			[]string{"result"},
		),

		activeRoutes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fastgate_active_routes",
				Help: "Number of routes in the current routing snapshot",
			},
		),

		circuitBreakerOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fastgate_circuit_breaker_open",
				Help: "Indicates if a circuit breaker is open (1) or closed (0)",
			},
			[]string{"service"},
		),

		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastgate_rate_limited_requests_total",
				Help: "Total number of rate limited requests",
			},
			[]string{"path", "method", "limit_type"},
		),

		cacheHitRatio: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fastgate_cache_hit_ratio",
				Help: "Cache hit ratio (0.0 to 1.0)",
			},
			[]string{"cache_type"},
		),

		summary: NewSummary(defaultMaxPaths),
	}
}

// RequestStarted registra o início de uma requisição
func (m *APIMetrics) RequestStarted(path, method string) {
	m.activeRequests.WithLabelValues(path, method).Inc()
}

// RequestCompleted registra a conclusão de uma requisição
func (m *APIMetrics) RequestCompleted(path, method, status string, duration time.Duration, requestSize, responseSize int) {
	m.requestCounter.WithLabelValues(path, method, status).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
	m.requestSize.WithLabelValues(path, method).Observe(float64(requestSize))
	m.responseSize.WithLabelValues(path, method).Observe(float64(responseSize))
	m.activeRequests.WithLabelValues(path, method).Dec()
}

// RequestError registra um erro de requisição
func (m *APIMetrics) RequestError(path, method, errorType string) {
	m.errorsTotal.WithLabelValues(path, method, errorType).Inc()
}

// ProxyCompleted registra uma requisição encaminhada e alimenta o resumo
// agregado. status 0 indica que nenhuma resposta do upstream foi obtida.
func (m *APIMetrics) ProxyCompleted(routeID, path string, status int, duration time.Duration, failed bool) {
	label := "none"
	if status > 0 {
		label = statusLabel(status)
	}
	m.proxiedTotal.WithLabelValues(routeID, label).Inc()
	m.proxyDuration.WithLabelValues(routeID).Observe(duration.Seconds())
	m.summary.Record(path, status, duration, failed)
}

// UpstreamAttempt registra uma tentativa individual contra o upstream
func (m *APIMetrics) UpstreamAttempt(host, outcome string, duration time.Duration) {
	m.upstreamAttempts.WithLabelValues(host, outcome).Inc()
	m.upstreamDuration.WithLabelValues(host).Observe(duration.Seconds())
}

// RouteTested registra o resultado de um teste de rota
func (m *APIMetrics) RouteTested(matched, success bool) {
	result := "success"
	switch {
	case !matched:
		result = "unmatched"
	case !success:
		result = "transport_error"
	}
	m.routeTests.WithLabelValues(result).Inc()
}

// SetActiveRoutes atualiza o número de rotas resolvíveis
func (m *APIMetrics) SetActiveRoutes(n int) {
	m.activeRoutes.Set(float64(n))
}

// CircuitBreakerStateChanged registra mudança no estado de um circuit breaker
func (m *APIMetrics) CircuitBreakerStateChanged(service string, isOpen bool) {
	value := 0.0
	if isOpen {
		value = 1.0
	}
	m.circuitBreakerOpen.WithLabelValues(service).Set(value)
}

// RateLimitExceeded registra quando um limite de taxa é excedido
func (m *APIMetrics) RateLimitExceeded(path, method, limitType string) {
	m.rateLimited.WithLabelValues(path, method, limitType).Inc()
}

// UpdateCacheHitRatio atualiza a taxa de acertos do cache
func (m *APIMetrics) UpdateCacheHitRatio(cacheType string, hitRatio float64) {
	m.cacheHitRatio.WithLabelValues(cacheType).Set(hitRatio)
}

// Summary retorna o agregador usado pelo endpoint administrativo
func (m *APIMetrics) Summary() *Summary {
	return m.summary
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
