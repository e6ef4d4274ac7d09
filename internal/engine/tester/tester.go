package tester

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/engine/matcher"
	"github.com/diillson/fastgate/internal/engine/transform"
	"github.com/diillson/fastgate/internal/engine/upstream"
	"go.uber.org/zap"
)

const defaultBodyPreview = 4096

// RouteSource localiza rotas persistidas
type RouteSource interface {
	GetRouteByID(ctx context.Context, routeID string) (*model.Route, error)
}

// Target identifica a rota a testar: uma rota persistida ou uma definição
// ainda não salva
type Target struct {
	RouteID string
	Route   *model.RouteInput
}

// ReportHook é chamado com cada relatório produzido
type ReportHook func(report *model.TestReport)

// Tester exercita uma única rota com uma requisição sintética, sem consultar
// o roteador
type Tester struct {
	routes      RouteSource
	client      *upstream.Client
	logger      *zap.Logger
	bodyPreview int
	onReport    ReportHook
}

// Option configura o Tester
type Option func(*Tester)

// WithReportHook registra um observador de relatórios
func WithReportHook(hook ReportHook) Option {
	return func(t *Tester) { t.onReport = hook }
}

// WithBodyPreview limita quantos bytes do corpo de resposta entram no relatório
func WithBodyPreview(n int) Option {
	return func(t *Tester) {
		if n >= 0 {
			t.bodyPreview = n
		}
	}
}

// New cria um Tester
func New(routes RouteSource, client *upstream.Client, logger *zap.Logger, opts ...Option) *Tester {
	t := &Tester{
		routes:      routes,
		client:      client,
		logger:      logger,
		bodyPreview: defaultBodyPreview,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Test resolve o alvo e executa o teste. Um id desconhecido devolve
// repository.ErrRouteNotFound e uma definição inválida devolve
// *model.ValidationError; falhas do upstream ficam no relatório.
func (t *Tester) Test(ctx context.Context, target Target, in model.TestRequest) (*model.TestReport, error) {
	route, err := t.resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx, route, in)
}

func (t *Tester) resolve(ctx context.Context, target Target) (*model.Route, error) {
	if target.Route != nil {
		route := target.Route.ToRoute()
		if err := matcher.Validate(route); err != nil {
			return nil, err
		}
		return route, nil
	}
	if target.RouteID == "" {
		return nil, model.NewValidationError("route_id", "informe o id da rota ou a definição a testar")
	}
	return t.routes.GetRouteByID(ctx, target.RouteID)
}

// Run executa correspondência, transformação e chamada ao upstream para a rota
func (t *Tester) Run(ctx context.Context, route *model.Route, in model.TestRequest) (*model.TestReport, error) {
	rule, err := matcher.Compile(route)
	if err != nil {
		return nil, err
	}

	req, err := in.Build(rule.Path().Sample())
	if err != nil {
		return nil, model.NewValidationError("test_body", err.Error())
	}

	report := &model.TestReport{RouteID: route.ID}
	defer t.emit(report)

	if !rule.Match(req) {
		report.ErrorMessage = "a requisição de teste não corresponde à regra da rota"
		t.logger.Debug("Teste de rota sem correspondência",
			zap.String("route_id", route.ID),
			zap.String("method", req.Method),
			zap.String("path", req.Path))
		return report, nil
	}
	report.Matched = true

	out := transform.Apply(rule, req)
	report.TargetURL = out.URL
	report.TestResult.HeadersApplied = out.HeadersApplied
	report.TestResult.BodyModified = out.BodyModified

	opts := upstream.Options{
		Timeout: route.TimeoutDuration(),
		Retries: route.RetryCount,
	}
	if in.Timeout > 0 {
		opts.Timeout = time.Duration(min(in.Timeout, model.MaxTimeout)) * time.Second
	}

	report.TestResult.RequestSent = true
	resp, err := t.client.Do(ctx, out, opts)
	if err != nil {
		var terr *upstream.TransportError
		if errors.As(err, &terr) {
			report.Attempts = terr.Attempts
			report.ResponseTimeMs = millis(terr.Duration)
		}
		report.ErrorMessage = err.Error()
		t.logger.Info("Teste de rota falhou no transporte",
			zap.String("route_id", route.ID),
			zap.String("target_url", out.URL),
			zap.Int("attempts", report.Attempts),
			zap.Error(err))
		return report, nil
	}

	status := resp.StatusCode
	report.Success = true
	report.StatusCode = &status
	report.Attempts = resp.Attempts
	report.ResponseTimeMs = millis(resp.Duration)
	report.TestResult.ResponseReceived = true
	report.ResponseHeaders = flattenHeaders(resp.Header)
	report.ResponseBody = preview(resp.Body, t.bodyPreview)

	t.logger.Info("Teste de rota concluído",
		zap.String("route_id", route.ID),
		zap.String("target_url", out.URL),
		zap.Int("status_code", status),
		zap.Int("attempts", resp.Attempts),
		zap.Float64("response_time_ms", report.ResponseTimeMs))

	return report, nil
}

func (t *Tester) emit(report *model.TestReport) {
	if t.onReport != nil {
		t.onReport(report)
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func flattenHeaders(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func preview(body []byte, limit int) string {
	if len(body) > limit {
		body = body[:limit]
	}
	return strings.ToValidUTF8(string(body), "")
}
