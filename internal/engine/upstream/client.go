package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/diillson/fastgate/internal/engine/transform"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultMaxBodyBytes = 10 << 20 // 10 MB

// TransportError indica falha de rede ou timeout ao falar com o upstream.
// É o único tipo de falha que gera novas tentativas.
type TransportError struct {
	URL      string
	Attempts int
	// Duration mede a última tentativa
	Duration time.Duration
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("falha de transporte para %s após %d tentativa(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout indica se a falha foi causada por timeout
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// StatusError indica que o upstream respondeu com status de erro.
// Nunca é repetido.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s respondeu com status %d", e.URL, e.StatusCode)
}

// Response é a resposta do upstream. Em modo streaming, respostas
// text/event-stream e ndjson chegam em Stream em vez de Body; quem recebe
// precisa fechar Stream.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Stream     io.ReadCloser
	// Duration mede apenas a tentativa que decidiu o resultado
	Duration time.Duration
	Attempts int
}

// Options controla uma chamada ao upstream
type Options struct {
	Timeout time.Duration // por tentativa
	Retries int           // tentativas adicionais após falha de transporte
	// Stream devolve respostas de streaming sem lê-las. Timeout passa a
	// valer até os cabeçalhos e depois como intervalo máximo entre blocos.
	Stream bool
}

// AttemptHook é chamado ao fim de cada tentativa
type AttemptHook func(host, outcome string, d time.Duration)

// Client executa chamadas ao upstream com timeout por tentativa e novas
// tentativas sequenciais em falhas de transporte
type Client struct {
	http       *http.Client
	newBackOff func() backoff.BackOff
	maxBody    int64
	onAttempt  AttemptHook
	logger     *zap.Logger
	tracer     trace.Tracer
}

// Option configura o Client
type Option func(*Client)

// WithHTTPClient substitui o cliente HTTP
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBackOff define a política de espera entre tentativas
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = factory }
}

// WithMaxBodyBytes limita o tamanho do corpo de resposta lido
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithAttemptHook registra um observador de tentativas
func WithAttemptHook(hook AttemptHook) Option {
	return func(c *Client) { c.onAttempt = hook }
}

// ExponentialBackOff replica a espera min(2^n, max) entre tentativas
func ExponentialBackOff(initial, maxInterval time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.Multiplier = 2
		b.RandomizationFactor = 0
		b.MaxInterval = maxInterval
		b.MaxElapsedTime = 0
		return b
	}
}

// NewClient cria um cliente de upstream
func NewClient(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
			// O gateway devolve redirecionamentos ao chamador
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		newBackOff: ExponentialBackOff(time.Second, 10*time.Second),
		maxBody:    defaultMaxBodyBytes,
		logger:     logger,
		tracer:     otel.GetTracerProvider().Tracer("fastgate.upstream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do envia a requisição transformada. Falhas de transporte são repetidas
// até opts.Retries vezes; respostas com qualquer status encerram as
// tentativas e são devolvidas sem erro.
func (c *Client) Do(ctx context.Context, req *transform.Request, opts Options) (*Response, error) {
	host := hostOf(req.URL)
	ctx, span := c.tracer.Start(ctx, "Upstream.Do",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL),
			attribute.Int("upstream.max_retries", opts.Retries),
		),
	)
	defer span.End()

	var (
		attempts int
		last     time.Duration
		result   *Response
	)

	operation := func() error {
		attempts++
		resp, d, err := c.attempt(ctx, req, opts)
		last = d
		if err != nil {
			c.observe(host, "transport_error", d)
			var permanent *backoff.PermanentError
			if errors.As(err, &permanent) {
				return err
			}
			var urlErr *url.Error
			if errors.As(err, &urlErr) || isTransient(err) {
				c.logger.Debug("Falha de transporte no upstream",
					zap.String("url", req.URL),
					zap.Int("attempt", attempts),
					zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		c.observe(host, "response", d)
		resp.Attempts = attempts
		result = resp
		return nil
	}

	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(retries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		terr := &TransportError{URL: req.URL, Attempts: attempts, Duration: last, Err: err}
		span.SetStatus(codes.Error, "transport error")
		span.SetAttributes(
			attribute.Int("upstream.attempts", attempts),
			attribute.String("error.message", err.Error()),
		)
		return nil, terr
	}

	span.SetAttributes(
		attribute.Int("upstream.attempts", attempts),
		attribute.Int("http.status_code", result.StatusCode),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (c *Client) attempt(ctx context.Context, req *transform.Request, opts Options) (*Response, time.Duration, error) {
	var idle *idleTimeout
	if opts.Stream {
		ctx, idle = withIdleTimeout(ctx, opts.Timeout)
	} else if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	streaming := false
	defer func() {
		if idle != nil && !streaming {
			idle.release()
		}
	}()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, 0, backoff.Permanent(fmt.Errorf("requisição inválida para o upstream: %w", err))
	}
	httpReq.Header = req.Header.Clone()
	if httpReq.Header == nil {
		httpReq.Header = http.Header{}
	}
	httpReq.ContentLength = int64(len(req.Body))

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, time.Since(start), idle.wrap(ctx, err)
	}

	if opts.Stream && IsStreaming(resp.Header) {
		streaming = true
		idle.touch()
		d := time.Since(start)
		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Stream:     &streamBody{ReadCloser: resp.Body, idle: idle},
			Duration:   d,
		}, d, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	d := time.Since(start)
	if err != nil {
		return nil, d, fmt.Errorf("falha ao ler resposta do upstream: %w", transientErr{idle.wrap(ctx, err)})
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		Duration:   d,
	}, d, nil
}

func (c *Client) observe(host, outcome string, d time.Duration) {
	if c.onAttempt != nil {
		c.onAttempt(host, outcome, d)
	}
}

// transientErr marca falhas de leitura do corpo como repetíveis
type transientErr struct{ error }

func (e transientErr) Unwrap() error { return e.error }

func isTransient(err error) bool {
	var t transientErr
	return errors.As(err, &t)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
