package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/engine/router"
	"github.com/diillson/fastgate/internal/engine/transform"
	"github.com/diillson/fastgate/internal/engine/upstream"
	"github.com/diillson/fastgate/internal/infra/metrics"
	"github.com/diillson/fastgate/pkg/logging"
	"github.com/diillson/fastgate/pkg/resilience"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderProxiedBy    = "X-Proxied-By"
	HeaderRequestID    = "X-Request-ID"
	defaultMaxBody     = 10 << 20
	usageUpdateTimeout = 5 * time.Second
	streamBufferSize   = 32 << 10
)

// cabeçalhos de conexão que não atravessam o proxy (RFC 9110, seção 7.6.1)
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// UsageRecorder acumula os contadores de uso por rota
type UsageRecorder interface {
	RecordUsage(ctx context.Context, routeID string, responseTime time.Duration, failed bool)
}

// AuditRecorder persiste um registro por requisição encaminhada
type AuditRecorder interface {
	AddAuditLog(ctx context.Context, entry *model.AuditLog) error
}

// Options configura o encaminhamento
type Options struct {
	ProxiedBy    string
	UserAgent    string
	MaxBodyBytes int64
}

// Forwarder encaminha o tráfego que não pertence ao gateway: resolve a rota,
// aplica as transformações e chama o upstream através do circuit breaker
// do host de destino
type Forwarder struct {
	router   *router.Router
	client   *upstream.Client
	breakers *resilience.Registry
	usage    UsageRecorder
	audit    AuditRecorder
	metrics  *metrics.APIMetrics
	logger   *logging.TraceLogger
	opts     Options
	pending  sync.WaitGroup
}

// NewForwarder cria o encaminhador. breakers, usage, audit e apiMetrics podem ser nil.
func NewForwarder(rt *router.Router, client *upstream.Client, breakers *resilience.Registry, usage UsageRecorder, audit AuditRecorder, apiMetrics *metrics.APIMetrics, logger *zap.Logger, opts Options) *Forwarder {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	return &Forwarder{
		router:   rt,
		client:   client,
		breakers: breakers,
		usage:    usage,
		audit:    audit,
		metrics:  apiMetrics,
		logger:   logging.NewTraceLogger(logger),
		opts:     opts,
	}
}

// delivery resume o que foi devolvido ao cliente
type delivery struct {
	status int
	bytes  int64
	stream bool
	chunks int
	err    error
}

// Handle é o handler gin para rotas não registradas no gateway
func (f *Forwarder) Handle(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()

	requestID := c.GetHeader(HeaderRequestID)
	if requestID == "" {
		requestID = model.NewRequestID()
	}
	c.Header(HeaderRequestID, requestID)

	entry := &model.AuditLog{
		RequestID: requestID,
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}

	body, err := readBody(c, f.opts.MaxBodyBytes)
	if err != nil {
		status, msg := http.StatusBadRequest, "Falha ao ler corpo da requisição"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status, msg = http.StatusRequestEntityTooLarge, "Corpo da requisição excede o limite permitido"
		}
		c.JSON(status, gin.H{"error": msg})
		f.recordAudit(entry, delivery{status: status, err: err}, time.Since(start))
		return
	}
	entry.RequestSize = int64(len(body))

	req := model.NewRequestFromHTTP(c.Request, body)
	rule, err := f.router.ResolveRule(req)
	if err != nil {
		if f.metrics != nil {
			f.metrics.RequestError("proxy", req.Method, "route_not_found")
		}
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Nenhuma rota corresponde à requisição",
			"path":  req.Path,
		})
		f.recordAudit(entry, delivery{status: http.StatusNotFound, err: err}, time.Since(start))
		return
	}

	route := rule.Route()
	c.Set("route_id", route.ID)
	entry.RouteID = route.ID

	out := transform.Apply(rule, req)
	// cabeçalhos do gateway primeiro; as regras da rota têm a última palavra
	f.prepareHeaders(c, out.Header, requestID)
	out.Header, _ = transform.ApplyHeaders(route, out.Header)
	entry.TargetURL = out.URL

	resp, err := f.forward(ctx, route, out)
	result := f.writeResponse(c, route, out, resp, err)

	failed := result.status >= http.StatusInternalServerError
	d := time.Since(start)
	if f.metrics != nil {
		f.metrics.ProxyCompleted(route.ID, req.Path, result.status, d, failed)
	}
	f.recordUsage(route.ID, d, failed)
	f.recordAudit(entry, result, d)
}

// forward chama o upstream; respostas 5xx contam como falha do circuit breaker
// mas são devolvidas ao cliente como vieram
func (f *Forwarder) forward(ctx context.Context, route *model.Route, out *transform.Request) (*upstream.Response, error) {
	opts := upstream.Options{Timeout: route.TimeoutDuration(), Retries: route.RetryCount, Stream: true}

	call := func() (interface{}, error) {
		resp, err := f.client.Do(ctx, out, opts)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, &upstream.StatusError{URL: out.URL, StatusCode: resp.StatusCode}
		}
		return resp, nil
	}

	if f.breakers == nil {
		result, err := call()
		resp, _ := result.(*upstream.Response)
		return resp, err
	}

	result, err := f.breakers.Get(route.TargetHost).Execute(call)
	resp, _ := result.(*upstream.Response)
	return resp, err
}

func (f *Forwarder) writeResponse(c *gin.Context, route *model.Route, out *transform.Request, resp *upstream.Response, err error) delivery {
	ctx := c.Request.Context()

	if resp == nil {
		status := http.StatusBadGateway
		msg := "Falha ao contatar o serviço de destino"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			status = http.StatusServiceUnavailable
			msg = "Serviço de destino temporariamente indisponível"
		}
		f.logger.Error(ctx, "Falha ao encaminhar requisição",
			zap.String("route_id", route.ID),
			zap.String("target_url", out.URL),
			zap.Error(err))
		c.JSON(status, gin.H{
			"error":    msg,
			"route_id": route.ID,
		})
		return delivery{status: status, err: err}
	}

	result := delivery{status: resp.StatusCode}
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		f.logger.Warn(ctx, "Upstream respondeu com erro",
			zap.String("route_id", route.ID),
			zap.String("target_url", out.URL),
			zap.Int("status", statusErr.StatusCode))
		result.err = statusErr
	}

	header := c.Writer.Header()
	for name, values := range resp.Header {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	removeHopByHop(header)
	header.Del("Content-Length")
	header.Set(HeaderProxiedBy, f.opts.ProxiedBy)

	if resp.Stream != nil {
		header.Set("X-Accel-Buffering", "no")
		c.Status(resp.StatusCode)
		c.Writer.WriteHeaderNow()
		c.Writer.Flush()

		result.stream = true
		var serr error
		result.bytes, result.chunks, serr = copyStream(c.Writer, resp.Stream)
		if serr != nil {
			f.logger.Warn(ctx, "Streaming interrompido",
				zap.String("route_id", route.ID),
				zap.Int("chunks", result.chunks),
				zap.Error(serr))
			result.err = serr
		}
		return result
	}

	c.Status(resp.StatusCode)
	n, werr := c.Writer.Write(resp.Body)
	if werr != nil {
		f.logger.Debug(ctx, "Cliente encerrou a conexão antes da resposta", zap.Error(werr))
	}
	result.bytes = int64(n)
	return result
}

// copyStream repassa cada bloco lido do upstream e descarrega em seguida,
// para que eventos cheguem ao cliente sem esperar o fim da resposta
func copyStream(w gin.ResponseWriter, stream io.ReadCloser) (int64, int, error) {
	defer stream.Close()

	buf := make([]byte, streamBufferSize)
	var (
		written int64
		chunks  int
	)
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, chunks, werr
			}
			w.Flush()
			written += int64(n)
			chunks++
		}
		if errors.Is(rerr, io.EOF) {
			return written, chunks, nil
		}
		if rerr != nil {
			return written, chunks, rerr
		}
	}
}

func (f *Forwarder) prepareHeaders(c *gin.Context, h http.Header, requestID string) {
	removeHopByHop(h)
	h.Del("Content-Length")
	h.Del("Host")

	if f.opts.ProxiedBy != "" {
		h.Set(HeaderProxiedBy, f.opts.ProxiedBy)
	}
	if h.Get("User-Agent") == "" && f.opts.UserAgent != "" {
		h.Set("User-Agent", f.opts.UserAgent)
	}
	h.Set(HeaderRequestID, requestID)

	if ip := c.RemoteIP(); ip != "" {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	h.Set("X-Forwarded-Host", c.Request.Host)
	proto := "http"
	if c.Request.TLS != nil {
		proto = "https"
	}
	h.Set("X-Forwarded-Proto", proto)
}

func (f *Forwarder) recordUsage(routeID string, d time.Duration, failed bool) {
	if f.usage == nil {
		return
	}
	f.pending.Add(1)
	go func() {
		defer f.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), usageUpdateTimeout)
		defer cancel()
		f.usage.RecordUsage(ctx, routeID, d, failed)
	}()
}

func (f *Forwarder) recordAudit(entry *model.AuditLog, result delivery, d time.Duration) {
	if f.audit == nil {
		return
	}
	entry.StatusCode = result.status
	entry.ResponseTimeMs = d.Milliseconds()
	entry.ResponseSize = result.bytes
	entry.IsStream = result.stream
	entry.StreamChunks = result.chunks
	if result.err != nil {
		entry.ErrorMessage = result.err.Error()
	}

	f.pending.Add(1)
	go func() {
		defer f.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), usageUpdateTimeout)
		defer cancel()
		if err := f.audit.AddAuditLog(ctx, entry); err != nil {
			f.logger.Warn(ctx, "Falha ao gravar auditoria",
				zap.String("request_id", entry.RequestID),
				zap.Error(err))
		}
	}()
}

// Wait aguarda as gravações de uso e auditoria pendentes
func (f *Forwarder) Wait() {
	f.pending.Wait()
}

func readBody(c *gin.Context, limit int64) ([]byte, error) {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil, nil
	}
	reader := http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	defer reader.Close()
	return io.ReadAll(reader)
}

func removeHopByHop(h http.Header) {
	for _, token := range h.Values("Connection") {
		for _, name := range strings.Split(token, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
