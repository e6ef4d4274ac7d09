// Package testutils reúne atalhos compartilhados pelos testes de handlers,
// proxy e serviço.
package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// DefaultTimeout limita as operações de teste que recebem contexto
const DefaultTimeout = 5 * time.Second

func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// SetupTestRouter devolve um engine gin em modo de teste, só com recovery
func SetupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	return engine
}

// MakeRequest executa uma requisição contra o engine. body pode ser string,
// []byte ou qualquer valor serializável em JSON; corpos não nulos recebem
// Content-Type application/json, que headers pode sobrescrever.
func MakeRequest(t *testing.T, engine *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	case []byte:
		reader = bytes.NewReader(v)
	default:
		payload, err := json.Marshal(v)
		require.NoError(t, err, "request body is not JSON serializable")
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

// ParseResponse decodifica o corpo JSON da resposta em dst
func ParseResponse(t *testing.T, resp *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), dst), "unexpected response body: %s", resp.Body.String())
}

func ContextWithTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), DefaultTimeout)
}

// NewRoute monta uma rota ativa apontando para o servidor de teste em target
func NewRoute(t *testing.T, id, matchPath, target, targetPath string) *model.Route {
	t.Helper()

	u, err := url.Parse(target)
	require.NoError(t, err, "invalid target URL")

	in := model.RouteInput{
		ID:             id,
		Name:           id,
		MatchPath:      matchPath,
		TargetProtocol: u.Scheme,
		TargetHost:     u.Host,
		TargetPath:     targetPath,
	}
	route := in.ToRoute()
	route.CreatedAt = time.Now()
	return route
}

func IntPtr(n int) *int {
	return &n
}

func RequireHTTPStatus(t *testing.T, resp *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, resp.Code, "unexpected status, body: %s", resp.Body.String())
}

func RequireJSONContentType(t *testing.T, resp *httptest.ResponseRecorder) {
	t.Helper()
	require.Contains(t, resp.Header().Get("Content-Type"), "application/json")
}
