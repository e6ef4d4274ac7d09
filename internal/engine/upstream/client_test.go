package upstream_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/diillson/fastgate/internal/engine/transform"
	"github.com/diillson/fastgate/internal/engine/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// flakyServer derruba a conexão nas primeiras failures requisições
func flakyServer(t *testing.T, failures int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failures {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Echo-Method", r.Method)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, opts ...upstream.Option) *upstream.Client {
	opts = append([]upstream.Option{upstream.WithBackOff(func() backoff.BackOff {
		return &backoff.ZeroBackOff{}
	})}, opts...)
	return upstream.NewClient(zaptest.NewLogger(t), opts...)
}

func request(url string) *transform.Request {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &transform.Request{Method: http.MethodPost, URL: url, Header: h, Body: []byte(`{"a":1}`)}
}

func TestClient_Do_Success(t *testing.T) {
	var calls atomic.Int32
	srv := flakyServer(t, 0, &calls)

	resp, err := newClient(t).Do(context.Background(), request(srv.URL+"/echo"), upstream.Options{Timeout: time.Second})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"a":1}`, string(resp.Body))
	assert.Equal(t, http.MethodPost, resp.Header.Get("X-Echo-Method"))
	assert.Equal(t, 1, resp.Attempts)
}

func TestClient_Do_RetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32
	srv := flakyServer(t, 2, &calls)

	var (
		mu       sync.Mutex
		outcomes []string
	)
	client := newClient(t, upstream.WithAttemptHook(func(host, outcome string, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, outcome)
	}))

	resp, err := client.Do(context.Background(), request(srv.URL), upstream.Options{Timeout: time.Second, Retries: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []string{"transport_error", "transport_error", "response"}, outcomes)
}

func TestClient_Do_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := flakyServer(t, 10, &calls)

	_, err := newClient(t).Do(context.Background(), request(srv.URL), upstream.Options{Timeout: time.Second, Retries: 1})
	require.Error(t, err)

	var terr *upstream.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 2, terr.Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Do_DoesNotRetryErrorStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	resp, err := newClient(t).Do(context.Background(), request(srv.URL), upstream.Options{Timeout: time.Second, Retries: 3})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Do_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newClient(t).Do(context.Background(), request(srv.URL), upstream.Options{Timeout: 50 * time.Millisecond})
	require.Error(t, err)

	var terr *upstream.TransportError
	require.True(t, errors.As(err, &terr))
	assert.True(t, terr.Timeout())
	assert.Equal(t, 1, terr.Attempts)
}

func TestClient_Do_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	req := request(srv.URL)
	req.Method = http.MethodGet
	req.Body = nil

	resp, err := newClient(t).Do(context.Background(), req, upstream.Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/elsewhere", resp.Header.Get("Location"))
}

func TestClient_Do_InvalidURL(t *testing.T) {
	req := request("http://bad host/")
	_, err := newClient(t).Do(context.Background(), req, upstream.Options{Timeout: time.Second, Retries: 3})
	require.Error(t, err)

	var terr *upstream.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 1, terr.Attempts)
}
