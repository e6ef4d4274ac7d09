package tester_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/domain/repository"
	"github.com/diillson/fastgate/internal/engine/tester"
	"github.com/diillson/fastgate/internal/engine/upstream"
	"github.com/diillson/fastgate/internal/mocks"
	"github.com/diillson/fastgate/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type captured struct {
	path   string
	header http.Header
	body   map[string]any
}

func newTester(t *testing.T, repo tester.RouteSource, opts ...tester.Option) *tester.Tester {
	client := upstream.NewClient(zaptest.NewLogger(t), upstream.WithBackOff(func() backoff.BackOff {
		return &backoff.ZeroBackOff{}
	}))
	return tester.New(repo, client, zaptest.NewLogger(t), opts...)
}

func TestTester_Run_Success(t *testing.T) {
	var got captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.header = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &got.body)
		w.Header().Set("X-Upstream", "orders")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	route := testutils.NewRoute(t, "route_orders", "/v1/orders/{id}", srv.URL, "/internal/orders")
	route.StripPathPrefix = true
	route.AddHeaders = map[string]string{"X-Tenant": "acme"}
	route.AddBodyFields = model.Object{"source": model.String("gateway")}

	var hooked *model.TestReport
	tst := newTester(t, nil, tester.WithReportHook(func(r *model.TestReport) { hooked = r }))

	report, err := tst.Run(context.Background(), route, model.TestRequest{})
	require.NoError(t, err)

	assert.True(t, report.Matched)
	assert.True(t, report.Success)
	require.NotNil(t, report.StatusCode)
	assert.Equal(t, http.StatusCreated, *report.StatusCode)
	assert.Equal(t, 1, report.Attempts)
	assert.Equal(t, srv.URL+"/internal/orders/test", report.TargetURL)
	assert.Equal(t, "orders", report.ResponseHeaders["X-Upstream"])
	assert.JSONEq(t, `{"ok":true}`, report.ResponseBody)
	assert.Equal(t, model.TestBreakdown{
		RequestSent:      true,
		ResponseReceived: true,
		HeadersApplied:   true,
		BodyModified:     true,
	}, report.TestResult)

	assert.Equal(t, "/internal/orders/test", got.path)
	assert.Equal(t, "acme", got.header.Get("X-Tenant"))
	assert.Equal(t, "gateway", got.body["source"])

	assert.Same(t, report, hooked)
}

func TestTester_Run_NoMatchSkipsUpstream(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	route := testutils.NewRoute(t, "route_get", "/items", srv.URL, "/")
	route.MatchMethod = "GET"

	report, err := newTester(t, nil).Run(context.Background(), route, model.TestRequest{})
	require.NoError(t, err)

	assert.False(t, report.Matched)
	assert.False(t, report.Success)
	assert.False(t, report.TestResult.RequestSent)
	assert.Nil(t, report.StatusCode)
	assert.NotEmpty(t, report.ErrorMessage)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTester_Run_RetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	route := testutils.NewRoute(t, "route_flaky", "/flaky", srv.URL, "/")
	route.RetryCount = 2

	report, err := newTester(t, nil).Run(context.Background(), route, model.TestRequest{})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, 3, report.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTester_Run_TransportFailureInReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL
	srv.Close()

	route := testutils.NewRoute(t, "route_down", "/down", target, "/")
	route.RetryCount = 1

	report, err := newTester(t, nil).Run(context.Background(), route, model.TestRequest{})
	require.NoError(t, err)

	assert.True(t, report.Matched)
	assert.False(t, report.Success)
	assert.True(t, report.TestResult.RequestSent)
	assert.False(t, report.TestResult.ResponseReceived)
	assert.Equal(t, 2, report.Attempts)
	assert.NotEmpty(t, report.ErrorMessage)
}

func TestTester_Test_PersistedRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	route := testutils.NewRoute(t, "route_saved", "/saved", srv.URL, "/")
	repo := new(mocks.MockRouteRepository)
	repo.On("GetRouteByID", mock.Anything, "route_saved").Return(route, nil)
	repo.On("GetRouteByID", mock.Anything, "route_missing").Return(nil, repository.ErrRouteNotFound)

	tst := newTester(t, repo)

	report, err := tst.Test(context.Background(), tester.Target{RouteID: "route_saved"}, model.TestRequest{Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, "route_saved", report.RouteID)
	assert.True(t, report.Success)

	_, err = tst.Test(context.Background(), tester.Target{RouteID: "route_missing"}, model.TestRequest{})
	assert.ErrorIs(t, err, repository.ErrRouteNotFound)

	repo.AssertExpectations(t)
}

func TestTester_Test_UnsavedDefinition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tst := newTester(t, new(mocks.MockRouteRepository))

	t.Run("valid definition runs without persistence", func(t *testing.T) {
		in := &model.RouteInput{
			Name:       "draft",
			MatchPath:  "/draft/**",
			TargetHost: srv.Listener.Addr().String(),
			TargetPath: "/",
		}
		report, err := tst.Test(context.Background(), tester.Target{Route: in}, model.TestRequest{})
		require.NoError(t, err)
		assert.True(t, report.Success)
		assert.Empty(t, report.RouteID)
	})

	t.Run("invalid definition is rejected", func(t *testing.T) {
		in := &model.RouteInput{Name: "draft", MatchPath: "draft", TargetHost: "x", TargetPath: "/"}
		_, err := tst.Test(context.Background(), tester.Target{Route: in}, model.TestRequest{})
		var verr *model.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("empty target", func(t *testing.T) {
		_, err := tst.Test(context.Background(), tester.Target{}, model.TestRequest{})
		var verr *model.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestTester_Run_BodyPreviewLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	route := testutils.NewRoute(t, "route_big", "/big", srv.URL, "/")
	report, err := newTester(t, nil, tester.WithBodyPreview(4)).Run(context.Background(), route, model.TestRequest{})
	require.NoError(t, err)
	assert.Equal(t, "0123", report.ResponseBody)
}
