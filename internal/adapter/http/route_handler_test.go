package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/diillson/fastgate/internal/adapter/database"
	handler "github.com/diillson/fastgate/internal/adapter/http"
	"github.com/diillson/fastgate/internal/app/route"
	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/engine/router"
	"github.com/diillson/fastgate/internal/engine/tester"
	"github.com/diillson/fastgate/internal/engine/upstream"
	"github.com/diillson/fastgate/internal/infra/metrics"
	"github.com/diillson/fastgate/internal/testutils"
	"github.com/diillson/fastgate/pkg/cache"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

type adminFixture struct {
	engine  *gin.Engine
	router  *router.Router
	metrics *metrics.APIMetrics
	db      *database.Database
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	log := testutils.TestLogger(t)

	db, err := database.NewDatabase(context.Background(), database.Config{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "admin.db"),
		MaxOpenConns: 1,
		LogLevel:     logger.Silent,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRouteRepository(db.DB(), log)
	rt := router.New(log)
	apiMetrics := metrics.NewAPIMetrics(prometheus.NewRegistry())
	tst := tester.New(repo, upstream.NewClient(log), log)
	svc := route.NewService(repo, cache.NewMemoryCache(time.Minute, time.Minute, nil, log), rt, tst, log,
		route.WithMetrics(apiMetrics))

	engine := testutils.SetupTestRouter(t)
	handler.NewRouteHandler(svc, apiMetrics, log).RegisterRoutes(engine.Group("/admin"))

	return &adminFixture{engine: engine, router: rt, metrics: apiMetrics, db: db}
}

func (f *adminFixture) create(t *testing.T, body map[string]any) *model.Route {
	t.Helper()
	resp := testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes", body, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusCreated)
	var created model.Route
	testutils.ParseResponse(t, resp, &created)
	return &created
}

func routeBody(name, path string, priority int) map[string]any {
	return map[string]any{
		"route_name":  name,
		"match_path":  path,
		"target_host": "backend:8080",
		"target_path": "/",
		"priority":    priority,
	}
}

func TestRouteHandler_CreateAndGet(t *testing.T) {
	f := newAdminFixture(t)

	created := f.create(t, routeBody("orders", "/orders/**", 10))
	assert.Regexp(t, `^route_[0-9a-f]{12}$`, created.ID)
	assert.Equal(t, model.MethodAny, created.MatchMethod)
	assert.Equal(t, "http", created.TargetProtocol)
	assert.True(t, created.IsActive)

	assert.Equal(t, 1, f.router.Snapshot().Len(), "router sees the new route immediately")

	resp := testutils.MakeRequest(t, f.engine, http.MethodGet, "/admin/routes/"+created.ID, nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)
	testutils.RequireJSONContentType(t, resp)

	var got model.Route
	testutils.ParseResponse(t, resp, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "/orders/**", got.MatchPath)

	resp = testutils.MakeRequest(t, f.engine, http.MethodGet, "/admin/routes/route_000000000000", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusNotFound)
}

func TestRouteHandler_CreateValidation(t *testing.T) {
	f := newAdminFixture(t)

	body := map[string]any{
		"match_path":  "orders",
		"target_host": "",
		"target_path": "/",
		"timeout":     0,
	}
	resp := testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes", body, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusBadRequest)

	var apiErr struct {
		Error   string `json:"error"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	}
	testutils.ParseResponse(t, resp, &apiErr)
	assert.NotEmpty(t, apiErr.Error)

	fields := make([]string, 0, len(apiErr.Details))
	for _, d := range apiErr.Details {
		fields = append(fields, d.Field)
	}
	assert.Subset(t, fields, []string{"route_name", "match_path", "target_host", "timeout"})

	resp = testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes", "{not json", nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusBadRequest)
	assert.Equal(t, 0, f.router.Snapshot().Len())
}

func TestRouteHandler_ListRoutes(t *testing.T) {
	f := newAdminFixture(t)

	low := f.create(t, routeBody("low", "/low", 300))
	high := f.create(t, routeBody("high", "/high", 1))
	mid := f.create(t, routeBody("mid", "/mid", 50))

	resp := testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/"+mid.ID+"/toggle",
		map[string]any{"is_active": false}, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	list := func(query string) []string {
		resp := testutils.MakeRequest(t, f.engine, http.MethodGet, "/admin/routes"+query, nil, nil)
		testutils.RequireHTTPStatus(t, resp, http.StatusOK)
		var routes []model.Route
		testutils.ParseResponse(t, resp, &routes)
		ids := make([]string, 0, len(routes))
		for _, r := range routes {
			ids = append(ids, r.ID)
		}
		return ids
	}

	assert.Equal(t, []string{high.ID, mid.ID, low.ID}, list(""))
	assert.Equal(t, []string{high.ID, low.ID}, list("?is_active=true"))
	assert.Equal(t, []string{mid.ID}, list("?is_active=false"))
	assert.Equal(t, []string{mid.ID}, list("?skip=1&limit=1"))
	assert.Empty(t, list("?skip=10"))

	for _, q := range []string{"?limit=0", "?limit=1001", "?skip=-1", "?is_active=maybe"} {
		resp := testutils.MakeRequest(t, f.engine, http.MethodGet, "/admin/routes"+q, nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code, q)
	}
}

func TestRouteHandler_UpdateRoute(t *testing.T) {
	f := newAdminFixture(t)
	created := f.create(t, routeBody("orders", "/orders/**", 10))

	body := routeBody("orders v2", "/v2/orders/**", 20)
	body["match_method"] = "get,post"
	resp := testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/update/"+created.ID, body, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	var updated model.Route
	testutils.ParseResponse(t, resp, &updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "GET,POST", updated.MatchMethod)
	assert.Equal(t, 20, updated.Priority)
	assert.WithinDuration(t, created.CreatedAt, updated.CreatedAt, time.Millisecond)

	snap := f.router.Snapshot()
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, "/v2/orders/**", snap.Routes()[0].MatchPath)

	resp = testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/update/route_unknown", body, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusNotFound)

	body["match_path"] = "/files/[a-"
	resp = testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/update/"+created.ID, body, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusBadRequest)
}

func TestRouteHandler_ToggleAndDelete(t *testing.T) {
	f := newAdminFixture(t)
	created := f.create(t, routeBody("orders", "/orders", 10))

	resp := testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/"+created.ID+"/toggle",
		map[string]any{"is_active": false}, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	var toggled struct {
		Message string      `json:"message"`
		Route   model.Route `json:"route"`
	}
	testutils.ParseResponse(t, resp, &toggled)
	assert.False(t, toggled.Route.IsActive)
	assert.Equal(t, 0, f.router.Snapshot().Len())

	resp = testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/"+created.ID+"/toggle", map[string]any{}, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusBadRequest)

	resp = testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/delete/"+created.ID, nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	resp = testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/delete/"+created.ID, nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusNotFound)

	resp = testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/"+created.ID+"/toggle",
		map[string]any{"is_active": true}, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusNotFound)
}

func TestRouteHandler_TestRoute(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}))
	defer upstreamSrv.Close()

	f := newAdminFixture(t)
	body := routeBody("orders", "/orders/{id}", 10)
	body["target_host"] = upstreamSrv.Listener.Addr().String()
	body["target_path"] = "/internal"
	body["strip_path_prefix"] = true
	created := f.create(t, body)

	resp := testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/"+created.ID+"/test", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	var report model.TestReport
	testutils.ParseResponse(t, resp, &report)
	assert.True(t, report.Matched)
	assert.True(t, report.Success)
	require.NotNil(t, report.StatusCode)
	assert.Equal(t, http.StatusOK, *report.StatusCode)
	assert.JSONEq(t, `{"path":"/internal/test"}`, report.ResponseBody)

	resp = testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/"+created.ID+"/test",
		map[string]any{"test_method": "GET"}, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	resp = testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/route_unknown/test", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusNotFound)
}

func TestRouteHandler_TestDefinition(t *testing.T) {
	f := newAdminFixture(t)

	body := map[string]any{
		"route": map[string]any{
			"route_name":   "draft",
			"match_method": "GET",
			"match_path":   "/draft",
			"target_host":  "127.0.0.1:1",
			"target_path":  "/",
		},
	}
	resp := testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/test", body, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	var report model.TestReport
	testutils.ParseResponse(t, resp, &report)
	assert.False(t, report.Matched, "default test method is POST")
	assert.False(t, report.TestResult.RequestSent)

	resp = testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/test", map[string]any{}, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusBadRequest)

	resp = testutils.MakeRequest(t, f.engine, http.MethodGet, "/admin/routes", nil, nil)
	var routes []model.Route
	testutils.ParseResponse(t, resp, &routes)
	assert.Empty(t, routes, "testing a definition does not persist it")
}

func TestRouteHandler_ReloadAndMetrics(t *testing.T) {
	f := newAdminFixture(t)
	f.create(t, routeBody("a", "/a", 10))
	b := f.create(t, routeBody("b", "/b", 20))

	// alteração feita por fora da API, como outra instância faria
	require.NoError(t, f.db.DB().Exec("UPDATE proxy_routes SET is_active = ? WHERE route_id = ?", false, b.ID).Error)
	assert.Equal(t, 2, f.router.Snapshot().Len())

	resp := testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/reload", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	var reload struct {
		ActiveRoutes int      `json:"active_routes"`
		Skipped      []string `json:"skipped"`
	}
	testutils.ParseResponse(t, resp, &reload)
	assert.Equal(t, 1, reload.ActiveRoutes)
	assert.Empty(t, reload.Skipped)

	f.metrics.ProxyCompleted("x", "/a", 200, 10*time.Millisecond, false)
	f.metrics.ProxyCompleted("x", "/a", 502, 30*time.Millisecond, true)

	resp = testutils.MakeRequest(t, f.engine, http.MethodGet, "/admin/metrics", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	var summary metrics.SummarySnapshot
	testutils.ParseResponse(t, resp, &summary)
	assert.Equal(t, int64(2), summary.TotalRequests)
	assert.Equal(t, int64(1), summary.TotalErrors)
	assert.InDelta(t, 50.0, summary.SuccessRate, 0.001)
	assert.InDelta(t, 20.0, summary.AverageResponseTime, 0.001)
	assert.Equal(t, 1, summary.ActiveRoutes)
	assert.Equal(t, 2, summary.TotalRoutes)
	assert.Equal(t, []metrics.PathCount{{Path: "/a", Count: 2}}, summary.TopPaths)
}

func TestRouteHandler_ReloadDropsCachedRoutes(t *testing.T) {
	f := newAdminFixture(t)
	created := f.create(t, routeBody("cached", "/cached", 10))

	resp := testutils.MakeRequest(t, f.engine, http.MethodGet, "/admin/routes/"+created.ID, nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	require.NoError(t, f.db.DB().Exec("UPDATE proxy_routes SET route_name = ? WHERE route_id = ?", "renamed", created.ID).Error)

	resp = testutils.MakeRequest(t, f.engine, http.MethodGet, "/admin/routes/"+created.ID, nil, nil)
	var stale model.Route
	testutils.ParseResponse(t, resp, &stale)
	assert.Equal(t, "cached", stale.Name)

	resp = testutils.MakeRequest(t, f.engine, http.MethodPost, "/admin/routes/reload", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	resp = testutils.MakeRequest(t, f.engine, http.MethodGet, "/admin/routes/"+created.ID, nil, nil)
	var fresh model.Route
	testutils.ParseResponse(t, resp, &fresh)
	assert.Equal(t, "renamed", fresh.Name)
}
