package http_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	handler "github.com/diillson/fastgate/internal/adapter/http"
	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/engine/router"
	"github.com/diillson/fastgate/internal/testutils"
	"github.com/diillson/fastgate/pkg/resilience"
	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type healthBody struct {
	Status string                    `json:"status"`
	Checks map[string]map[string]any `json:"checks"`
}

func healthEngine(t *testing.T, db, cache handler.Pinger) (*router.Router, *handler.HealthChecker) {
	rt := router.New(testutils.TestLogger(t))
	return rt, handler.NewHealthChecker(rt, db, cache, testutils.TestLogger(t))
}

func TestHealth_Liveness(t *testing.T) {
	_, hc := healthEngine(t, pinger{}, nil)
	engine := testutils.SetupTestRouter(t)
	hc.RegisterRoutes(engine)

	resp := testutils.MakeRequest(t, engine, http.MethodGet, "/health/liveness", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)
}

func TestHealth_Readiness(t *testing.T) {
	rt, hc := healthEngine(t, pinger{}, pinger{err: errors.New("redis down")})
	rt.Load([]*model.Route{testutils.NewRoute(t, "a", "/a", "http://backend:80", "/")})

	engine := testutils.SetupTestRouter(t)
	hc.RegisterRoutes(engine)

	resp := testutils.MakeRequest(t, engine, http.MethodGet, "/health/readiness", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	var body healthBody
	testutils.ParseResponse(t, resp, &body)
	assert.Equal(t, "UP", body.Status)
	assert.Equal(t, "DOWN", body.Checks["cache"]["status"], "cache is not critical")
	assert.Nil(t, body.Checks["cache"]["error"])
	assert.EqualValues(t, 1, body.Checks["router"]["active_routes"])
}

func TestHealth_DatabaseDown(t *testing.T) {
	_, hc := healthEngine(t, pinger{err: errors.New("connection refused")}, nil)
	engine := testutils.SetupTestRouter(t)
	hc.RegisterRoutes(engine)

	resp := testutils.MakeRequest(t, engine, http.MethodGet, "/health", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusServiceUnavailable)

	var body healthBody
	testutils.ParseResponse(t, resp, &body)
	assert.Equal(t, "DOWN", body.Status)
	assert.Equal(t, "connection refused", body.Checks["database"]["error"])
}

func TestHealth_DetailedReportsCircuitBreakers(t *testing.T) {
	breakers := resilience.NewRegistry(resilience.CircuitBreakerConfig{MaxRequestsFail: 1}, testutils.TestLogger(t), nil)
	_, _ = breakers.Get("orders:8080").Execute(func() (interface{}, error) {
		return nil, errors.New("upstream down")
	})
	breakers.Get("users:8080")

	_, hc := healthEngine(t, pinger{}, nil)
	hc.WithBreakers(breakers)
	engine := testutils.SetupTestRouter(t)
	hc.RegisterRoutes(engine)

	resp := testutils.MakeRequest(t, engine, http.MethodGet, "/health", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	var body healthBody
	testutils.ParseResponse(t, resp, &body)
	assert.Equal(t, "UP", body.Status)

	cb := body.Checks["circuit_breakers"]
	assert.Equal(t, "DEGRADED", cb["status"])
	assert.EqualValues(t, 1, cb["open"])
	assert.Equal(t, map[string]any{"orders:8080": "open", "users:8080": "closed"}, cb["hosts"])
}

func TestHealth_DetailedWithoutBreakers(t *testing.T) {
	_, hc := healthEngine(t, pinger{}, nil)
	engine := testutils.SetupTestRouter(t)
	hc.RegisterRoutes(engine)

	resp := testutils.MakeRequest(t, engine, http.MethodGet, "/health", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)

	var body healthBody
	testutils.ParseResponse(t, resp, &body)
	assert.NotContains(t, body.Checks, "circuit_breakers")
}
