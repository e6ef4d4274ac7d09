package http_test

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/diillson/fastgate/internal/adapter/database"
	handler "github.com/diillson/fastgate/internal/adapter/http"
	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/domain/repository"
	"github.com/diillson/fastgate/internal/testutils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func newAuditFixture(t *testing.T) (*gin.Engine, repository.AuditLogRepository) {
	t.Helper()
	log := testutils.TestLogger(t)

	db, err := database.NewDatabase(context.Background(), database.Config{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "audit.db"),
		MaxOpenConns: 1,
		LogLevel:     logger.Silent,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewAuditLogRepository(db.DB(), log)
	engine := testutils.SetupTestRouter(t)
	handler.NewAuditHandler(repo, log).RegisterRoutes(engine.Group("/admin"))
	return engine, repo
}

func TestAuditHandler_ListAuditLogs(t *testing.T) {
	engine, repo := newAuditFixture(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).UTC()

	require.NoError(t, repo.AddAuditLog(ctx, &model.AuditLog{
		RequestID: "req_1", RouteID: "route_a", Method: http.MethodGet, Path: "/a", StatusCode: 200, CreatedAt: base,
	}))
	require.NoError(t, repo.AddAuditLog(ctx, &model.AuditLog{
		RequestID: "req_2", RouteID: "route_b", Method: http.MethodPost, Path: "/b", StatusCode: 502, CreatedAt: base.Add(time.Minute),
	}))

	resp := testutils.MakeRequest(t, engine, http.MethodGet, "/admin/audit-logs", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)
	var all []model.AuditLog
	testutils.ParseResponse(t, resp, &all)
	require.Len(t, all, 2)
	assert.Equal(t, "req_2", all[0].RequestID)

	resp = testutils.MakeRequest(t, engine, http.MethodGet, "/admin/audit-logs?route_id=route_a&method=get", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)
	var filtered []model.AuditLog
	testutils.ParseResponse(t, resp, &filtered)
	require.Len(t, filtered, 1)
	assert.Equal(t, "req_1", filtered[0].RequestID)

	resp = testutils.MakeRequest(t, engine, http.MethodGet, "/admin/audit-logs?status_code=502&limit=1", nil, nil)
	testutils.RequireHTTPStatus(t, resp, http.StatusOK)
	var failed []model.AuditLog
	testutils.ParseResponse(t, resp, &failed)
	require.Len(t, failed, 1)
	assert.Equal(t, "route_b", failed[0].RouteID)
}

func TestAuditHandler_InvalidParameters(t *testing.T) {
	engine, _ := newAuditFixture(t)

	for _, query := range []string{
		"limit=0",
		"limit=1001",
		"skip=-1",
		"status_code=abc",
		"since=yesterday",
	} {
		resp := testutils.MakeRequest(t, engine, http.MethodGet, "/admin/audit-logs?"+query, nil, nil)
		testutils.RequireHTTPStatus(t, resp, http.StatusBadRequest)
	}
}
