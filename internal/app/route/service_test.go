package route_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/diillson/fastgate/internal/app/route"
	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/domain/repository"
	"github.com/diillson/fastgate/internal/engine/router"
	"github.com/diillson/fastgate/internal/engine/tester"
	"github.com/diillson/fastgate/internal/engine/upstream"
	"github.com/diillson/fastgate/internal/mocks"
	"github.com/diillson/fastgate/internal/testutils"
	"github.com/diillson/fastgate/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo    *mocks.MockRouteRepository
	cache   *mocks.MockCache
	router  *router.Router
	service *route.Service
}

func newFixture(t *testing.T) *fixture {
	logger := testutils.TestLogger(t)
	repo := new(mocks.MockRouteRepository)
	mc := new(mocks.MockCache)
	rt := router.New(logger)
	tst := tester.New(repo, upstream.NewClient(logger), logger)

	return &fixture{
		repo:    repo,
		cache:   mc,
		router:  rt,
		service: route.NewService(repo, mc, rt, tst, logger),
	}
}

func storedRoute(id, path string, priority int) *model.Route {
	return &model.Route{
		ID:             id,
		Name:           id,
		Priority:       priority,
		IsActive:       true,
		MatchMethod:    model.MethodAny,
		MatchPath:      path,
		TargetProtocol: "http",
		TargetHost:     "backend:8080",
		TargetPath:     "/",
		Timeout:        30,
		CreatedAt:      time.Now(),
	}
}

func validInput() model.RouteInput {
	return model.RouteInput{
		Name:       "users",
		MatchPath:  "/api/users/*",
		TargetHost: "users:8080",
		TargetPath: "/v1/users",
	}
}

func TestRouteService_GetRoute(t *testing.T) {
	t.Run("successfully from repository", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := testutils.ContextWithTimeout(t)
		defer cancel()

		expected := storedRoute("route_a", "/a", 10)

		f.cache.On("Get", mock.Anything, cache.RouteKey("route_a"), mock.AnythingOfType("*model.Route")).
			Return(false, nil).Once()
		f.repo.On("GetRouteByID", mock.Anything, "route_a").Return(expected, nil).Once()
		f.cache.On("Set", mock.Anything, cache.RouteKey("route_a"), expected, 5*time.Minute).
			Return(nil).Once()

		got, err := f.service.GetRoute(ctx, "route_a")

		require.NoError(t, err)
		assert.Equal(t, expected.ID, got.ID)
		f.cache.AssertExpectations(t)
		f.repo.AssertExpectations(t)
	})

	t.Run("successfully from cache", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := testutils.ContextWithTimeout(t)
		defer cancel()

		f.cache.On("Get", mock.Anything, cache.RouteKey("route_c"), mock.AnythingOfType("*model.Route")).
			Run(func(args mock.Arguments) {
				dest := args.Get(2).(*model.Route)
				*dest = *storedRoute("route_c", "/cached", 5)
			}).
			Return(true, nil).Once()

		got, err := f.service.GetRoute(ctx, "route_c")

		require.NoError(t, err)
		assert.Equal(t, "/cached", got.MatchPath)
		f.repo.AssertNotCalled(t, "GetRouteByID", mock.Anything, mock.Anything)
	})

	t.Run("cache error falls back to repository", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := testutils.ContextWithTimeout(t)
		defer cancel()

		expected := storedRoute("route_e", "/e", 10)

		f.cache.On("Get", mock.Anything, cache.RouteKey("route_e"), mock.Anything).
			Return(false, errors.New("cache down")).Once()
		f.repo.On("GetRouteByID", mock.Anything, "route_e").Return(expected, nil).Once()
		f.cache.On("Set", mock.Anything, cache.RouteKey("route_e"), expected, 5*time.Minute).
			Return(nil).Once()

		got, err := f.service.GetRoute(ctx, "route_e")

		require.NoError(t, err)
		assert.Equal(t, "route_e", got.ID)
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := testutils.ContextWithTimeout(t)
		defer cancel()

		f.cache.On("Get", mock.Anything, cache.RouteKey("missing"), mock.Anything).Return(false, nil).Once()
		f.repo.On("GetRouteByID", mock.Anything, "missing").Return(nil, repository.ErrRouteNotFound).Once()

		_, err := f.service.GetRoute(ctx, "missing")

		assert.ErrorIs(t, err, repository.ErrRouteNotFound)
		f.cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRouteService_CreateRoute(t *testing.T) {
	t.Run("persists and publishes the route", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := testutils.ContextWithTimeout(t)
		defer cancel()

		f.repo.On("AddRoute", mock.Anything, mock.AnythingOfType("*model.Route")).
			Run(func(args mock.Arguments) {
				saved := args.Get(1).(*model.Route)
				saved.Seq = 1
				saved.CreatedAt = time.Now()
			}).
			Return(nil).Once()
		f.repo.On("GetActiveRoutes", mock.Anything).Return([]*model.Route{}, nil).Once()

		created, err := f.service.CreateRoute(ctx, validInput())

		require.NoError(t, err)
		assert.Regexp(t, `^route_[0-9a-f]{12}$`, created.ID)
		assert.Equal(t, model.DefaultPriority, created.Priority)
		assert.True(t, created.IsActive)
		f.repo.AssertExpectations(t)
	})

	t.Run("validation error is not persisted", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := testutils.ContextWithTimeout(t)
		defer cancel()

		in := validInput()
		in.TargetHost = ""
		in.MatchPath = "no-slash"

		_, err := f.service.CreateRoute(ctx, in)

		var verr *model.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.GreaterOrEqual(t, len(verr.Errors), 2)
		f.repo.AssertNotCalled(t, "AddRoute", mock.Anything, mock.Anything)
	})
}

func TestRouteService_UpdateRoute(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := testutils.ContextWithTimeout(t)
	defer cancel()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := storedRoute("route_u", "/old", 10)
	existing.CreatedAt = created
	existing.Seq = 7
	existing.CallCount = 42

	f.repo.On("GetRouteByID", mock.Anything, "route_u").Return(existing, nil).Once()
	f.repo.On("UpdateRoute", mock.Anything, mock.MatchedBy(func(r *model.Route) bool {
		return r.ID == "route_u" && r.MatchPath == "/api/users/*" && r.Seq == 7
	})).Return(nil).Once()
	f.cache.On("Delete", mock.Anything, cache.RouteKey("route_u")).Return(nil).Once()
	f.repo.On("GetActiveRoutes", mock.Anything).Return([]*model.Route{}, nil).Once()

	updated, err := f.service.UpdateRoute(ctx, "route_u", validInput())

	require.NoError(t, err)
	assert.Equal(t, "route_u", updated.ID)
	assert.Equal(t, created, updated.CreatedAt)
	assert.Equal(t, int64(42), updated.CallCount)
	f.repo.AssertExpectations(t)
	f.cache.AssertExpectations(t)
}

func TestRouteService_DeleteRoute(t *testing.T) {
	t.Run("removes and reloads", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := testutils.ContextWithTimeout(t)
		defer cancel()

		f.repo.On("DeleteRoute", mock.Anything, "route_d").Return(nil).Once()
		f.cache.On("Delete", mock.Anything, cache.RouteKey("route_d")).Return(nil).Once()
		f.repo.On("GetActiveRoutes", mock.Anything).Return([]*model.Route{}, nil).Once()

		require.NoError(t, f.service.DeleteRoute(ctx, "route_d"))
		f.repo.AssertExpectations(t)
	})

	t.Run("absent id", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := testutils.ContextWithTimeout(t)
		defer cancel()

		f.repo.On("DeleteRoute", mock.Anything, "nope").Return(repository.ErrRouteNotFound).Once()

		err := f.service.DeleteRoute(ctx, "nope")
		assert.ErrorIs(t, err, repository.ErrRouteNotFound)
		f.repo.AssertNotCalled(t, "GetActiveRoutes", mock.Anything)
	})
}

func TestRouteService_Reload(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := testutils.ContextWithTimeout(t)
	defer cancel()

	low := storedRoute("route_low", "/api/*", 50)
	high := storedRoute("route_high", "/api/special", 10)
	f.repo.On("GetActiveRoutes", mock.Anything).Return([]*model.Route{low, high}, nil).Once()

	snap, err := f.service.Reload(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())

	resolved, err := f.router.Resolve(&model.Request{Method: http.MethodGet, Path: "/api/special", Header: http.Header{}})
	require.NoError(t, err)
	assert.Equal(t, "route_high", resolved.ID)
}

func TestRouteService_RefreshClearsCache(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := testutils.ContextWithTimeout(t)
	defer cancel()

	f.cache.On("Clear", mock.Anything).Return(nil).Once()
	f.repo.On("GetActiveRoutes", mock.Anything).Return([]*model.Route{storedRoute("route_r", "/r", 10)}, nil).Once()

	snap, err := f.service.Refresh(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	f.cache.AssertExpectations(t)
	f.repo.AssertExpectations(t)
}

func TestRouteService_RefreshIgnoresCacheFailure(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := testutils.ContextWithTimeout(t)
	defer cancel()

	f.cache.On("Clear", mock.Anything).Return(errors.New("redis down")).Once()
	f.repo.On("GetActiveRoutes", mock.Anything).Return([]*model.Route{}, nil).Once()

	_, err := f.service.Refresh(ctx)

	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func TestRouteService_ToggleRoute(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := testutils.ContextWithTimeout(t)
	defer cancel()

	r := storedRoute("route_t", "/t", 10)
	r.IsActive = false

	f.repo.On("SetRouteActive", mock.Anything, "route_t", false).Return(nil).Once()
	f.cache.On("Delete", mock.Anything, cache.RouteKey("route_t")).Return(nil).Once()
	f.repo.On("GetActiveRoutes", mock.Anything).Return([]*model.Route{}, nil).Once()
	f.repo.On("GetRouteByID", mock.Anything, "route_t").Return(r, nil).Once()

	got, err := f.service.ToggleRoute(ctx, "route_t", false)

	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, 0, f.router.Snapshot().Len())
}

func TestRouteService_Seed(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := testutils.ContextWithTimeout(t)
	defer cancel()

	fresh := validInput()
	fresh.ID = "route_new"

	known := validInput()
	known.ID = "route_old"

	invalid := model.RouteInput{Name: "broken"}

	f.repo.On("GetRouteByID", mock.Anything, "route_new").Return(nil, repository.ErrRouteNotFound).Once()
	f.repo.On("AddRoute", mock.Anything, mock.MatchedBy(func(r *model.Route) bool { return r.ID == "route_new" })).
		Return(nil).Once()
	f.repo.On("GetRouteByID", mock.Anything, "route_old").Return(storedRoute("route_old", "/x", 1), nil).Once()
	f.repo.On("UpdateRoute", mock.Anything, mock.MatchedBy(func(r *model.Route) bool { return r.ID == "route_old" })).
		Return(nil).Once()
	f.cache.On("Delete", mock.Anything, cache.RouteKey("route_old")).Return(nil).Once()
	f.repo.On("GetActiveRoutes", mock.Anything).Return([]*model.Route{}, nil).Once()

	applied, err := f.service.Seed(ctx, []model.RouteInput{fresh, invalid, known})

	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	f.repo.AssertExpectations(t)
}

func TestRouteService_TestRoute(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := testutils.ContextWithTimeout(t)
	defer cancel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer backend.Close()
	u, err := url.Parse(backend.URL)
	require.NoError(t, err)

	in := validInput()
	in.TargetHost = u.Host

	report, err := f.service.TestRoute(ctx, tester.Target{Route: &in}, model.TestRequest{})

	require.NoError(t, err)
	assert.True(t, report.Matched)
	assert.True(t, report.Success)
	require.NotNil(t, report.StatusCode)
	assert.Equal(t, http.StatusAccepted, *report.StatusCode)
}

func TestRouteService_RecordUsage(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := testutils.ContextWithTimeout(t)
	defer cancel()

	f.repo.On("UpdateMetrics", mock.Anything, "route_m", 120*time.Millisecond, true).Return(nil).Once()
	f.cache.On("Delete", mock.Anything, cache.RouteKey("route_m")).Return(nil).Once()

	f.service.RecordUsage(ctx, "route_m", 120*time.Millisecond, true)

	f.repo.AssertExpectations(t)
	f.cache.AssertExpectations(t)
}
