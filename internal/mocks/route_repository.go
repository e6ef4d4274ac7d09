package mocks

import (
	"context"
	"time"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/stretchr/testify/mock"
)

// MockRouteRepository é um mock para o repository.RouteRepository
type MockRouteRepository struct {
	mock.Mock
}

func (m *MockRouteRepository) GetRoutes(ctx context.Context) ([]*model.Route, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Route), args.Error(1)
}

func (m *MockRouteRepository) GetActiveRoutes(ctx context.Context) ([]*model.Route, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Route), args.Error(1)
}

func (m *MockRouteRepository) GetRouteByID(ctx context.Context, routeID string) (*model.Route, error) {
	args := m.Called(ctx, routeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Route), args.Error(1)
}

func (m *MockRouteRepository) AddRoute(ctx context.Context, route *model.Route) error {
	args := m.Called(ctx, route)
	return args.Error(0)
}

func (m *MockRouteRepository) UpdateRoute(ctx context.Context, route *model.Route) error {
	args := m.Called(ctx, route)
	return args.Error(0)
}

func (m *MockRouteRepository) DeleteRoute(ctx context.Context, routeID string) error {
	args := m.Called(ctx, routeID)
	return args.Error(0)
}

func (m *MockRouteRepository) SetRouteActive(ctx context.Context, routeID string, active bool) error {
	args := m.Called(ctx, routeID, active)
	return args.Error(0)
}

func (m *MockRouteRepository) UpdateMetrics(ctx context.Context, routeID string, responseTime time.Duration, failed bool) error {
	args := m.Called(ctx, routeID, responseTime, failed)
	return args.Error(0)
}
