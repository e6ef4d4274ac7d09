package mocks

import (
	"context"
	"time"

	"github.com/diillson/fastgate/pkg/cache"
	"github.com/stretchr/testify/mock"
)

var _ cache.Cache = (*MockCache)(nil)

// MockCache substitui o cache de rotas nos testes do serviço. Para simular
// um acerto em Get, preencha dest via Run.
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	args := m.Called(ctx, key, dest)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockCache) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCache) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
