package service

import (
	"context"
	"time"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/metrics"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
)

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

// MockUsageStore is a mock implementation of UsageStore
type MockUsageStore struct {
	mock.Mock
}

func (m *MockUsageStore) GetUsage(ctx context.Context, tenantID, requesterID string) (*model.UsageRecord, error) {
	args := m.Called(ctx, tenantID, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UsageRecord), args.Error(1)
}

func (m *MockUsageStore) IncrementUsage(ctx context.Context, tenantID, requesterID string, now time.Time) (int, error) {
	args := m.Called(ctx, tenantID, requesterID, now)
	return args.Int(0), args.Error(1)
}

func (m *MockUsageStore) IncrementUsageIfBelow(ctx context.Context, tenantID, requesterID string, limit int, now time.Time) (int, bool, error) {
	args := m.Called(ctx, tenantID, requesterID, limit, now)
	return args.Int(0), args.Bool(1), args.Error(2)
}

func (m *MockUsageStore) ResetTenant(ctx context.Context, tenantID string, now time.Time) (int64, error) {
	args := m.Called(ctx, tenantID, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUsageStore) ResetUsage(ctx context.Context, tenantID, requesterID string, now time.Time) (bool, error) {
	args := m.Called(ctx, tenantID, requesterID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsageStore) ListTenants(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockItemStore is a mock implementation of ItemStore
type MockItemStore struct {
	mock.Mock
}

func (m *MockItemStore) CreateItem(ctx context.Context, item *model.Item) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockItemStore) GetItem(ctx context.Context, itemID string) (*model.Item, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Item), args.Error(1)
}

func (m *MockItemStore) ListItems(ctx context.Context) ([]*model.Item, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Item), args.Error(1)
}

func (m *MockItemStore) CountItems(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockItemStore) IncrementReports(ctx context.Context, itemID string) (int, error) {
	args := m.Called(ctx, itemID)
	return args.Int(0), args.Error(1)
}

// MockAuthConfigStore is a mock implementation of AuthConfigStore
type MockAuthConfigStore struct {
	mock.Mock
}

func (m *MockAuthConfigStore) GetAuthConfig(ctx context.Context, tenantID string) (*model.TenantAuthConfig, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TenantAuthConfig), args.Error(1)
}

func (m *MockAuthConfigStore) SetAuthConfig(ctx context.Context, cfg *model.TenantAuthConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

// MockIdempotencyStore is a mock implementation of IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockIdempotencyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockIdempotencyStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockIdempotencyStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}
