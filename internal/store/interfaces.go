package store

import (
	"context"
	"errors"
	"time"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// ItemStore interface for the shared item pool
type ItemStore interface {
	CreateItem(ctx context.Context, item *model.Item) error
	GetItem(ctx context.Context, itemID string) (*model.Item, error)
	ListItems(ctx context.Context) ([]*model.Item, error)
	CountItems(ctx context.Context) (int, error)

	// IncrementReports adds exactly one report and returns the new count.
	// Returns ErrNotFound for unknown items.
	IncrementReports(ctx context.Context, itemID string) (int, error)
}

// UsageStore interface for per (tenant, requester) consumption counters.
// Every method is atomic with respect to the other methods on the same key.
type UsageStore interface {
	// GetUsage returns ErrNotFound when the requester has no record yet
	GetUsage(ctx context.Context, tenantID, requesterID string) (*model.UsageRecord, error)

	// IncrementUsage creates the record at 1 or adds exactly 1
	IncrementUsage(ctx context.Context, tenantID, requesterID string, now time.Time) (int, error)

	// IncrementUsageIfBelow increments only while the current count is below
	// limit. It returns the resulting count and whether the increment landed.
	IncrementUsageIfBelow(ctx context.Context, tenantID, requesterID string, limit int, now time.Time) (int, bool, error)

	// ResetTenant zeroes every record of the tenant, one record at a time
	ResetTenant(ctx context.Context, tenantID string, now time.Time) (int64, error)

	// ResetUsage zeroes a single record; reports false when it did not exist
	ResetUsage(ctx context.Context, tenantID, requesterID string, now time.Time) (bool, error)

	ListTenants(ctx context.Context) ([]string, error)
}

// AuthConfigStore interface for per-tenant delegated admin configuration
type AuthConfigStore interface {
	GetAuthConfig(ctx context.Context, tenantID string) (*model.TenantAuthConfig, error)
	// SetAuthConfig replaces the tenant's configuration
	SetAuthConfig(ctx context.Context, cfg *model.TenantAuthConfig) error
}

// Store is implemented by every persistence backend
type Store interface {
	ItemStore
	UsageStore
	AuthConfigStore

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// IdempotencyStore interface for idempotency key operations
type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Cache interface for in-memory caching
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
