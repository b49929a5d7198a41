package store

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"go.uber.org/zap"
)

const usageShardCount = 256

type usageKey struct {
	tenantID    string
	requesterID string
}

// usageShard guards a slice of the usage keyspace. Keys in different shards
// never contend with each other.
type usageShard struct {
	mu      sync.Mutex
	records map[usageKey]*model.UsageRecord
}

// MemoryStore implements Store in process memory
type MemoryStore struct {
	itemsMu sync.RWMutex
	items   map[string]*model.Item

	shards [usageShardCount]*usageShard

	authMu sync.RWMutex
	auth   map[string]*model.TenantAuthConfig

	logger *zap.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	s := &MemoryStore{
		items:  make(map[string]*model.Item),
		auth:   make(map[string]*model.TenantAuthConfig),
		logger: logger,
	}
	for i := range s.shards {
		s.shards[i] = &usageShard{records: make(map[usageKey]*model.UsageRecord)}
	}
	return s
}

func (s *MemoryStore) shardFor(key usageKey) *usageShard {
	h := fnv.New32a()
	h.Write([]byte(key.tenantID))
	h.Write([]byte{0})
	h.Write([]byte(key.requesterID))
	return s.shards[h.Sum32()%usageShardCount]
}

// CreateItem adds an item to the pool
func (s *MemoryStore) CreateItem(ctx context.Context, item *model.Item) error {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()

	val := *item
	s.items[item.ID] = &val
	return nil
}

// GetItem retrieves an item by ID
func (s *MemoryStore) GetItem(ctx context.Context, itemID string) (*model.Item, error) {
	s.itemsMu.RLock()
	defer s.itemsMu.RUnlock()

	item, ok := s.items[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	val := *item
	return &val, nil
}

// ListItems returns copies of every item ordered by creation time
func (s *MemoryStore) ListItems(ctx context.Context) ([]*model.Item, error) {
	s.itemsMu.RLock()
	items := make([]*model.Item, 0, len(s.items))
	for _, item := range s.items {
		val := *item
		items = append(items, &val)
	}
	s.itemsMu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// CountItems returns the pool size
func (s *MemoryStore) CountItems(ctx context.Context) (int, error) {
	s.itemsMu.RLock()
	defer s.itemsMu.RUnlock()
	return len(s.items), nil
}

// IncrementReports adds one report to an item
func (s *MemoryStore) IncrementReports(ctx context.Context, itemID string) (int, error) {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return 0, ErrNotFound
	}
	item.ReportCount++
	return item.ReportCount, nil
}

// GetUsage retrieves a usage record
func (s *MemoryStore) GetUsage(ctx context.Context, tenantID, requesterID string) (*model.UsageRecord, error) {
	key := usageKey{tenantID, requesterID}
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	val := *rec
	return &val, nil
}

// IncrementUsage adds one to the record, creating it when absent
func (s *MemoryStore) IncrementUsage(ctx context.Context, tenantID, requesterID string, now time.Time) (int, error) {
	count, _, err := s.incrementUsage(tenantID, requesterID, -1, now)
	return count, err
}

// IncrementUsageIfBelow adds one only while the count is below limit
func (s *MemoryStore) IncrementUsageIfBelow(ctx context.Context, tenantID, requesterID string, limit int, now time.Time) (int, bool, error) {
	return s.incrementUsage(tenantID, requesterID, limit, now)
}

// incrementUsage treats a negative limit as unbounded
func (s *MemoryStore) incrementUsage(tenantID, requesterID string, limit int, now time.Time) (int, bool, error) {
	key := usageKey{tenantID, requesterID}
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[key]
	current := 0
	if ok {
		current = rec.ConsumedCount
	}
	if limit >= 0 && current >= limit {
		return current, false, nil
	}

	if !ok {
		rec = &model.UsageRecord{
			TenantID:    tenantID,
			RequesterID: requesterID,
			LastResetAt: now,
		}
		shard.records[key] = rec
	}
	rec.ConsumedCount++
	return rec.ConsumedCount, true, nil
}

// ResetTenant zeroes every record of a tenant shard by shard
func (s *MemoryStore) ResetTenant(ctx context.Context, tenantID string, now time.Time) (int64, error) {
	var reset int64
	for _, shard := range s.shards {
		if err := ctx.Err(); err != nil {
			return reset, err
		}
		shard.mu.Lock()
		for key, rec := range shard.records {
			if key.tenantID != tenantID {
				continue
			}
			rec.ConsumedCount = 0
			rec.LastResetAt = now
			reset++
		}
		shard.mu.Unlock()
	}

	s.logger.Debug("Reset tenant usage in memory",
		zap.String("tenant_id", tenantID),
		zap.Int64("records", reset))

	return reset, nil
}

// ResetUsage zeroes a single record
func (s *MemoryStore) ResetUsage(ctx context.Context, tenantID, requesterID string, now time.Time) (bool, error) {
	key := usageKey{tenantID, requesterID}
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[key]
	if !ok {
		return false, nil
	}
	rec.ConsumedCount = 0
	rec.LastResetAt = now
	return true, nil
}

// ListTenants returns every tenant that has at least one usage record
func (s *MemoryStore) ListTenants(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key := range shard.records {
			seen[key.tenantID] = struct{}{}
		}
		shard.mu.Unlock()
	}

	tenants := make([]string, 0, len(seen))
	for t := range seen {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	return tenants, nil
}

// GetAuthConfig retrieves a tenant's admin configuration
func (s *MemoryStore) GetAuthConfig(ctx context.Context, tenantID string) (*model.TenantAuthConfig, error) {
	s.authMu.RLock()
	defer s.authMu.RUnlock()

	cfg, ok := s.auth[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	val := *cfg
	return &val, nil
}

// SetAuthConfig replaces a tenant's admin configuration
func (s *MemoryStore) SetAuthConfig(ctx context.Context, cfg *model.TenantAuthConfig) error {
	s.authMu.Lock()
	defer s.authMu.Unlock()

	val := *cfg
	s.auth[cfg.TenantID] = &val
	return nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
