package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// incrementUsageScript adds one to a usage hash unless ARGV[1] >= 0 and the
// current count already reached it. Returns {count, applied}.
var incrementUsageScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local limit = tonumber(ARGV[1])
if limit >= 0 and current >= limit then
	return {current, 0}
end
if redis.call('EXISTS', KEYS[1]) == 0 then
	redis.call('HSET', KEYS[1], 'last_reset_at', ARGV[2])
	redis.call('SADD', KEYS[2], ARGV[3])
	redis.call('SADD', KEYS[3], ARGV[4])
end
local n = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {n, 1}
`)

var resetUsageScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'count', 0, 'last_reset_at', ARGV[1])
return 1
`)

var incrementReportsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('HINCRBY', KEYS[1], 'report_count', 1)
`)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(host string, port int, password string, db, poolSize int) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisStore implements Store on Redis hashes and sets
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore creates a new Redis store. Keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *RedisStore) itemKey(itemID string) string {
	return fmt.Sprintf("%sitem:%s", s.prefix, itemID)
}

func (s *RedisStore) itemsKey() string {
	return s.prefix + "items"
}

// Tenant and requester IDs are query-escaped so a ':' inside an ID cannot
// move it into another component of the key
func (s *RedisStore) usageKey(tenantID, requesterID string) string {
	return fmt.Sprintf("%susage:%s:%s", s.prefix, url.QueryEscape(tenantID), url.QueryEscape(requesterID))
}

// requestersKey indexes a tenant's usage records outside the usage namespace
func (s *RedisStore) requestersKey(tenantID string) string {
	return fmt.Sprintf("%susage-idx:%s", s.prefix, url.QueryEscape(tenantID))
}

func (s *RedisStore) tenantsKey() string {
	return s.prefix + "usage-tenants"
}

func (s *RedisStore) authKey(tenantID string) string {
	return fmt.Sprintf("%sauth:%s", s.prefix, url.QueryEscape(tenantID))
}

// CreateItem stores the item hash and indexes its ID
func (s *RedisStore) CreateItem(ctx context.Context, item *model.Item) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.itemKey(item.ID),
			"payload", item.Payload,
			"report_count", item.ReportCount,
			"created_at", item.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.SAdd(ctx, s.itemsKey(), item.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by ID
func (s *RedisStore) GetItem(ctx context.Context, itemID string) (*model.Item, error) {
	fields, err := s.client.HGetAll(ctx, s.itemKey(itemID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return parseItem(itemID, fields)
}

// ListItems returns every item ordered by creation time
func (s *RedisStore) ListItems(ctx context.Context) ([]*model.Item, error) {
	ids, err := s.client.SMembers(ctx, s.itemsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.itemKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}

	items := make([]*model.Item, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		item, err := parseItem(ids[i], fields)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func parseItem(itemID string, fields map[string]string) (*model.Item, error) {
	reports, err := strconv.Atoi(fields["report_count"])
	if err != nil {
		return nil, fmt.Errorf("corrupt report_count for item %s: %w", itemID, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt created_at for item %s: %w", itemID, err)
	}
	return &model.Item{
		ID:          itemID,
		Payload:     fields["payload"],
		ReportCount: reports,
		CreatedAt:   createdAt,
	}, nil
}

// CountItems returns the pool size
func (s *RedisStore) CountItems(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.itemsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return int(n), nil
}

// IncrementReports adds one report atomically on the server
func (s *RedisStore) IncrementReports(ctx context.Context, itemID string) (int, error) {
	n, err := incrementReportsScript.Run(ctx, s.client, []string{s.itemKey(itemID)}).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to increment reports: %w", err)
	}
	if n < 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

// GetUsage retrieves a usage record
func (s *RedisStore) GetUsage(ctx context.Context, tenantID, requesterID string) (*model.UsageRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.usageKey(tenantID, requesterID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return nil, fmt.Errorf("corrupt usage count: %w", err)
	}
	lastReset, err := time.Parse(time.RFC3339Nano, fields["last_reset_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt last_reset_at: %w", err)
	}

	return &model.UsageRecord{
		TenantID:      tenantID,
		RequesterID:   requesterID,
		ConsumedCount: count,
		LastResetAt:   lastReset,
	}, nil
}

// IncrementUsage creates the record at 1 or adds one
func (s *RedisStore) IncrementUsage(ctx context.Context, tenantID, requesterID string, now time.Time) (int, error) {
	count, _, err := s.runIncrement(ctx, tenantID, requesterID, -1, now)
	return count, err
}

// IncrementUsageIfBelow adds one only while the count is below limit
func (s *RedisStore) IncrementUsageIfBelow(ctx context.Context, tenantID, requesterID string, limit int, now time.Time) (int, bool, error) {
	if limit < 0 {
		limit = 0
	}
	return s.runIncrement(ctx, tenantID, requesterID, limit, now)
}

func (s *RedisStore) runIncrement(ctx context.Context, tenantID, requesterID string, limit int, now time.Time) (int, bool, error) {
	keys := []string{
		s.usageKey(tenantID, requesterID),
		s.requestersKey(tenantID),
		s.tenantsKey(),
	}
	res, err := incrementUsageScript.Run(ctx, s.client, keys,
		limit, now.UTC().Format(time.RFC3339Nano), requesterID, tenantID,
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("unexpected increment reply: %v", res)
	}
	return int(res[0]), res[1] == 1, nil
}

// ResetTenant zeroes each record of the tenant, one script call per record
func (s *RedisStore) ResetTenant(ctx context.Context, tenantID string, now time.Time) (int64, error) {
	requesters, err := s.client.SMembers(ctx, s.requestersKey(tenantID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list requesters: %w", err)
	}

	stamp := now.UTC().Format(time.RFC3339Nano)
	var reset int64
	for _, requesterID := range requesters {
		n, err := resetUsageScript.Run(ctx, s.client, []string{s.usageKey(tenantID, requesterID)}, stamp).Int64()
		if err != nil {
			return reset, fmt.Errorf("failed to reset usage: %w", err)
		}
		reset += n
	}

	s.logger.Debug("Reset tenant usage in redis",
		zap.String("tenant_id", tenantID),
		zap.Int64("records", reset))

	return reset, nil
}

// ResetUsage zeroes a single record
func (s *RedisStore) ResetUsage(ctx context.Context, tenantID, requesterID string, now time.Time) (bool, error) {
	n, err := resetUsageScript.Run(ctx, s.client,
		[]string{s.usageKey(tenantID, requesterID)},
		now.UTC().Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to reset usage: %w", err)
	}
	return n == 1, nil
}

// ListTenants returns tenants that have usage records
func (s *RedisStore) ListTenants(ctx context.Context) ([]string, error) {
	tenants, err := s.client.SMembers(ctx, s.tenantsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	sort.Strings(tenants)
	return tenants, nil
}

// GetAuthConfig retrieves a tenant's admin configuration
func (s *RedisStore) GetAuthConfig(ctx context.Context, tenantID string) (*model.TenantAuthConfig, error) {
	fields, err := s.client.HGetAll(ctx, s.authKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth config: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt updated_at: %w", err)
	}
	return &model.TenantAuthConfig{
		TenantID:    tenantID,
		AdminRoleID: fields["admin_role_id"],
		UpdatedAt:   updatedAt,
	}, nil
}

// SetAuthConfig replaces a tenant's admin configuration
func (s *RedisStore) SetAuthConfig(ctx context.Context, cfg *model.TenantAuthConfig) error {
	err := s.client.HSet(ctx, s.authKey(cfg.TenantID),
		"admin_role_id", cfg.AdminRoleID,
		"updated_at", cfg.UpdatedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set auth config: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	err := s.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
