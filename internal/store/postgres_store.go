package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore implements Store for PostgreSQL
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgreSQL store and ensures its schema
func NewPostgresStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)
	return NewPostgresStoreFromDSN(context.Background(), connString, logger)
}

// NewPostgresStoreFromDSN connects using a libpq style or URL connection string
func NewPostgresStoreFromDSN(ctx context.Context, connString string, logger *zap.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger,
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the tables used by the store when missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id UUID PRIMARY KEY,
			payload TEXT NOT NULL,
			report_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS usage_records (
			tenant_id TEXT NOT NULL,
			requester_id TEXT NOT NULL,
			consumed_count INTEGER NOT NULL DEFAULT 0,
			last_reset_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (tenant_id, requester_id)
		)`,
		`CREATE TABLE IF NOT EXISTS tenant_auth_configs (
			tenant_id TEXT PRIMARY KEY,
			admin_role_id TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// CreateItem inserts an item
func (s *PostgresStore) CreateItem(ctx context.Context, item *model.Item) error {
	query := `
		INSERT INTO items (id, payload, report_count, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query,
		item.ID,
		item.Payload,
		item.ReportCount,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by ID
func (s *PostgresStore) GetItem(ctx context.Context, itemID string) (*model.Item, error) {
	query := `
		SELECT id::text, payload, report_count, created_at
		FROM items
		WHERE id = $1
	`

	var item model.Item
	err := s.pool.QueryRow(ctx, query, itemID).Scan(
		&item.ID,
		&item.Payload,
		&item.ReportCount,
		&item.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

// ListItems returns every item ordered by creation time
func (s *PostgresStore) ListItems(ctx context.Context) ([]*model.Item, error) {
	query := `
		SELECT id::text, payload, report_count, created_at
		FROM items
		ORDER BY created_at, id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := make([]*model.Item, 0)
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(&item.ID, &item.Payload, &item.ReportCount, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// CountItems returns the pool size
func (s *PostgresStore) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// IncrementReports adds one report in a single statement
func (s *PostgresStore) IncrementReports(ctx context.Context, itemID string) (int, error) {
	query := `UPDATE items SET report_count = report_count + 1 WHERE id = $1 RETURNING report_count`

	var count int
	err := s.pool.QueryRow(ctx, query, itemID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment reports: %w", err)
	}
	return count, nil
}

// GetUsage retrieves a usage record
func (s *PostgresStore) GetUsage(ctx context.Context, tenantID, requesterID string) (*model.UsageRecord, error) {
	query := `
		SELECT tenant_id, requester_id, consumed_count, last_reset_at
		FROM usage_records
		WHERE tenant_id = $1 AND requester_id = $2
	`

	var rec model.UsageRecord
	err := s.pool.QueryRow(ctx, query, tenantID, requesterID).Scan(
		&rec.TenantID,
		&rec.RequesterID,
		&rec.ConsumedCount,
		&rec.LastResetAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return &rec, nil
}

// IncrementUsage creates the record at 1 or adds one
func (s *PostgresStore) IncrementUsage(ctx context.Context, tenantID, requesterID string, now time.Time) (int, error) {
	query := `
		INSERT INTO usage_records (tenant_id, requester_id, consumed_count, last_reset_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (tenant_id, requester_id)
		DO UPDATE SET consumed_count = usage_records.consumed_count + 1
		RETURNING consumed_count
	`

	var count int
	if err := s.pool.QueryRow(ctx, query, tenantID, requesterID, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, nil
}

// IncrementUsageIfBelow adds one only while consumed_count < limit
func (s *PostgresStore) IncrementUsageIfBelow(ctx context.Context, tenantID, requesterID string, limit int, now time.Time) (int, bool, error) {
	if limit <= 0 {
		current, err := s.currentCount(ctx, tenantID, requesterID)
		return current, false, err
	}

	query := `
		INSERT INTO usage_records (tenant_id, requester_id, consumed_count, last_reset_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (tenant_id, requester_id)
		DO UPDATE SET consumed_count = usage_records.consumed_count + 1
		WHERE usage_records.consumed_count < $4
		RETURNING consumed_count
	`

	var count int
	err := s.pool.QueryRow(ctx, query, tenantID, requesterID, now, limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		current, err := s.currentCount(ctx, tenantID, requesterID)
		return current, false, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, true, nil
}

func (s *PostgresStore) currentCount(ctx context.Context, tenantID, requesterID string) (int, error) {
	rec, err := s.GetUsage(ctx, tenantID, requesterID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.ConsumedCount, nil
}

// ResetTenant zeroes every record of the tenant
func (s *PostgresStore) ResetTenant(ctx context.Context, tenantID string, now time.Time) (int64, error) {
	query := `
		UPDATE usage_records
		SET consumed_count = 0, last_reset_at = $2
		WHERE tenant_id = $1
	`

	result, err := s.pool.Exec(ctx, query, tenantID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reset tenant usage: %w", err)
	}

	s.logger.Debug("Reset tenant usage in postgres",
		zap.String("tenant_id", tenantID),
		zap.Int64("records", result.RowsAffected()))

	return result.RowsAffected(), nil
}

// ResetUsage zeroes a single record
func (s *PostgresStore) ResetUsage(ctx context.Context, tenantID, requesterID string, now time.Time) (bool, error) {
	query := `
		UPDATE usage_records
		SET consumed_count = 0, last_reset_at = $3
		WHERE tenant_id = $1 AND requester_id = $2
	`

	result, err := s.pool.Exec(ctx, query, tenantID, requesterID, now)
	if err != nil {
		return false, fmt.Errorf("failed to reset usage: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListTenants returns tenants that have usage records
func (s *PostgresStore) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM usage_records ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// GetAuthConfig retrieves a tenant's admin configuration
func (s *PostgresStore) GetAuthConfig(ctx context.Context, tenantID string) (*model.TenantAuthConfig, error) {
	query := `
		SELECT tenant_id, admin_role_id, updated_at
		FROM tenant_auth_configs
		WHERE tenant_id = $1
	`

	var cfg model.TenantAuthConfig
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(&cfg.TenantID, &cfg.AdminRoleID, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth config: %w", err)
	}
	return &cfg, nil
}

// SetAuthConfig replaces a tenant's admin configuration
func (s *PostgresStore) SetAuthConfig(ctx context.Context, cfg *model.TenantAuthConfig) error {
	query := `
		INSERT INTO tenant_auth_configs (tenant_id, admin_role_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id)
		DO UPDATE SET admin_role_id = EXCLUDED.admin_role_id, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, cfg.TenantID, cfg.AdminRoleID, cfg.UpdatedAt); err != nil {
		return fmt.Errorf("failed to set auth config: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
