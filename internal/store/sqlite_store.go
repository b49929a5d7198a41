package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on an embedded SQLite database
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens the database file at path, or a private in-memory
// database for ":memory:". Writers are serialized on one connection.
func OpenSQLite(path string, busyTimeout time.Duration) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
			path, busyTimeout.Milliseconds())
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return db, nil
}

// NewSQLiteStore wraps db and creates the schema when missing
func NewSQLiteStore(db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		report_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS usage_records (
		tenant_id TEXT NOT NULL,
		requester_id TEXT NOT NULL,
		consumed_count INTEGER NOT NULL DEFAULT 0,
		last_reset_at DATETIME NOT NULL,
		PRIMARY KEY (tenant_id, requester_id)
	);
	CREATE TABLE IF NOT EXISTS tenant_auth_configs (
		tenant_id TEXT PRIMARY KEY,
		admin_role_id TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// CreateItem inserts an item
func (s *SQLiteStore) CreateItem(ctx context.Context, item *model.Item) error {
	query := `INSERT INTO items (id, payload, report_count, created_at) VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, item.ID, item.Payload, item.ReportCount, item.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by ID
func (s *SQLiteStore) GetItem(ctx context.Context, itemID string) (*model.Item, error) {
	query := `SELECT id, payload, report_count, created_at FROM items WHERE id = ?`

	var item model.Item
	err := s.db.QueryRowContext(ctx, query, itemID).Scan(
		&item.ID,
		&item.Payload,
		&item.ReportCount,
		&item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

// ListItems returns every item ordered by creation time
func (s *SQLiteStore) ListItems(ctx context.Context) ([]*model.Item, error) {
	query := `SELECT id, payload, report_count, created_at FROM items ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *SQLiteStore) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// IncrementReports adds one report in a single statement
func (s *SQLiteStore) IncrementReports(ctx context.Context, itemID string) (int, error) {
	query := `UPDATE items SET report_count = report_count + 1 WHERE id = ? RETURNING report_count`

	var count int
	err := s.db.QueryRowContext(ctx, query, itemID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment reports: %w", err)
	}
	return count, nil
}

// GetUsage retrieves a usage record
func (s *SQLiteStore) GetUsage(ctx context.Context, tenantID, requesterID string) (*model.UsageRecord, error) {
	query := `
		SELECT tenant_id, requester_id, consumed_count, last_reset_at
		FROM usage_records
		WHERE tenant_id = ? AND requester_id = ?
	`

	var rec model.UsageRecord
	err := s.db.QueryRowContext(ctx, query, tenantID, requesterID).Scan(
		&rec.TenantID,
		&rec.RequesterID,
		&rec.ConsumedCount,
		&rec.LastResetAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return &rec, nil
}

// IncrementUsage creates the record at 1 or adds one
func (s *SQLiteStore) IncrementUsage(ctx context.Context, tenantID, requesterID string, now time.Time) (int, error) {
	query := `
		INSERT INTO usage_records (tenant_id, requester_id, consumed_count, last_reset_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (tenant_id, requester_id)
		DO UPDATE SET consumed_count = usage_records.consumed_count + 1
		RETURNING consumed_count
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, tenantID, requesterID, now.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, nil
}

// IncrementUsageIfBelow adds one only while consumed_count < limit. The
// guard lives in the upsert so concurrent callers cannot overshoot.
func (s *SQLiteStore) IncrementUsageIfBelow(ctx context.Context, tenantID, requesterID string, limit int, now time.Time) (int, bool, error) {
	if limit <= 0 {
		current, err := s.currentCount(ctx, tenantID, requesterID)
		return current, false, err
	}

	query := `
		INSERT INTO usage_records (tenant_id, requester_id, consumed_count, last_reset_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (tenant_id, requester_id)
		DO UPDATE SET consumed_count = usage_records.consumed_count + 1
		WHERE usage_records.consumed_count < ?
		RETURNING consumed_count
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, tenantID, requesterID, now.UTC(), limit).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		current, err := s.currentCount(ctx, tenantID, requesterID)
		return current, false, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, true, nil
}

func (s *SQLiteStore) currentCount(ctx context.Context, tenantID, requesterID string) (int, error) {
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
func (s *SQLiteStore) ResetTenant(ctx context.Context, tenantID string, now time.Time) (int64, error) {
	query := `UPDATE usage_records SET consumed_count = 0, last_reset_at = ? WHERE tenant_id = ?`

	result, err := s.db.ExecContext(ctx, query, now.UTC(), tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset tenant usage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reset count: %w", err)
	}

	s.logger.Debug("Reset tenant usage in sqlite",
		zap.String("tenant_id", tenantID),
		zap.Int64("records", n))

	return n, nil
}

// ResetUsage zeroes a single record
func (s *SQLiteStore) ResetUsage(ctx context.Context, tenantID, requesterID string, now time.Time) (bool, error) {
	query := `
		UPDATE usage_records SET consumed_count = 0, last_reset_at = ?
		WHERE tenant_id = ? AND requester_id = ?
	`

	result, err := s.db.ExecContext(ctx, query, now.UTC(), tenantID, requesterID)
	if err != nil {
		return false, fmt.Errorf("failed to reset usage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read reset count: %w", err)
	}
	return n > 0, nil
}

// ListTenants returns tenants that have usage records
func (s *SQLiteStore) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM usage_records ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *SQLiteStore) GetAuthConfig(ctx context.Context, tenantID string) (*model.TenantAuthConfig, error) {
	query := `SELECT tenant_id, admin_role_id, updated_at FROM tenant_auth_configs WHERE tenant_id = ?`

	var cfg model.TenantAuthConfig
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&cfg.TenantID, &cfg.AdminRoleID, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth config: %w", err)
	}
	return &cfg, nil
}

// SetAuthConfig replaces a tenant's admin configuration
func (s *SQLiteStore) SetAuthConfig(ctx context.Context, cfg *model.TenantAuthConfig) error {
	query := `
		INSERT INTO tenant_auth_configs (tenant_id, admin_role_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (tenant_id)
		DO UPDATE SET admin_role_id = excluded.admin_role_id, updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, cfg.TenantID, cfg.AdminRoleID, cfg.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to set auth config: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
