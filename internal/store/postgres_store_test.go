package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestPostgresStore runs the shared suite against a live database named by
// POSTGRES_TEST_DSN. Tables are truncated before each case.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	s, err := NewPostgresStoreFromDSN(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	runStoreSuite(t, func(t *testing.T) Store {
		_, err := s.pool.Exec(ctx, `TRUNCATE items, usage_records, tenant_auth_configs`)
		require.NoError(t, err)
		return s
	})
}
