package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises behaviour every Store backend must share.
// newStore must return an empty store.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("Items", func(t *testing.T) { testItems(t, newStore(t)) })
	t.Run("IncrementReports", func(t *testing.T) { testIncrementReports(t, newStore(t)) })
	t.Run("UsageIncrement", func(t *testing.T) { testUsageIncrement(t, newStore(t)) })
	t.Run("UsageIncrementIfBelow", func(t *testing.T) { testUsageIncrementIfBelow(t, newStore(t)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, newStore(t)) })
	t.Run("ConcurrentGuardedIncrements", func(t *testing.T) { testConcurrentGuardedIncrements(t, newStore(t)) })
	t.Run("ResetRacesIncrement", func(t *testing.T) { testResetRacesIncrement(t, newStore(t)) })
	t.Run("ResetTenantDuringOtherTenantIncrements", func(t *testing.T) { testResetTenantDuringOtherTenantIncrements(t, newStore(t)) })
	t.Run("ResetTenant", func(t *testing.T) { testResetTenant(t, newStore(t)) })
	t.Run("ResetUsage", func(t *testing.T) { testResetUsage(t, newStore(t)) })
	t.Run("AuthConfig", func(t *testing.T) { testAuthConfig(t, newStore(t)) })
}

var suiteNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newItem(payload string, createdAt time.Time) *model.Item {
	return &model.Item{
		ID:        uuid.NewString(),
		Payload:   payload,
		CreatedAt: createdAt,
	}
}

func testItems(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.GetItem(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	first := newItem("https://example.com/a", suiteNow)
	second := newItem("https://example.com/b", suiteNow.Add(time.Second))
	require.NoError(t, s.CreateItem(ctx, second))
	require.NoError(t, s.CreateItem(ctx, first))

	got, err := s.GetItem(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "https://example.com/a", got.Payload)
	assert.Equal(t, 0, got.ReportCount)
	assert.True(t, got.CreatedAt.Equal(suiteNow), "created_at %v", got.CreatedAt)

	items, err := s.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)

	n, err := s.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testIncrementReports(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.IncrementReports(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	item := newItem("https://example.com/x", suiteNow)
	require.NoError(t, s.CreateItem(ctx, item))

	for want := 1; want <= 4; want++ {
		got, err := s.IncrementReports(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	stored, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.ReportCount)
	assert.False(t, stored.Eligible())
}

func testUsageIncrement(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.GetUsage(ctx, "guild-1", "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.IncrementUsage(ctx, "guild-1", "alice", suiteNow)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.IncrementUsage(ctx, "guild-1", "alice", suiteNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := s.GetUsage(ctx, "guild-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "guild-1", rec.TenantID)
	assert.Equal(t, "alice", rec.RequesterID)
	assert.Equal(t, 2, rec.ConsumedCount)
	// Stamped at creation only
	assert.True(t, rec.LastResetAt.Equal(suiteNow), "last_reset_at %v", rec.LastResetAt)

	_, err = s.GetUsage(ctx, "guild-2", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testUsageIncrementIfBelow(t *testing.T, s Store) {
	ctx := context.Background()

	n, ok, err := s.IncrementUsageIfBelow(ctx, "guild-1", "bob", 0, suiteNow)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, n)
	_, err = s.GetUsage(ctx, "guild-1", "bob")
	assert.ErrorIs(t, err, ErrNotFound, "a rejected increment must not create a record")

	for want := 1; want <= 3; want++ {
		n, ok, err = s.IncrementUsageIfBelow(ctx, "guild-1", "bob", 3, suiteNow)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, n)
	}

	n, ok, err = s.IncrementUsageIfBelow(ctx, "guild-1", "bob", 3, suiteNow)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, n)

	// Raising the limit lets the counter continue
	n, ok, err = s.IncrementUsageIfBelow(ctx, "guild-1", "bob", 4, suiteNow)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, n)
}

func testConcurrentIncrements(t *testing.T, s Store) {
	ctx := context.Background()
	const workers, perWorker = 20, 10

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := s.IncrementUsage(ctx, "guild-1", "carol", suiteNow)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	rec, err := s.GetUsage(ctx, "guild-1", "carol")
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, rec.ConsumedCount)
}

// A reset racing an increment on the same key must leave either the
// increment applied after the reset (1) or the reset applied last (0).
func testResetRacesIncrement(t *testing.T, s Store) {
	ctx := context.Background()
	const rounds = 40

	for round := 0; round < rounds; round++ {
		tenantID := fmt.Sprintf("race-%d", round)
		for i := 0; i < 3; i++ {
			_, err := s.IncrementUsage(ctx, tenantID, "dave", suiteNow)
			require.NoError(t, err)
		}

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.IncrementUsage(ctx, tenantID, "dave", suiteNow)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			<-start
			var err error
			if round%2 == 0 {
				_, err = s.ResetUsage(ctx, tenantID, "dave", suiteNow)
			} else {
				_, err = s.ResetTenant(ctx, tenantID, suiteNow)
			}
			assert.NoError(t, err)
		}()
		close(start)
		wg.Wait()

		rec, err := s.GetUsage(ctx, tenantID, "dave")
		require.NoError(t, err)
		assert.Contains(t, []int{0, 1}, rec.ConsumedCount, "round %d", round)
	}
}

func testResetTenantDuringOtherTenantIncrements(t *testing.T, s Store) {
	ctx := context.Background()
	const workers, perWorker = 8, 15

	for _, requesterID := range []string{"alice", "bob", "carol"} {
		_, err := s.IncrementUsage(ctx, "guild-1", requesterID, suiteNow)
		require.NoError(t, err)
	}

	var (
		wg   sync.WaitGroup
		done = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(requesterID string) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := s.IncrementUsage(ctx, "guild-2", requesterID, suiteNow)
				assert.NoError(t, err)
			}
		}(fmt.Sprintf("member-%d", i))
	}

	resetDone := make(chan struct{})
	go func() {
		defer close(resetDone)
		for {
			_, err := s.ResetTenant(ctx, "guild-1", suiteNow)
			assert.NoError(t, err)
			select {
			case <-done:
				return
			default:
			}
		}
	}()

	wg.Wait()
	close(done)
	<-resetDone

	for i := 0; i < workers; i++ {
		rec, err := s.GetUsage(ctx, "guild-2", fmt.Sprintf("member-%d", i))
		require.NoError(t, err)
		assert.Equal(t, perWorker, rec.ConsumedCount)
	}
	for _, requesterID := range []string{"alice", "bob", "carol"} {
		rec, err := s.GetUsage(ctx, "guild-1", requesterID)
		require.NoError(t, err)
		assert.Equal(t, 0, rec.ConsumedCount)
	}
}

func testConcurrentGuardedIncrements(t *testing.T, s Store) {
	ctx := context.Background()
	const attempts, limit = 50, 7

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.IncrementUsageIfBelow(ctx, "guild-1", "dave", limit, suiteNow)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, granted)
	rec, err := s.GetUsage(ctx, "guild-1", "dave")
	require.NoError(t, err)
	assert.Equal(t, limit, rec.ConsumedCount)
}

func testResetTenant(t *testing.T, s Store) {
	ctx := context.Background()

	for _, r := range []string{"a", "b", "c"} {
		_, err := s.IncrementUsage(ctx, "guild-1", r, suiteNow)
		require.NoError(t, err)
		_, err = s.IncrementUsage(ctx, "guild-1", r, suiteNow)
		require.NoError(t, err)
	}
	_, err := s.IncrementUsage(ctx, "guild-2", "a", suiteNow)
	require.NoError(t, err)

	tenants, err := s.ListTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"guild-1", "guild-2"}, tenants)

	later := suiteNow.Add(7 * 24 * time.Hour)
	n, err := s.ResetTenant(ctx, "guild-1", later)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, r := range []string{"a", "b", "c"} {
		rec, err := s.GetUsage(ctx, "guild-1", r)
		require.NoError(t, err)
		assert.Equal(t, 0, rec.ConsumedCount)
		assert.True(t, rec.LastResetAt.Equal(later))
	}

	other, err := s.GetUsage(ctx, "guild-2", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, other.ConsumedCount)

	n, err = s.ResetTenant(ctx, "guild-unknown", later)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func testResetUsage(t *testing.T, s Store) {
	ctx := context.Background()

	ok, err := s.ResetUsage(ctx, "guild-1", "nobody", suiteNow)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.IncrementUsage(ctx, "guild-1", "a", suiteNow)
	require.NoError(t, err)
	_, err = s.IncrementUsage(ctx, "guild-1", "b", suiteNow)
	require.NoError(t, err)

	ok, err = s.ResetUsage(ctx, "guild-1", "a", suiteNow.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	a, err := s.GetUsage(ctx, "guild-1", "a")
	require.NoError(t, err)
	assert.Equal(t, 0, a.ConsumedCount)

	b, err := s.GetUsage(ctx, "guild-1", "b")
	require.NoError(t, err)
	assert.Equal(t, 1, b.ConsumedCount)
}

func testAuthConfig(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.GetAuthConfig(ctx, "guild-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetAuthConfig(ctx, &model.TenantAuthConfig{
		TenantID:    "guild-1",
		AdminRoleID: "role-mods",
		UpdatedAt:   suiteNow,
	}))
	require.NoError(t, s.SetAuthConfig(ctx, &model.TenantAuthConfig{
		TenantID:    "guild-1",
		AdminRoleID: "role-admins",
		UpdatedAt:   suiteNow.Add(time.Hour),
	}))

	cfg, err := s.GetAuthConfig(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, "role-admins", cfg.AdminRoleID)
	assert.True(t, cfg.UpdatedAt.Equal(suiteNow.Add(time.Hour)))

	_, err = s.GetAuthConfig(ctx, "guild-2")
	assert.ErrorIs(t, err, ErrNotFound)
}
