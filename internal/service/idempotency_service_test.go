package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIdempotencyService_StoreAndGet(t *testing.T) {
	svc := NewIdempotencyService(store.NewCacheIdempotencyStore(newTestCache(t)), time.Minute, zap.NewNop())
	ctx := context.Background()

	got, err := svc.Get(ctx, "guild-1", "alice", "req-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	result := &DistributionResult{
		Item:      &model.Item{ID: "0b7e5f0c-3a52-4a8e-9a3c-2f8f6a1d2e11", Payload: "https://example.com/x"},
		Consumed:  2,
		Allowance: 4,
		Remaining: 2,
	}
	require.NoError(t, svc.Store(ctx, "guild-1", "alice", "req-1", result))

	got, err = svc.Get(ctx, "guild-1", "alice", "req-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, result.Item.ID, got.Item.ID)
	assert.Equal(t, 2, got.Remaining)

	got, err = svc.Get(ctx, "guild-2", "alice", "req-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIdempotencyService_ColonsDoNotShareEntries(t *testing.T) {
	svc := NewIdempotencyService(store.NewCacheIdempotencyStore(newTestCache(t)), time.Minute, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.Store(ctx, "a", "b:c", "k", &DistributionResult{Consumed: 1}))

	for _, other := range [][3]string{
		{"a:b", "c", "k"},
		{"a", "b", "c:k"},
	} {
		got, err := svc.Get(ctx, other[0], other[1], other[2])
		require.NoError(t, err)
		assert.Nil(t, got, "tenant %q requester %q key %q", other[0], other[1], other[2])
	}

	got, err := svc.Get(ctx, "a", "b:c", "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Consumed)
}

func TestIdempotencyService_EscapesStoreKey(t *testing.T) {
	mockStore := new(MockIdempotencyStore)
	svc := NewIdempotencyService(mockStore, time.Minute, zap.NewNop())

	mockStore.On("Get", mock.Anything, "distribute:a%3Ab:c:k%3A1").Return(nil, store.ErrNotFound)

	got, err := svc.Get(context.Background(), "a:b", "c", "k:1")
	require.NoError(t, err)
	assert.Nil(t, got)
	mockStore.AssertExpectations(t)
}

func TestIdempotencyService_CorruptEntry(t *testing.T) {
	mockStore := new(MockIdempotencyStore)
	svc := NewIdempotencyService(mockStore, time.Minute, zap.NewNop())

	mockStore.On("Get", mock.Anything, "distribute:guild-1:alice:req-1").Return([]byte("{not json"), nil)

	_, err := svc.Get(context.Background(), "guild-1", "alice", "req-1")
	assert.Error(t, err)
}

func TestIdempotencyService_StoreFailure(t *testing.T) {
	mockStore := new(MockIdempotencyStore)
	svc := NewIdempotencyService(mockStore, 5*time.Minute, zap.NewNop())
	boom := errors.New("read only replica")

	mockStore.On("Set", mock.Anything, "distribute:guild-1:alice:req-1", mock.Anything, 5*time.Minute).Return(boom)

	err := svc.Store(context.Background(), "guild-1", "alice", "req-1", &DistributionResult{})
	assert.ErrorIs(t, err, boom)
	mockStore.AssertExpectations(t)
}

func TestValidateIdempotencyKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"req-1", true},
		{"a.b_c:d-E9", true},
		{strings.Repeat("k", 128), true},
		{"", false},
		{strings.Repeat("k", 129), false},
		{"has space", false},
		{"slash/key", false},
		{"ключ", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidateIdempotencyKey(tt.key), "key %q", tt.key)
	}
}
