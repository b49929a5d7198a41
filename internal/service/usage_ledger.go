package service

import (
	"context"
	"errors"
	"time"

	dserrors "github.com/Dominus-Proxius/Dominum-Dispenser/internal/errors"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/store"
	"go.uber.org/zap"
)

// UsageLedger tracks per (tenant, requester) consumption. Every operation is
// linearizable per key; the guarantee comes from the backing store.
type UsageLedger struct {
	store  store.UsageStore
	now    func() time.Time
	logger *zap.Logger
}

// NewUsageLedger creates a new usage ledger
func NewUsageLedger(usageStore store.UsageStore, logger *zap.Logger) *UsageLedger {
	return &UsageLedger{
		store:  usageStore,
		now:    time.Now,
		logger: logger,
	}
}

func validateKey(tenantID, requesterID string) error {
	if tenantID == "" {
		return dserrors.InvalidInput("tenant_id is required")
	}
	if requesterID == "" {
		return dserrors.InvalidInput("requester_id is required")
	}
	return nil
}

// Get returns the consumed count. A requester without a record has consumed 0.
func (l *UsageLedger) Get(ctx context.Context, tenantID, requesterID string) (int, error) {
	rec, err := l.Usage(ctx, tenantID, requesterID)
	if err != nil {
		return 0, err
	}
	return rec.ConsumedCount, nil
}

// Usage returns the full record, synthesizing a zero record when absent
func (l *UsageLedger) Usage(ctx context.Context, tenantID, requesterID string) (*model.UsageRecord, error) {
	if err := validateKey(tenantID, requesterID); err != nil {
		return nil, err
	}

	rec, err := l.store.GetUsage(ctx, tenantID, requesterID)
	if errors.Is(err, store.ErrNotFound) {
		return &model.UsageRecord{TenantID: tenantID, RequesterID: requesterID}, nil
	}
	if err != nil {
		return nil, dserrors.StorageUnavailable("get usage", err)
	}
	return rec, nil
}

// Increment creates the record at 1 or adds exactly 1, returning the new count
func (l *UsageLedger) Increment(ctx context.Context, tenantID, requesterID string) (int, error) {
	if err := validateKey(tenantID, requesterID); err != nil {
		return 0, err
	}

	n, err := l.store.IncrementUsage(ctx, tenantID, requesterID, l.now())
	if err != nil {
		return 0, dserrors.StorageUnavailable("increment usage", err)
	}
	return n, nil
}

// TryIncrement adds 1 only while the count is below limit. It returns the
// resulting count and whether the increment was applied.
func (l *UsageLedger) TryIncrement(ctx context.Context, tenantID, requesterID string, limit int) (int, bool, error) {
	if err := validateKey(tenantID, requesterID); err != nil {
		return 0, false, err
	}

	n, ok, err := l.store.IncrementUsageIfBelow(ctx, tenantID, requesterID, limit, l.now())
	if err != nil {
		return 0, false, dserrors.StorageUnavailable("increment usage", err)
	}
	return n, ok, nil
}

// ResetAll zeroes every record of the tenant and returns how many were reset
func (l *UsageLedger) ResetAll(ctx context.Context, tenantID string) (int64, error) {
	if tenantID == "" {
		return 0, dserrors.InvalidInput("tenant_id is required")
	}

	n, err := l.store.ResetTenant(ctx, tenantID, l.now())
	if err != nil {
		return n, dserrors.StorageUnavailable("reset tenant usage", err)
	}

	l.logger.Info("Reset tenant usage",
		zap.String("tenant_id", tenantID),
		zap.Int64("records", n))

	return n, nil
}

// ResetOne zeroes a single record and reports whether it existed. Resetting
// a requester without a record is a no-op.
func (l *UsageLedger) ResetOne(ctx context.Context, tenantID, requesterID string) (bool, error) {
	if err := validateKey(tenantID, requesterID); err != nil {
		return false, err
	}

	existed, err := l.store.ResetUsage(ctx, tenantID, requesterID, l.now())
	if err != nil {
		return false, dserrors.StorageUnavailable("reset usage", err)
	}

	l.logger.Info("Reset requester usage",
		zap.String("tenant_id", tenantID),
		zap.String("requester_id", requesterID),
		zap.Bool("existed", existed))

	return existed, nil
}

// Tenants lists tenants that have usage records
func (l *UsageLedger) Tenants(ctx context.Context) ([]string, error) {
	tenants, err := l.store.ListTenants(ctx)
	if err != nil {
		return nil, dserrors.StorageUnavailable("list tenants", err)
	}
	return tenants, nil
}
