package service

import (
	"context"
	"strings"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/algorithm"
	dserrors "github.com/Dominus-Proxius/Dominum-Dispenser/internal/errors"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/metrics"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"go.uber.org/zap"
)

// DistributionResult is returned by a successful Distribute
type DistributionResult struct {
	Item      *model.Item `json:"item"`
	Consumed  int         `json:"consumed"`
	Allowance int         `json:"allowance"`
	Remaining int         `json:"remaining"`
}

// UsageStatus describes a requester's quota position
type UsageStatus struct {
	model.UsageRecord
	Allowance int `json:"allowance"`
	Remaining int `json:"remaining"`
}

// Engine implements the inbound commands on top of the quota and rotation
// components
type Engine struct {
	tiers       *algorithm.TierResolver
	ledger      *UsageLedger
	items       *ItemService
	gate        *AuthGate
	idempotency *IdempotencyService
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewEngine creates a new engine. idempotency may be nil.
func NewEngine(
	tiers *algorithm.TierResolver,
	ledger *UsageLedger,
	items *ItemService,
	gate *AuthGate,
	idempotency *IdempotencyService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		tiers:       tiers,
		ledger:      ledger,
		items:       items,
		gate:        gate,
		idempotency: idempotency,
		metrics:     m,
		logger:      logger,
	}
}

func validateCaller(caller model.Caller) error {
	if strings.TrimSpace(caller.TenantID) == "" {
		return dserrors.InvalidInput("tenant_id is required")
	}
	if strings.TrimSpace(caller.RequesterID) == "" {
		return dserrors.InvalidInput("requester_id is required")
	}
	return nil
}

// Distribute hands one eligible item to the caller if their quota allows it
func (e *Engine) Distribute(ctx context.Context, caller model.Caller) (*DistributionResult, error) {
	result, err := e.distribute(ctx, caller)
	e.metrics.RecordDistribution(outcome(err))
	return result, err
}

func (e *Engine) distribute(ctx context.Context, caller model.Caller) (*DistributionResult, error) {
	if err := validateCaller(caller); err != nil {
		return nil, err
	}

	allowance := e.tiers.Resolve(caller.Roles)

	consumed, err := e.ledger.Get(ctx, caller.TenantID, caller.RequesterID)
	if err != nil {
		return nil, err
	}
	if consumed >= allowance {
		return nil, dserrors.QuotaExceeded(caller.TenantID, caller.RequesterID, consumed, allowance)
	}

	item, err := e.items.Draw(ctx)
	if err != nil {
		return nil, err
	}

	// The guarded increment closes the window between the read above and
	// this write for concurrent requests from the same requester.
	consumed, ok, err := e.ledger.TryIncrement(ctx, caller.TenantID, caller.RequesterID, allowance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dserrors.QuotaExceeded(caller.TenantID, caller.RequesterID, consumed, allowance)
	}

	e.logger.Info("Item distributed",
		zap.String("tenant_id", caller.TenantID),
		zap.String("requester_id", caller.RequesterID),
		zap.String("item_id", item.ID),
		zap.Int("consumed", consumed),
		zap.Int("allowance", allowance))

	return &DistributionResult{
		Item:      item,
		Consumed:  consumed,
		Allowance: allowance,
		Remaining: allowance - consumed,
	}, nil
}

// DistributeIdempotent behaves like Distribute but replays the stored result
// when idempotencyKey was already used by the same requester. The bool
// reports a replay.
func (e *Engine) DistributeIdempotent(ctx context.Context, caller model.Caller, idempotencyKey string) (*DistributionResult, bool, error) {
	if e.idempotency == nil || idempotencyKey == "" {
		result, err := e.Distribute(ctx, caller)
		return result, false, err
	}
	if !ValidateIdempotencyKey(idempotencyKey) {
		return nil, false, dserrors.InvalidInput("invalid idempotency key")
	}
	if err := validateCaller(caller); err != nil {
		return nil, false, err
	}

	cached, err := e.idempotency.Get(ctx, caller.TenantID, caller.RequesterID, idempotencyKey)
	if err != nil {
		e.logger.Warn("Idempotency lookup failed, distributing without replay",
			zap.String("tenant_id", caller.TenantID),
			zap.String("requester_id", caller.RequesterID),
			zap.Error(err))
	}
	if cached != nil {
		e.metrics.IdempotentReplays.Inc()
		return cached, true, nil
	}

	result, err := e.Distribute(ctx, caller)
	if err != nil {
		return nil, false, err
	}

	if err := e.idempotency.Store(ctx, caller.TenantID, caller.RequesterID, idempotencyKey, result); err != nil {
		e.logger.Warn("Failed to store idempotency response",
			zap.String("tenant_id", caller.TenantID),
			zap.String("requester_id", caller.RequesterID),
			zap.Error(err))
	}
	return result, false, nil
}

// Submit adds an item to the shared pool
func (e *Engine) Submit(ctx context.Context, payload string) (*model.Item, error) {
	return e.items.Submit(ctx, payload)
}

// ReportItem adds one report to an item and returns its new report count
func (e *Engine) ReportItem(ctx context.Context, itemID string) (int, error) {
	return e.items.Report(ctx, itemID)
}

// ListItems returns the whole pool with report counts
func (e *Engine) ListItems(ctx context.Context) ([]*model.Item, error) {
	return e.items.List(ctx)
}

// ResetAll zeroes every requester's usage in the caller's tenant
func (e *Engine) ResetAll(ctx context.Context, caller model.Caller) (int64, error) {
	if err := e.authorize(ctx, caller, "reset"); err != nil {
		return 0, err
	}

	n, err := e.ledger.ResetAll(ctx, caller.TenantID)
	if err != nil {
		return n, err
	}
	e.metrics.RecordReset("manual", "tenant", n)
	return n, nil
}

// ResetOne zeroes a single requester's usage in the caller's tenant. It
// reports 1 when a record was reset and 0 when the requester had none.
func (e *Engine) ResetOne(ctx context.Context, caller model.Caller, targetRequesterID string) (int64, error) {
	if err := e.authorize(ctx, caller, "reset requester"); err != nil {
		return 0, err
	}
	if strings.TrimSpace(targetRequesterID) == "" {
		return 0, dserrors.InvalidInput("target requester_id is required")
	}

	existed, err := e.ledger.ResetOne(ctx, caller.TenantID, targetRequesterID)
	if err != nil {
		return 0, err
	}
	var n int64
	if existed {
		n = 1
	}
	e.metrics.RecordReset("manual", "requester", n)
	return n, nil
}

// SetAdminRole replaces the tenant's delegated admin role
func (e *Engine) SetAdminRole(ctx context.Context, caller model.Caller, roleID string) (*model.TenantAuthConfig, error) {
	if err := e.authorize(ctx, caller, "set admin role"); err != nil {
		return nil, err
	}
	return e.gate.SetAdminRole(ctx, caller.TenantID, strings.TrimSpace(roleID))
}

// AdminRole returns the tenant's delegated admin role, or ""
func (e *Engine) AdminRole(ctx context.Context, tenantID string) (string, error) {
	return e.gate.AdminRole(ctx, tenantID)
}

// UsageStatus reports the caller's consumption against their allowance
func (e *Engine) UsageStatus(ctx context.Context, caller model.Caller) (*UsageStatus, error) {
	if err := validateCaller(caller); err != nil {
		return nil, err
	}

	rec, err := e.ledger.Usage(ctx, caller.TenantID, caller.RequesterID)
	if err != nil {
		return nil, err
	}

	allowance := e.tiers.Resolve(caller.Roles)
	remaining := allowance - rec.ConsumedCount
	if remaining < 0 {
		remaining = 0
	}
	return &UsageStatus{
		UsageRecord: *rec,
		Allowance:   allowance,
		Remaining:   remaining,
	}, nil
}

// authorize admits platform admins and holders of the tenant's admin role
func (e *Engine) authorize(ctx context.Context, caller model.Caller, operation string) error {
	if err := validateCaller(caller); err != nil {
		return err
	}
	if caller.PlatformAdmin {
		return nil
	}

	ok, err := e.gate.IsAdmin(ctx, caller.TenantID, caller.RequesterID, caller.Roles)
	if err != nil {
		return err
	}
	if !ok {
		e.metrics.UnauthorizedTotal.WithLabelValues(operation).Inc()
		e.logger.Warn("Unauthorized administrative command",
			zap.String("tenant_id", caller.TenantID),
			zap.String("requester_id", caller.RequesterID),
			zap.String("operation", operation))
		return dserrors.Unauthorized(caller.TenantID, caller.RequesterID, operation)
	}
	return nil
}

// outcome maps a distribution error to its metric label
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(dserrors.CodeOf(err)))
}
