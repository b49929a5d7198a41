package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	dserrors "github.com/Dominus-Proxius/Dominum-Dispenser/internal/errors"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/metrics"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/store"
	"go.uber.org/zap"
)

const authCacheType = "tenant_auth"

// AuthGate decides whether a requester holds delegated admin authority in a
// tenant. Delegation is opt-in: without a configured role nobody passes.
type AuthGate struct {
	store    store.AuthConfigStore
	cache    store.Cache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewAuthGate creates a new authorization gate
func NewAuthGate(
	authStore store.AuthConfigStore,
	cache store.Cache,
	cacheTTL time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AuthGate {
	return &AuthGate{
		store:    authStore,
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  m,
		now:      time.Now,
		logger:   logger,
	}
}

// IsAdmin reports whether roles contain the tenant's configured admin role
func (g *AuthGate) IsAdmin(ctx context.Context, tenantID, requesterID string, roles []string) (bool, error) {
	cfg, err := g.config(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if !cfg.HasAdminRole() {
		return false, nil
	}

	caller := model.Caller{TenantID: tenantID, RequesterID: requesterID, Roles: roles}
	return caller.HasRole(cfg.AdminRoleID), nil
}

// AdminRole returns the configured admin role, or "" when none is set
func (g *AuthGate) AdminRole(ctx context.Context, tenantID string) (string, error) {
	cfg, err := g.config(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return cfg.AdminRoleID, nil
}

// SetAdminRole replaces the tenant's admin role. Callers must have checked
// authority first.
func (g *AuthGate) SetAdminRole(ctx context.Context, tenantID, roleID string) (*model.TenantAuthConfig, error) {
	if tenantID == "" {
		return nil, dserrors.InvalidInput("tenant_id is required")
	}
	if roleID == "" {
		return nil, dserrors.InvalidInput("role_id is required")
	}

	cfg := &model.TenantAuthConfig{
		TenantID:    tenantID,
		AdminRoleID: roleID,
		UpdatedAt:   g.now(),
	}
	if err := g.store.SetAuthConfig(ctx, cfg); err != nil {
		return nil, dserrors.StorageUnavailable("set admin role", err)
	}

	if err := g.cache.Delete(ctx, g.cacheKey(tenantID)); err != nil {
		g.logger.Warn("Failed to invalidate tenant auth cache",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}

	g.logger.Info("Admin role updated",
		zap.String("tenant_id", tenantID),
		zap.String("admin_role_id", roleID))

	return cfg, nil
}

// config loads the tenant's configuration, using the cache when possible.
// A tenant without a stored configuration yields an empty one, which is
// cached too.
func (g *AuthGate) config(ctx context.Context, tenantID string) (*model.TenantAuthConfig, error) {
	if tenantID == "" {
		return nil, dserrors.InvalidInput("tenant_id is required")
	}

	cacheKey := g.cacheKey(tenantID)
	if cached, err := g.cache.Get(ctx, cacheKey); err == nil && cached != nil {
		if cfg, ok := cached.(*model.TenantAuthConfig); ok {
			g.metrics.RecordCacheHit(authCacheType)
			return cfg, nil
		}
	}
	g.metrics.RecordCacheMiss(authCacheType)

	cfg, err := g.store.GetAuthConfig(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		cfg = &model.TenantAuthConfig{TenantID: tenantID}
	} else if err != nil {
		return nil, dserrors.StorageUnavailable("get auth config", err)
	}

	if err := g.cache.Set(ctx, cacheKey, cfg, g.cacheTTL); err != nil {
		g.logger.Warn("Failed to cache tenant auth config",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
	return cfg, nil
}

func (g *AuthGate) cacheKey(tenantID string) string {
	return fmt.Sprintf("auth:%s", tenantID)
}
