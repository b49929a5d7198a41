package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/store"
	"go.uber.org/zap"
)

const maxIdempotencyKeyLength = 128

// IdempotencyService remembers distribution results by client supplied key
// so a retried request does not consume quota twice
type IdempotencyService struct {
	idempotencyStore store.IdempotencyStore
	ttl              time.Duration
	logger           *zap.Logger
}

// NewIdempotencyService creates a new idempotency service
func NewIdempotencyService(
	idempotencyStore store.IdempotencyStore,
	ttl time.Duration,
	logger *zap.Logger,
) *IdempotencyService {
	return &IdempotencyService{
		idempotencyStore: idempotencyStore,
		ttl:              ttl,
		logger:           logger,
	}
}

// Get returns the stored result, or nil when the key is unknown
func (s *IdempotencyService) Get(ctx context.Context, tenantID, requesterID, idempotencyKey string) (*DistributionResult, error) {
	storeKey := s.buildStoreKey(tenantID, requesterID, idempotencyKey)

	data, err := s.idempotencyStore.Get(ctx, storeKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency response: %w", err)
	}

	var result DistributionResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.logger.Error("Invalid idempotency response",
			zap.String("tenant_id", tenantID),
			zap.String("requester_id", requesterID),
			zap.Error(err))
		return nil, fmt.Errorf("invalid idempotency response: %w", err)
	}

	s.logger.Debug("Idempotency response found",
		zap.String("tenant_id", tenantID),
		zap.String("requester_id", requesterID),
		zap.String("idempotency_key", idempotencyKey))

	return &result, nil
}

// Store records a successful distribution under the key
func (s *IdempotencyService) Store(
	ctx context.Context,
	tenantID, requesterID, idempotencyKey string,
	result *DistributionResult,
) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency response: %w", err)
	}

	storeKey := s.buildStoreKey(tenantID, requesterID, idempotencyKey)
	if err := s.idempotencyStore.Set(ctx, storeKey, data, s.ttl); err != nil {
		return fmt.Errorf("failed to store idempotency response: %w", err)
	}

	s.logger.Debug("Stored idempotency response",
		zap.String("tenant_id", tenantID),
		zap.String("requester_id", requesterID),
		zap.String("idempotency_key", idempotencyKey),
		zap.Duration("ttl", s.ttl))

	return nil
}

// buildStoreKey scopes keys per requester so clients cannot read each
// other's results. Components are escaped so ':' stays a separator.
func (s *IdempotencyService) buildStoreKey(tenantID, requesterID, idempotencyKey string) string {
	return fmt.Sprintf("distribute:%s:%s:%s",
		url.QueryEscape(tenantID), url.QueryEscape(requesterID), url.QueryEscape(idempotencyKey))
}

// ValidateIdempotencyKey accepts up to 128 characters of [A-Za-z0-9._:-]
func ValidateIdempotencyKey(idempotencyKey string) bool {
	if idempotencyKey == "" || len(idempotencyKey) > maxIdempotencyKeyLength {
		return false
	}
	for _, c := range idempotencyKey {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
