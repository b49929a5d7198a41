package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/algorithm"
	dserrors "github.com/Dominus-Proxius/Dominum-Dispenser/internal/errors"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/metrics"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ItemService manages the shared item pool and its reports
type ItemService struct {
	store            store.ItemStore
	selector         *algorithm.Selector
	maxPayloadLength int
	metrics          *metrics.Metrics
	now              func() time.Time
	logger           *zap.Logger
}

// NewItemService creates a new item service
func NewItemService(
	itemStore store.ItemStore,
	selector *algorithm.Selector,
	maxPayloadLength int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ItemService {
	return &ItemService{
		store:            itemStore,
		selector:         selector,
		maxPayloadLength: maxPayloadLength,
		metrics:          m,
		now:              time.Now,
		logger:           logger,
	}
}

// Submit adds a new item with zero reports
func (s *ItemService) Submit(ctx context.Context, payload string) (*model.Item, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, dserrors.InvalidInput("payload is required")
	}
	if !utf8.ValidString(payload) {
		return nil, dserrors.InvalidInput("payload must be valid UTF-8")
	}
	if s.maxPayloadLength > 0 && utf8.RuneCountInString(payload) > s.maxPayloadLength {
		return nil, dserrors.InvalidInput(
			fmt.Sprintf("payload exceeds %d characters", s.maxPayloadLength))
	}

	item := &model.Item{
		ID:        uuid.NewString(),
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, dserrors.StorageUnavailable("create item", err)
	}

	s.metrics.ItemsSubmitted.Inc()
	s.logger.Info("Item submitted", zap.String("item_id", item.ID))

	return item, nil
}

// Report adds exactly one report and returns the new count. Items are never
// removed; crossing the threshold only excludes them from selection.
func (s *ItemService) Report(ctx context.Context, itemID string) (int, error) {
	if _, err := uuid.Parse(itemID); err != nil {
		return 0, dserrors.InvalidInput(fmt.Sprintf("invalid item id %q", itemID))
	}

	count, err := s.store.IncrementReports(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, dserrors.ItemNotFound(itemID)
	}
	if err != nil {
		return 0, dserrors.StorageUnavailable("report item", err)
	}

	s.metrics.ReportsTotal.Inc()
	if count == model.ReportThreshold {
		s.metrics.ItemsExcluded.Inc()
		s.logger.Info("Item excluded from rotation",
			zap.String("item_id", itemID),
			zap.Int("report_count", count))
	}

	return count, nil
}

// Draw selects one eligible item uniformly at random without modifying it
func (s *ItemService) Draw(ctx context.Context) (*model.Item, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, dserrors.StorageUnavailable("list items", err)
	}

	eligible := algorithm.Eligible(items, model.ReportThreshold)
	s.metrics.EligibleItems.Set(float64(len(eligible)))

	item, err := s.selector.Select(eligible)
	if errors.Is(err, algorithm.ErrNoEligibleItems) {
		return nil, dserrors.NoEligibleItems()
	}
	if err != nil {
		return nil, dserrors.Internal("select item", err)
	}
	return item, nil
}

// List returns the whole pool, including excluded items
func (s *ItemService) List(ctx context.Context) ([]*model.Item, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, dserrors.StorageUnavailable("list items", err)
	}
	return items, nil
}

// Seed submits payloads when the pool is empty and returns how many were added
func (s *ItemService) Seed(ctx context.Context, payloads []string) (int, error) {
	n, err := s.store.CountItems(ctx)
	if err != nil {
		return 0, dserrors.StorageUnavailable("count items", err)
	}
	if n > 0 {
		s.logger.Info("Item pool not empty, skipping seed", zap.Int("items", n))
		return 0, nil
	}

	added := 0
	for _, p := range payloads {
		if _, err := s.Submit(ctx, p); err != nil {
			return added, err
		}
		added++
	}

	s.logger.Info("Seeded item pool", zap.Int("items", added))
	return added, nil
}
