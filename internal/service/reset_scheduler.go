package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ResetScheduler zeroes every tenant's usage once per period. The period is
// anchored at Start, not at calendar boundaries.
type ResetScheduler struct {
	ledger      *UsageLedger
	period      time.Duration
	concurrency int
	metrics     *metrics.Metrics
	logger      *zap.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped sync.Once
}

// NewResetScheduler creates a new reset scheduler
func NewResetScheduler(
	ledger *UsageLedger,
	period time.Duration,
	concurrency int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ResetScheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ResetScheduler{
		ledger:      ledger,
		period:      period,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the background loop. Calling Start more than once has no
// effect. The loop ends when ctx is cancelled or Stop is called.
func (s *ResetScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.logger.Info("Starting reset scheduler", zap.Duration("period", s.period))
	go s.loop(ctx)
}

func (s *ResetScheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Scheduled reset incomplete", zap.Error(err))
			}
		}
	}
}

// Stop ends the loop and waits for an in-flight tick to finish. Safe to call
// more than once, and before Start.
func (s *ResetScheduler) Stop() {
	s.stopped.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.doneCh
	}
}

// RunOnce resets every tenant known to the ledger, several tenants at a time.
// A failing tenant does not stop the others; the first failure is returned.
func (s *ResetScheduler) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	defer func() {
		s.metrics.ResetDuration.WithLabelValues("scheduled").Observe(time.Since(start).Seconds())
	}()

	tenants, err := s.ledger.Tenants(ctx)
	if err != nil {
		return 0, err
	}

	var (
		g     errgroup.Group
		total atomic.Int64
	)
	g.SetLimit(s.concurrency)

	for _, tenantID := range tenants {
		g.Go(func() error {
			n, err := s.ledger.ResetAll(ctx, tenantID)
			total.Add(n)
			if err != nil {
				s.metrics.ResetFailures.Inc()
				s.logger.Error("Failed to reset tenant",
					zap.String("tenant_id", tenantID),
					zap.Error(err))
				return err
			}
			s.metrics.RecordReset("scheduled", "tenant", n)
			return nil
		})
	}

	err = g.Wait()

	s.logger.Info("Scheduled reset finished",
		zap.Int("tenants", len(tenants)),
		zap.Int64("records", total.Load()),
		zap.Duration("duration", time.Since(start)))

	return total.Load(), err
}
