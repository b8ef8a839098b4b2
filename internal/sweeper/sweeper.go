// Package sweeper reclaims inventory from abandoned sessions. It is the
// liveness guarantee: no client callback is ever required for a hold to
// come back.
package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ticketry/boxoffice/internal/clock"
	"github.com/ticketry/boxoffice/internal/domain"
	"github.com/ticketry/boxoffice/internal/observability"
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error)
	TransitionHold(ctx context.Context, sessionID uuid.UUID, from, to domain.HoldStatus) (bool, error)
}

// Notifier publishes hold lifecycle events after a sweep. Optional.
type Notifier interface {
	HoldExpired(ctx context.Context, hold domain.Hold) error
}

type Sweeper struct {
	store      Store
	clock      clock.Clock
	notifier   Notifier
	logger     observability.Logger
	batchSize  int
	maxRetries int
}

func New(store Store, clk clock.Clock, notifier Notifier, logger observability.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		clock:      clk,
		notifier:   notifier,
		logger:     logger,
		batchSize:  100,
		maxRetries: 3,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.WithError(err).Error("sweep failed")
			}
		}
	}
}

// SweepOnce expires every ACTIVE hold past its deadline and returns how many
// it reclaimed. The conditional transition means a concurrent confirm or
// release for the same session cannot be clobbered: only one terminal
// transition wins.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	holds, err := s.store.ListExpiredHolds(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, hold := range holds {
		expired, err := s.expireWithRetry(ctx, hold)
		if err != nil {
			s.logger.WithError(err).WithField("session_id", hold.SessionID).Error("could not expire hold")
			continue
		}
		if !expired {
			// Lost the race to confirm or release; nothing to reclaim.
			continue
		}
		swept++
		observability.HoldsExpired.Inc()
		s.logger.WithField("session_id", hold.SessionID).Info("hold expired")

		if s.notifier != nil {
			if err := s.notifier.HoldExpired(ctx, hold); err != nil {
				s.logger.WithError(err).WithField("session_id", hold.SessionID).Warn("expiry notification failed")
			}
		}
	}
	return swept, nil
}

func (s *Sweeper) expireWithRetry(ctx context.Context, hold domain.Hold) (bool, error) {
	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		var expired bool
		err := s.store.WithTx(ctx, func(txCtx context.Context) error {
			var err error
			expired, err = s.store.TransitionHold(txCtx, hold.SessionID, domain.HoldStatusActive, domain.HoldStatusExpired)
			return err
		})
		if err == nil {
			return expired, nil
		}
		lastErr = err

		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return false, lastErr
}
