// Package availability is the read-side projection for the storefront
// polling endpoint. It never takes the locks acquire takes; staleness up to
// the poll interval is fine because acquire is the source of truth at
// purchase time.
package availability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ticketry/boxoffice/internal/clock"
	"github.com/ticketry/boxoffice/internal/domain"
	"github.com/ticketry/boxoffice/internal/observability"
)

type Store interface {
	GetTicketType(ctx context.Context, id uuid.UUID) (domain.TicketType, error)
	ListTicketTypes(ctx context.Context, functionID uuid.UUID) ([]domain.TicketType, error)
	SumActiveHolds(ctx context.Context, ticketTypeID uuid.UUID, now time.Time) (int, error)
}

// Snapshot caches per-function availability for the polling endpoint.
// Optional; a nil cache computes every read from the store.
type Snapshot interface {
	Get(ctx context.Context, functionID uuid.UUID) (map[uuid.UUID]int, bool, error)
	Set(ctx context.Context, functionID uuid.UUID, avail map[uuid.UUID]int) error
}

type Calculator struct {
	store    Store
	clock    clock.Clock
	snapshot Snapshot
}

func NewCalculator(store Store, clk clock.Clock, snapshot Snapshot) *Calculator {
	return &Calculator{store: store, clock: clk, snapshot: snapshot}
}

// Available computes capacity minus sold minus live unexpired holds, on
// demand. A hold past its deadline does not count even if the sweeper has
// not removed it yet.
func (c *Calculator) Available(ctx context.Context, ticketTypeID uuid.UUID) (int, error) {
	tt, err := c.store.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return 0, err
	}
	return c.availableFor(ctx, tt)
}

// ForFunction returns availability for every ticket type of a function,
// served from the snapshot cache when it is fresh.
func (c *Calculator) ForFunction(ctx context.Context, functionID uuid.UUID) (map[uuid.UUID]int, error) {
	if c.snapshot != nil {
		if cached, ok, err := c.snapshot.Get(ctx, functionID); err == nil && ok {
			observability.AvailabilityCacheHits.Inc()
			return cached, nil
		}
	}

	types, err := c.store.ListTicketTypes(ctx, functionID)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	avail := make(map[uuid.UUID]int, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for _, tt := range types {
		tt := tt
		g.Go(func() error {
			n, err := c.availableFor(gctx, tt)
			if err != nil {
				return err
			}
			mu.Lock()
			avail[tt.ID] = n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if c.snapshot != nil {
		_ = c.snapshot.Set(ctx, functionID, avail)
	}
	return avail, nil
}

func (c *Calculator) availableFor(ctx context.Context, tt domain.TicketType) (int, error) {
	held, err := c.store.SumActiveHolds(ctx, tt.ID, c.clock.Now())
	if err != nil {
		return 0, err
	}
	available := tt.TotalQuantity - tt.SoldQuantity - held
	if available < 0 {
		available = 0
	}
	return available, nil
}
