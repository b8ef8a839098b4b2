package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ticketry/boxoffice/internal/clock"
	"github.com/ticketry/boxoffice/internal/domain"
)

type fakeStore struct {
	types map[uuid.UUID]domain.TicketType
	holds []domain.Hold
}

func (s *fakeStore) GetTicketType(ctx context.Context, id uuid.UUID) (domain.TicketType, error) {
	tt, ok := s.types[id]
	if !ok {
		return domain.TicketType{}, domain.ErrNotFound
	}
	return tt, nil
}

func (s *fakeStore) ListTicketTypes(ctx context.Context, functionID uuid.UUID) ([]domain.TicketType, error) {
	var out []domain.TicketType
	for _, tt := range s.types {
		if tt.FunctionID == functionID {
			out = append(out, tt)
		}
	}
	return out, nil
}

func (s *fakeStore) SumActiveHolds(ctx context.Context, ticketTypeID uuid.UUID, now time.Time) (int, error) {
	total := 0
	for _, h := range s.holds {
		if !h.Active(now) {
			continue
		}
		for _, line := range h.Lines {
			if line.TicketTypeID == ticketTypeID {
				total += line.Quantity
			}
		}
	}
	return total, nil
}

type fakeSnapshot struct {
	cached map[uuid.UUID]map[uuid.UUID]int
	sets   int
}

func (s *fakeSnapshot) Get(ctx context.Context, functionID uuid.UUID) (map[uuid.UUID]int, bool, error) {
	avail, ok := s.cached[functionID]
	return avail, ok, nil
}

func (s *fakeSnapshot) Set(ctx context.Context, functionID uuid.UUID, avail map[uuid.UUID]int) error {
	if s.cached == nil {
		s.cached = make(map[uuid.UUID]map[uuid.UUID]int)
	}
	s.cached[functionID] = avail
	s.sets++
	return nil
}

func activeHold(ticketTypeID uuid.UUID, qty int, expiresAt time.Time) domain.Hold {
	return domain.Hold{
		SessionID: uuid.New(),
		Status:    domain.HoldStatusActive,
		ExpiresAt: expiresAt,
		Lines:     []domain.HoldLine{{TicketTypeID: ticketTypeID, Quantity: qty}},
	}
}

func TestCalculator_Available(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	functionID := uuid.New()
	tt := domain.TicketType{ID: uuid.New(), FunctionID: functionID, TotalQuantity: 10, SoldQuantity: 3}

	t.Run("subtracts sold and live holds", func(t *testing.T) {
		store := &fakeStore{
			types: map[uuid.UUID]domain.TicketType{tt.ID: tt},
			holds: []domain.Hold{activeHold(tt.ID, 4, now.Add(5 * time.Minute))},
		}
		c := NewCalculator(store, clock.NewFixed(now), nil)

		got, err := c.Available(context.Background(), tt.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != 3 {
			t.Fatalf("expected 3, got %d", got)
		}
	})

	t.Run("expired holds stop counting before any sweep", func(t *testing.T) {
		clk := clock.NewFixed(now)
		store := &fakeStore{
			types: map[uuid.UUID]domain.TicketType{tt.ID: tt},
			holds: []domain.Hold{activeHold(tt.ID, 4, now.Add(5 * time.Minute))},
		}
		c := NewCalculator(store, clk, nil)

		clk.Advance(6 * time.Minute)
		got, err := c.Available(context.Background(), tt.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != 7 {
			t.Fatalf("expected 7 after hold deadline, got %d", got)
		}
	})

	t.Run("released and confirmed holds never count", func(t *testing.T) {
		released := activeHold(tt.ID, 2, now.Add(5*time.Minute))
		released.Status = domain.HoldStatusReleased
		confirmed := activeHold(tt.ID, 2, now.Add(5*time.Minute))
		confirmed.Status = domain.HoldStatusConfirmed
		store := &fakeStore{
			types: map[uuid.UUID]domain.TicketType{tt.ID: tt},
			holds: []domain.Hold{released, confirmed},
		}
		c := NewCalculator(store, clock.NewFixed(now), nil)

		got, err := c.Available(context.Background(), tt.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != 7 {
			t.Fatalf("expected 7, got %d", got)
		}
	})

	t.Run("never reports negative", func(t *testing.T) {
		store := &fakeStore{
			types: map[uuid.UUID]domain.TicketType{tt.ID: tt},
			holds: []domain.Hold{activeHold(tt.ID, 20, now.Add(5 * time.Minute))},
		}
		c := NewCalculator(store, clock.NewFixed(now), nil)

		got, err := c.Available(context.Background(), tt.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != 0 {
			t.Fatalf("expected clamp to 0, got %d", got)
		}
	})
}

func TestCalculator_ForFunction(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	functionID := uuid.New()
	ga := domain.TicketType{ID: uuid.New(), FunctionID: functionID, TotalQuantity: 100, SoldQuantity: 40}
	vip := domain.TicketType{ID: uuid.New(), FunctionID: functionID, TotalQuantity: 10, SoldQuantity: 10}
	store := &fakeStore{
		types: map[uuid.UUID]domain.TicketType{ga.ID: ga, vip.ID: vip},
		holds: []domain.Hold{activeHold(ga.ID, 5, now.Add(5 * time.Minute))},
	}

	t.Run("computes every type and fills the snapshot", func(t *testing.T) {
		snap := &fakeSnapshot{}
		c := NewCalculator(store, clock.NewFixed(now), snap)

		avail, err := c.ForFunction(context.Background(), functionID)
		if err != nil {
			t.Fatal(err)
		}
		if avail[ga.ID] != 55 {
			t.Fatalf("expected ga=55, got %d", avail[ga.ID])
		}
		if avail[vip.ID] != 0 {
			t.Fatalf("expected vip=0, got %d", avail[vip.ID])
		}
		if snap.sets != 1 {
			t.Fatalf("expected snapshot write, got %d", snap.sets)
		}
	})

	t.Run("serves a fresh snapshot without recomputing", func(t *testing.T) {
		snap := &fakeSnapshot{
			cached: map[uuid.UUID]map[uuid.UUID]int{
				functionID: {ga.ID: 42},
			},
		}
		c := NewCalculator(store, clock.NewFixed(now), snap)

		avail, err := c.ForFunction(context.Background(), functionID)
		if err != nil {
			t.Fatal(err)
		}
		if avail[ga.ID] != 42 {
			t.Fatalf("expected cached 42, got %d", avail[ga.ID])
		}
		if snap.sets != 0 {
			t.Fatalf("cache hit must not rewrite the snapshot")
		}
	})
}
