package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ticketry/boxoffice/internal/domain"
)

// fakeStore is an in-memory Store whose WithTx serializes transactions with
// a mutex and rolls back on error, mirroring what the SERIALIZABLE pgx
// wrapper gives the real repository. It doubles as the ledger so capacity
// checks and commits see the same counters.
type fakeStore struct {
	mu      sync.Mutex
	types   map[uuid.UUID]domain.TicketType
	holds   map[uuid.UUID]domain.Hold
	orders  map[uuid.UUID]domain.Order // keyed by session
	tickets map[uuid.UUID][]domain.IssuedTicket
}

func newFakeStore(types []domain.TicketType) *fakeStore {
	s := &fakeStore{
		types:   make(map[uuid.UUID]domain.TicketType),
		holds:   make(map[uuid.UUID]domain.Hold),
		orders:  make(map[uuid.UUID]domain.Order),
		tickets: make(map[uuid.UUID][]domain.IssuedTicket),
	}
	for _, tt := range types {
		s.types[tt.ID] = tt
	}
	return s
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.clone()
	if err := fn(ctx); err != nil {
		s.types = snapshot.types
		s.holds = snapshot.holds
		s.orders = snapshot.orders
		s.tickets = snapshot.tickets
		return err
	}
	return nil
}

func (s *fakeStore) clone() *fakeStore {
	c := &fakeStore{
		types:   make(map[uuid.UUID]domain.TicketType, len(s.types)),
		holds:   make(map[uuid.UUID]domain.Hold, len(s.holds)),
		orders:  make(map[uuid.UUID]domain.Order, len(s.orders)),
		tickets: make(map[uuid.UUID][]domain.IssuedTicket, len(s.tickets)),
	}
	for k, v := range s.types {
		c.types[k] = v
	}
	for k, v := range s.holds {
		v.Lines = append([]domain.HoldLine(nil), v.Lines...)
		c.holds[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.tickets {
		c.tickets[k] = append([]domain.IssuedTicket(nil), v...)
	}
	return c
}

func (s *fakeStore) GetTicketTypesForUpdate(ctx context.Context, functionID uuid.UUID, ids []uuid.UUID) ([]domain.TicketType, error) {
	var out []domain.TicketType
	for _, id := range ids {
		if tt, ok := s.types[id]; ok && tt.FunctionID == functionID {
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

func (s *fakeStore) CreateHold(ctx context.Context, hold domain.Hold) error {
	s.holds[hold.SessionID] = hold
	return nil
}

func (s *fakeStore) GetHoldForUpdate(ctx context.Context, sessionID uuid.UUID) (domain.Hold, error) {
	h, ok := s.holds[sessionID]
	if !ok {
		return domain.Hold{}, domain.ErrNotFound
	}
	return h, nil
}

func (s *fakeStore) TransitionHold(ctx context.Context, sessionID uuid.UUID, from, to domain.HoldStatus) (bool, error) {
	h, ok := s.holds[sessionID]
	if !ok || h.Status != from {
		return false, nil
	}
	h.Status = to
	s.holds[sessionID] = h
	return true, nil
}

func (s *fakeStore) CreateOrder(ctx context.Context, order domain.Order) error {
	s.orders[order.SessionID] = order
	return nil
}

func (s *fakeStore) CreateIssuedTickets(ctx context.Context, tickets []domain.IssuedTicket) error {
	for _, t := range tickets {
		s.tickets[t.OrderID] = append(s.tickets[t.OrderID], t)
	}
	return nil
}

func (s *fakeStore) GetOrderBySession(ctx context.Context, sessionID uuid.UUID) (*domain.Order, error) {
	if order, ok := s.orders[sessionID]; ok {
		return &order, nil
	}
	return nil, nil
}

func (s *fakeStore) ListTicketsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.IssuedTicket, error) {
	return append([]domain.IssuedTicket(nil), s.tickets[orderID]...), nil
}

// ledger side: conditional increment against the same counters the store
// reads.

func (s *fakeStore) CurrentSold(ctx context.Context, ticketTypeID uuid.UUID) (int, error) {
	tt, ok := s.types[ticketTypeID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return tt.SoldQuantity, nil
}

func (s *fakeStore) Commit(ctx context.Context, ticketTypeID uuid.UUID, qty int) error {
	tt, ok := s.types[ticketTypeID]
	if !ok {
		return domain.ErrNotFound
	}
	if tt.SoldQuantity+qty > tt.TotalQuantity {
		return domain.ErrCapacityExceeded
	}
	tt.SoldQuantity += qty
	s.types[ticketTypeID] = tt
	return nil
}

func (s *fakeStore) soldQuantity(ticketTypeID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.types[ticketTypeID].SoldQuantity
}

func (s *fakeStore) holdStatus(sessionID uuid.UUID) domain.HoldStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holds[sessionID].Status
}
