// Package reservation implements the inventory lock manager: the only
// component allowed to mutate holds and, through the ledger, sold counters.
package reservation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ticketry/boxoffice/internal/clock"
	"github.com/ticketry/boxoffice/internal/domain"
	"github.com/ticketry/boxoffice/internal/ledger"
	"github.com/ticketry/boxoffice/internal/observability"
)

// Store is the hold and order persistence the manager drives. WithTx must
// provide serializable semantics: every read inside the closure observes a
// state that no concurrent committed transaction contradicts.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetTicketTypesForUpdate(ctx context.Context, functionID uuid.UUID, ids []uuid.UUID) ([]domain.TicketType, error)
	SumActiveHolds(ctx context.Context, ticketTypeID uuid.UUID, now time.Time) (int, error)
	CreateHold(ctx context.Context, hold domain.Hold) error
	GetHoldForUpdate(ctx context.Context, sessionID uuid.UUID) (domain.Hold, error)
	TransitionHold(ctx context.Context, sessionID uuid.UUID, from, to domain.HoldStatus) (bool, error)
	CreateOrder(ctx context.Context, order domain.Order) error
	CreateIssuedTickets(ctx context.Context, tickets []domain.IssuedTicket) error
	GetOrderBySession(ctx context.Context, sessionID uuid.UUID) (*domain.Order, error)
	ListTicketsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.IssuedTicket, error)
}

// Outbox records domain events in the same transaction as the mutation they
// describe. Optional; a nil Outbox disables event publication.
type Outbox interface {
	ConfirmRecorded(ctx context.Context, order domain.Order) error
}

type Manager struct {
	store  Store
	ledger ledger.Ledger
	clock  clock.Clock
	ttl    time.Duration
	outbox Outbox
	logger observability.Logger
}

type Option func(*Manager)

// WithHoldTTL overrides the default hold lifetime. The TTL is fixed at
// acquisition; holds are not extended mid-flight.
func WithHoldTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

func WithOutbox(o Outbox) Option {
	return func(m *Manager) {
		m.outbox = o
	}
}

const defaultHoldTTL = 10 * time.Minute

func NewManager(store Store, led ledger.Ledger, clk clock.Clock, logger observability.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		ledger: led,
		clock:  clk,
		ttl:    defaultHoldTTL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HoldTTL returns the configured hold lifetime, used by the checkout
// controller to seed the countdown UI.
func (m *Manager) HoldTTL() time.Duration {
	return m.ttl
}

// Acquire claims inventory for every requested line or nothing at all.
// Availability is total - sold - active holds, evaluated with the ticket
// type rows locked, so two sessions racing for the last unit cannot both
// win. The hold subtracts from availability the instant the transaction
// commits.
func (m *Manager) Acquire(ctx context.Context, sessionID, functionID uuid.UUID, lines []domain.HoldLine) (domain.Hold, error) {
	if len(lines) == 0 {
		return domain.Hold{}, &domain.InvalidQuantityError{Requested: 0}
	}
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.Hold{}, &domain.InvalidQuantityError{
				TicketTypeID: line.TicketTypeID,
				Requested:    line.Quantity,
			}
		}
		ids = append(ids, line.TicketTypeID)
	}

	now := m.clock.Now()
	hold := domain.NewHold(sessionID, functionID, lines, now, m.ttl)

	err := m.store.WithTx(ctx, func(txCtx context.Context) error {
		types, err := m.store.GetTicketTypesForUpdate(txCtx, functionID, ids)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]domain.TicketType, len(types))
		for _, tt := range types {
			byID[tt.ID] = tt
		}

		for _, line := range lines {
			tt, ok := byID[line.TicketTypeID]
			if !ok {
				return errors.Wrapf(domain.ErrNotFound, "ticket type %s", line.TicketTypeID)
			}
			if tt.MaxPurchaseQuantity > 0 && line.Quantity > tt.MaxPurchaseQuantity {
				return &domain.InvalidQuantityError{
					TicketTypeID: line.TicketTypeID,
					Requested:    line.Quantity,
					MaxAllowed:   tt.MaxPurchaseQuantity,
				}
			}

			held, err := m.store.SumActiveHolds(txCtx, line.TicketTypeID, now)
			if err != nil {
				return err
			}
			available := tt.TotalQuantity - tt.SoldQuantity - held
			if line.Quantity > available {
				if available < 0 {
					available = 0
				}
				return &domain.InsufficientAvailabilityError{
					TicketTypeID: line.TicketTypeID,
					Requested:    line.Quantity,
					Available:    available,
				}
			}
		}

		return m.store.CreateHold(txCtx, hold)
	})
	if err != nil {
		var insufficient *domain.InsufficientAvailabilityError
		if errors.As(err, &insufficient) {
			observability.HoldsRejected.Inc()
		}
		return domain.Hold{}, err
	}

	observability.HoldsAcquired.Inc()
	m.logger.WithField("session_id", sessionID).WithField("expires_at", hold.ExpiresAt).Info("hold acquired")
	return hold, nil
}

// Release returns a hold's inventory to the available pool. Idempotent:
// releasing a hold that is already terminal, or was never created, is a
// no-op success. The conditional transition makes it safe against an
// in-flight confirm for the same session; whichever commits first wins.
func (m *Manager) Release(ctx context.Context, sessionID uuid.UUID) error {
	return m.store.WithTx(ctx, func(txCtx context.Context) error {
		released, err := m.store.TransitionHold(txCtx, sessionID, domain.HoldStatusActive, domain.HoldStatusReleased)
		if err != nil {
			return err
		}
		if released {
			m.logger.WithField("session_id", sessionID).Info("hold released")
		}
		return nil
	})
}

// Confirm converts a hold into sold units exactly once. A retry after a
// successful confirm returns the previously issued tickets. A ledger
// rejection on any line rolls the whole confirm back and expires the hold.
func (m *Manager) Confirm(ctx context.Context, sessionID uuid.UUID) (domain.Settlement, error) {
	var result domain.Settlement

	err := m.store.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := m.store.GetOrderBySession(txCtx, sessionID)
		if err != nil {
			return err
		}
		if existing != nil {
			tickets, err := m.store.ListTicketsByOrder(txCtx, existing.ID)
			if err != nil {
				return err
			}
			result = domain.Settlement{Order: *existing, Tickets: tickets}
			return nil
		}

		hold, err := m.store.GetHoldForUpdate(txCtx, sessionID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrSessionExpired
		}
		if err != nil {
			return err
		}
		now := m.clock.Now()
		if !hold.Active(now) {
			return domain.ErrSessionExpired
		}

		types := make(map[uuid.UUID]domain.TicketType, len(hold.Lines))
		locked, err := m.store.GetTicketTypesForUpdate(txCtx, hold.FunctionID, lineTypeIDs(hold.Lines))
		if err != nil {
			return err
		}
		for _, tt := range locked {
			types[tt.ID] = tt
		}

		// Ledger commits are in bundle units; a rejected line aborts the
		// whole transaction before any order rows exist.
		for _, line := range hold.Lines {
			if err := m.ledger.Commit(txCtx, line.TicketTypeID, line.Quantity); err != nil {
				if errors.Is(err, domain.ErrCapacityExceeded) {
					return domain.ErrCapacityRaceLost
				}
				return err
			}
		}

		order := domain.Order{
			ID:         uuid.New(),
			SessionID:  sessionID,
			FunctionID: hold.FunctionID,
			CreatedAt:  now,
		}
		var tickets []domain.IssuedTicket
		for _, line := range hold.Lines {
			tt, ok := types[line.TicketTypeID]
			if !ok {
				return errors.Wrapf(domain.ErrNotFound, "ticket type %s", line.TicketTypeID)
			}
			order.TotalAmount += tt.Price * float64(line.Quantity)
			admissions := line.Quantity * tt.AdmissionsPerUnit()
			for i := 0; i < admissions; i++ {
				tickets = append(tickets, domain.IssuedTicket{
					ID:           uuid.New(),
					OrderID:      order.ID,
					TicketTypeID: line.TicketTypeID,
					Status:       domain.TicketStatusAvailable,
					IssuedAt:     now,
				})
			}
		}

		if err := m.store.CreateOrder(txCtx, order); err != nil {
			return err
		}
		if err := m.store.CreateIssuedTickets(txCtx, tickets); err != nil {
			return err
		}

		won, err := m.store.TransitionHold(txCtx, sessionID, domain.HoldStatusActive, domain.HoldStatusConfirmed)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrSessionExpired
		}

		if m.outbox != nil {
			if err := m.outbox.ConfirmRecorded(txCtx, order); err != nil {
				return err
			}
		}

		result = domain.Settlement{Order: order, Tickets: tickets}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrCapacityRaceLost) {
			observability.CapacityRacesLost.Inc()
			// The seat is gone; make the loss visible to the sweeper and the
			// availability projection right away.
			m.expireAfterRaceLoss(ctx, sessionID)
		}
		return domain.Settlement{}, err
	}

	observability.OrdersConfirmed.Inc()
	m.logger.WithField("session_id", sessionID).
		WithField("order_id", result.Order.ID).
		WithField("tickets", len(result.Tickets)).
		Info("hold confirmed")
	return result, nil
}

// Quote prices the hold's lines so the gateway can authorize the exact
// amount before confirm runs. Fails with ErrSessionExpired once the hold is
// gone or past its deadline.
func (m *Manager) Quote(ctx context.Context, sessionID uuid.UUID) (float64, error) {
	var total float64
	err := m.store.WithTx(ctx, func(txCtx context.Context) error {
		hold, err := m.store.GetHoldForUpdate(txCtx, sessionID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrSessionExpired
		}
		if err != nil {
			return err
		}
		if !hold.Active(m.clock.Now()) {
			return domain.ErrSessionExpired
		}

		types, err := m.store.GetTicketTypesForUpdate(txCtx, hold.FunctionID, lineTypeIDs(hold.Lines))
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]domain.TicketType, len(types))
		for _, tt := range types {
			byID[tt.ID] = tt
		}
		for _, line := range hold.Lines {
			tt, ok := byID[line.TicketTypeID]
			if !ok {
				return errors.Wrapf(domain.ErrNotFound, "ticket type %s", line.TicketTypeID)
			}
			total += tt.Price * float64(line.Quantity)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (m *Manager) expireAfterRaceLoss(ctx context.Context, sessionID uuid.UUID) {
	err := m.store.WithTx(ctx, func(txCtx context.Context) error {
		_, err := m.store.TransitionHold(txCtx, sessionID, domain.HoldStatusActive, domain.HoldStatusExpired)
		return err
	})
	if err != nil {
		m.logger.WithError(err).WithField("session_id", sessionID).Warn("could not expire hold after race loss")
	}
}

func lineTypeIDs(lines []domain.HoldLine) []uuid.UUID {
	ids := make([]uuid.UUID, len(lines))
	for i, line := range lines {
		ids[i] = line.TicketTypeID
	}
	return ids
}
