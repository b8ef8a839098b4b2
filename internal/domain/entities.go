package domain

import (
	"time"

	"github.com/google/uuid"
)

// TicketType is a purchasable category within one event function.
// TotalQuantity is immutable capacity; SoldQuantity only ever grows and is
// mutated exclusively through the capacity ledger.
type TicketType struct {
	ID                  uuid.UUID
	FunctionID          uuid.UUID
	Name                string
	Price               float64
	TotalQuantity       int
	SoldQuantity        int
	MaxPurchaseQuantity int
	IsBundle            bool
	BundleSize          int
}

// AdmissionsPerUnit returns how many individual admissions one purchased
// unit of this type yields.
func (t TicketType) AdmissionsPerUnit() int {
	if t.IsBundle && t.BundleSize > 1 {
		return t.BundleSize
	}
	return 1
}

type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "ACTIVE"
	HoldStatusReleased  HoldStatus = "RELEASED"
	HoldStatusConfirmed HoldStatus = "CONFIRMED"
	HoldStatusExpired   HoldStatus = "EXPIRED"
)

// HoldLine is one (ticket type, quantity) pair inside a hold.
type HoldLine struct {
	TicketTypeID uuid.UUID
	Quantity     int
}

// Hold is a temporary, session-scoped claim on inventory. Exactly one hold
// exists per checkout session, and ACTIVE is its only non-terminal state.
type Hold struct {
	SessionID  uuid.UUID
	FunctionID uuid.UUID
	Lines      []HoldLine
	Status     HoldStatus
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Active reports whether the hold still counts against availability at the
// given instant. An ACTIVE hold past its deadline is treated as gone even
// before the sweeper gets to it.
func (h Hold) Active(now time.Time) bool {
	return h.Status == HoldStatusActive && h.ExpiresAt.After(now)
}

func NewHold(sessionID, functionID uuid.UUID, lines []HoldLine, now time.Time, ttl time.Duration) Hold {
	return Hold{
		SessionID:  sessionID,
		FunctionID: functionID,
		Lines:      lines,
		Status:     HoldStatusActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

type TicketStatus string

const (
	TicketStatusAvailable TicketStatus = "AVAILABLE"
	TicketStatusUsed      TicketStatus = "USED"
	TicketStatusCancelled TicketStatus = "CANCELLED"
	TicketStatusReprinted TicketStatus = "REPRINTED"
)

// IssuedTicket is the permanent record of one sold admission. Bundle
// purchases expand into BundleSize rows per purchased unit.
type IssuedTicket struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	TicketTypeID uuid.UUID
	Status       TicketStatus
	IssuedAt     time.Time
}

// Order ties a confirmed hold to its paid amount and issued tickets.
type Order struct {
	ID          uuid.UUID
	SessionID   uuid.UUID
	FunctionID  uuid.UUID
	TotalAmount float64
	CreatedAt   time.Time
}

// Settlement is the result of a successful confirm: the order plus every
// admission it issued.
type Settlement struct {
	Order   Order
	Tickets []IssuedTicket
}
