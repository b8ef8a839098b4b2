package domain

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")

	// ErrSessionExpired means the hold was gone (expired, released, or never
	// created) by the time confirm ran. The shopper has to restart selection.
	ErrSessionExpired = errors.New("session expired")

	// ErrCapacityRaceLost means the final ledger commit was rejected inside
	// confirm. Surfaced to shoppers identically to ErrSessionExpired.
	ErrCapacityRaceLost = errors.New("capacity race lost")

	ErrCapacityExceeded = errors.New("capacity exceeded")

	ErrPaymentDeclined = errors.New("payment declined")

	// ErrPaymentAuthorizedButConfirmFailed is the saga failure mode: the
	// gateway captured money but the local confirm lost. A compensating void
	// has been queued; this is an incident, never silently swallowed.
	ErrPaymentAuthorizedButConfirmFailed = errors.New("payment authorized but confirm failed")
)

// InsufficientAvailabilityError reports the first line of an acquire that
// could not be satisfied. The whole acquire fails; no partial hold leaks.
type InsufficientAvailabilityError struct {
	TicketTypeID uuid.UUID
	Requested    int
	Available    int
}

func (e *InsufficientAvailabilityError) Error() string {
	return errors.Newf("insufficient availability for ticket type %s: requested %d, available %d",
		e.TicketTypeID, e.Requested, e.Available).Error()
}

// InvalidQuantityError covers zero, negative, and over-cap line quantities.
type InvalidQuantityError struct {
	TicketTypeID uuid.UUID
	Requested    int
	MaxAllowed   int
}

func (e *InvalidQuantityError) Error() string {
	if e.MaxAllowed > 0 && e.Requested > e.MaxAllowed {
		return errors.Newf("quantity %d for ticket type %s exceeds per-order cap %d",
			e.Requested, e.TicketTypeID, e.MaxAllowed).Error()
	}
	return errors.Newf("invalid quantity %d for ticket type %s", e.Requested, e.TicketTypeID).Error()
}

// IsUserRecoverable reports whether the shopper can retry within the same
// checkout session (reduce quantity, fix card) as opposed to restarting.
func IsUserRecoverable(err error) bool {
	var insufficient *InsufficientAvailabilityError
	var invalid *InvalidQuantityError
	if errors.As(err, &insufficient) || errors.As(err, &invalid) {
		return true
	}
	return errors.Is(err, ErrPaymentDeclined)
}
