// Package ledger defines the capacity ledger contract: the ground truth of
// irrevocable sales. Implementations must make Commit atomic with respect to
// all other commits and re-validate sold+qty <= total at the moment of
// mutation. This is the single most important correctness property in the
// system; an implementation that reads then writes in separate round trips
// is wrong.
package ledger

import (
	"context"

	"github.com/google/uuid"
)

type Ledger interface {
	// CurrentSold returns the committed sold counter for a ticket type.
	CurrentSold(ctx context.Context, ticketTypeID uuid.UUID) (int, error)

	// Commit increments the sold counter by qty, or returns
	// domain.ErrCapacityExceeded without mutating anything.
	Commit(ctx context.Context, ticketTypeID uuid.UUID, qty int) error
}
