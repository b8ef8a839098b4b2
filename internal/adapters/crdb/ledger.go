package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketry/boxoffice/internal/domain"
)

// Ledger holds the sold counters. Commit is a single conditional update that
// re-validates capacity at the moment of mutation, never read-then-write.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) CurrentSold(ctx context.Context, ticketTypeID uuid.UUID) (int, error) {
	var sold int
	err := conn(ctx, l.pool).QueryRow(ctx, `
		SELECT sold_quantity FROM ticket_types WHERE id = $1
	`, ticketTypeID).Scan(&sold)
	if err == pgx.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "current sold")
	}
	return sold, nil
}

// Commit atomically increments sold_quantity, rejecting the increment if it
// would exceed total_quantity. Joins the caller's transaction when one is in
// the context, so a multi-line confirm commits all lines or none.
func (l *Ledger) Commit(ctx context.Context, ticketTypeID uuid.UUID, qty int) error {
	result, err := conn(ctx, l.pool).Exec(ctx, `
		UPDATE ticket_types
		SET sold_quantity = sold_quantity + $2
		WHERE id = $1 AND sold_quantity + $2 <= total_quantity
	`, ticketTypeID, qty)
	if err != nil {
		return errors.Wrap(err, "ledger commit")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrCapacityExceeded
	}
	return nil
}
