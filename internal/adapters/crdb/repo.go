package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketry/boxoffice/internal/domain"
)

// Repository is the single store for ticket types, holds, orders and issued
// tickets. Everything lives in one transactional boundary so hold commits
// and capacity counters can never diverge.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *Repository) GetTicketType(ctx context.Context, id uuid.UUID) (domain.TicketType, error) {
	const query = `
		SELECT id, function_id, name, price, total_quantity, sold_quantity,
		       max_purchase_quantity, is_bundle, bundle_size
		FROM ticket_types WHERE id = $1`
	return scanTicketType(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

// GetTicketTypesForUpdate locks the requested ticket-type rows for the
// duration of the transaction. Rows are locked in id order so concurrent
// multi-line acquires cannot deadlock.
func (r *Repository) GetTicketTypesForUpdate(ctx context.Context, functionID uuid.UUID, ids []uuid.UUID) ([]domain.TicketType, error) {
	const query = `
		SELECT id, function_id, name, price, total_quantity, sold_quantity,
		       max_purchase_quantity, is_bundle, bundle_size
		FROM ticket_types
		WHERE function_id = $1 AND id = ANY($2)
		ORDER BY id
		FOR UPDATE`
	rows, err := conn(ctx, r.pool).Query(ctx, query, functionID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []domain.TicketType
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, tt)
	}
	return types, rows.Err()
}

func (r *Repository) ListTicketTypes(ctx context.Context, functionID uuid.UUID) ([]domain.TicketType, error) {
	const query = `
		SELECT id, function_id, name, price, total_quantity, sold_quantity,
		       max_purchase_quantity, is_bundle, bundle_size
		FROM ticket_types WHERE function_id = $1 ORDER BY id`
	rows, err := conn(ctx, r.pool).Query(ctx, query, functionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []domain.TicketType
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, tt)
	}
	return types, rows.Err()
}

// SumActiveHolds counts held units for a ticket type. Holds past their
// deadline are excluded even before the sweeper removes them.
func (r *Repository) SumActiveHolds(ctx context.Context, ticketTypeID uuid.UUID, now time.Time) (int, error) {
	const query = `
		SELECT COALESCE(SUM(l.quantity), 0)
		FROM hold_lines l
		JOIN holds h ON h.session_id = l.session_id
		WHERE l.ticket_type_id = $1 AND h.status = 'ACTIVE' AND h.expires_at > $2`
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, query, ticketTypeID, now).Scan(&total); err != nil {
		return 0, errors.Wrap(err, "sum active holds")
	}
	return total, nil
}

func (r *Repository) CreateHold(ctx context.Context, hold domain.Hold) error {
	q := conn(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO holds (session_id, function_id, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, hold.SessionID, hold.FunctionID, hold.Status, hold.CreatedAt, hold.ExpiresAt)
	if err != nil {
		return errors.Wrap(err, "insert hold")
	}
	for _, line := range hold.Lines {
		_, err := q.Exec(ctx, `
			INSERT INTO hold_lines (session_id, ticket_type_id, quantity)
			VALUES ($1, $2, $3)
		`, hold.SessionID, line.TicketTypeID, line.Quantity)
		if err != nil {
			return errors.Wrap(err, "insert hold line")
		}
	}
	return nil
}

func (r *Repository) GetHold(ctx context.Context, sessionID uuid.UUID) (domain.Hold, error) {
	return r.getHold(ctx, sessionID, false)
}

func (r *Repository) GetHoldForUpdate(ctx context.Context, sessionID uuid.UUID) (domain.Hold, error) {
	return r.getHold(ctx, sessionID, true)
}

func (r *Repository) getHold(ctx context.Context, sessionID uuid.UUID, forUpdate bool) (domain.Hold, error) {
	q := conn(ctx, r.pool)
	query := `SELECT session_id, function_id, status, created_at, expires_at FROM holds WHERE session_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var h domain.Hold
	err := q.QueryRow(ctx, query, sessionID).
		Scan(&h.SessionID, &h.FunctionID, &h.Status, &h.CreatedAt, &h.ExpiresAt)
	if err == pgx.ErrNoRows {
		return domain.Hold{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Hold{}, errors.Wrap(err, "get hold")
	}

	rows, err := q.Query(ctx, `
		SELECT ticket_type_id, quantity FROM hold_lines WHERE session_id = $1 ORDER BY ticket_type_id
	`, sessionID)
	if err != nil {
		return domain.Hold{}, errors.Wrap(err, "get hold lines")
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.HoldLine
		if err := rows.Scan(&line.TicketTypeID, &line.Quantity); err != nil {
			return domain.Hold{}, err
		}
		h.Lines = append(h.Lines, line)
	}
	return h, rows.Err()
}

// TransitionHold moves a hold from one status to another only if it is still
// in the expected status. Exactly one of release, confirm, and sweep wins a
// race; the losers see false.
func (r *Repository) TransitionHold(ctx context.Context, sessionID uuid.UUID, from, to domain.HoldStatus) (bool, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE holds SET status = $3 WHERE session_id = $1 AND status = $2
	`, sessionID, from, to)
	if err != nil {
		return false, errors.Wrap(err, "transition hold")
	}
	return result.RowsAffected() > 0, nil
}

func (r *Repository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT session_id, function_id, status, created_at, expires_at
		FROM holds WHERE status = 'ACTIVE' AND expires_at <= $1
		ORDER BY expires_at LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []domain.Hold
	for rows.Next() {
		var h domain.Hold
		if err := rows.Scan(&h.SessionID, &h.FunctionID, &h.Status, &h.CreatedAt, &h.ExpiresAt); err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}

func (r *Repository) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO orders (id, session_id, function_id, total_amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, order.ID, order.SessionID, order.FunctionID, order.TotalAmount, order.CreatedAt)
	return errors.Wrap(err, "insert order")
}

func (r *Repository) CreateIssuedTickets(ctx context.Context, tickets []domain.IssuedTicket) error {
	q := conn(ctx, r.pool)
	for _, t := range tickets {
		_, err := q.Exec(ctx, `
			INSERT INTO issued_tickets (id, order_id, ticket_type_id, status, issued_at)
			VALUES ($1, $2, $3, $4, $5)
		`, t.ID, t.OrderID, t.TicketTypeID, t.Status, t.IssuedAt)
		if err != nil {
			return errors.Wrap(err, "insert issued ticket")
		}
	}
	return nil
}

func (r *Repository) GetOrderBySession(ctx context.Context, sessionID uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, session_id, function_id, total_amount, created_at
		FROM orders WHERE session_id = $1
	`, sessionID).Scan(&order.ID, &order.SessionID, &order.FunctionID, &order.TotalAmount, &order.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order by session")
	}
	return &order, nil
}

func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, session_id, function_id, total_amount, created_at
		FROM orders WHERE id = $1
	`, orderID).Scan(&order.ID, &order.SessionID, &order.FunctionID, &order.TotalAmount, &order.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return &order, nil
}

func (r *Repository) ListTicketsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.IssuedTicket, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, order_id, ticket_type_id, status, issued_at
		FROM issued_tickets WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.IssuedTicket
	for rows.Next() {
		var t domain.IssuedTicket
		if err := rows.Scan(&t.ID, &t.OrderID, &t.TicketTypeID, &t.Status, &t.IssuedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicketType(row rowScanner) (domain.TicketType, error) {
	var tt domain.TicketType
	err := row.Scan(&tt.ID, &tt.FunctionID, &tt.Name, &tt.Price, &tt.TotalQuantity,
		&tt.SoldQuantity, &tt.MaxPurchaseQuantity, &tt.IsBundle, &tt.BundleSize)
	if err == pgx.ErrNoRows {
		return domain.TicketType{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TicketType{}, errors.Wrap(err, "scan ticket type")
	}
	return tt, nil
}
