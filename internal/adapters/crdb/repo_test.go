package crdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ticketry/boxoffice/internal/adapters/crdb"
	"github.com/ticketry/boxoffice/internal/domain"
)

const testSchema = `
	CREATE DATABASE IF NOT EXISTS boxoffice;
	CREATE TABLE IF NOT EXISTS boxoffice.ticket_types (
		id UUID PRIMARY KEY,
		function_id UUID NOT NULL,
		name TEXT NOT NULL,
		price NUMERIC NOT NULL,
		total_quantity INT NOT NULL,
		sold_quantity INT NOT NULL DEFAULT 0,
		max_purchase_quantity INT NOT NULL DEFAULT 0,
		is_bundle BOOL NOT NULL DEFAULT false,
		bundle_size INT NOT NULL DEFAULT 0,
		CHECK (sold_quantity <= total_quantity)
	);
	CREATE TABLE IF NOT EXISTS boxoffice.holds (
		session_id UUID PRIMARY KEY,
		function_id UUID NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'RELEASED', 'CONFIRMED', 'EXPIRED')),
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS boxoffice.hold_lines (
		session_id UUID NOT NULL,
		ticket_type_id UUID NOT NULL,
		quantity INT NOT NULL,
		PRIMARY KEY (session_id, ticket_type_id)
	);
	CREATE TABLE IF NOT EXISTS boxoffice.orders (
		id UUID PRIMARY KEY,
		session_id UUID NOT NULL UNIQUE,
		function_id UUID NOT NULL,
		total_amount NUMERIC NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS boxoffice.issued_tickets (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL,
		ticket_type_id UUID NOT NULL,
		status TEXT NOT NULL,
		issued_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS boxoffice.outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		payload_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'NEW',
		dedupe_key TEXT NOT NULL
	);
`

func startCRDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}
	pool, err := pgxpool.New(ctx, dsn+"/boxoffice?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, testSchema); err != nil {
		t.Fatal(err)
	}
	return pool
}

func insertTicketType(t *testing.T, pool *pgxpool.Pool, tt domain.TicketType) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO ticket_types (id, function_id, name, price, total_quantity,
			sold_quantity, max_purchase_quantity, is_bundle, bundle_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tt.ID, tt.FunctionID, tt.Name, tt.Price, tt.TotalQuantity,
		tt.SoldQuantity, tt.MaxPurchaseQuantity, tt.IsBundle, tt.BundleSize)
	if err != nil {
		t.Fatal(err)
	}
}

func TestRepository_HoldLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	pool := startCRDB(t)
	repo := crdb.NewRepository(pool)

	tt := domain.TicketType{
		ID: uuid.New(), FunctionID: uuid.New(), Name: "GA",
		Price: 50, TotalQuantity: 100, MaxPurchaseQuantity: 10,
	}
	insertTicketType(t, pool, tt)

	now := time.Now().UTC().Truncate(time.Microsecond)
	hold := domain.NewHold(uuid.New(), tt.FunctionID,
		[]domain.HoldLine{{TicketTypeID: tt.ID, Quantity: 3}}, now, 10*time.Minute)

	err := repo.WithTx(ctx, func(txCtx context.Context) error {
		return repo.CreateHold(txCtx, hold)
	})
	if err != nil {
		t.Fatal(err)
	}

	fetched, err := repo.GetHold(ctx, hold.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != domain.HoldStatusActive || len(fetched.Lines) != 1 || fetched.Lines[0].Quantity != 3 {
		t.Fatalf("round trip mismatch: %+v", fetched)
	}

	held, err := repo.SumActiveHolds(ctx, tt.ID, now)
	if err != nil {
		t.Fatal(err)
	}
	if held != 3 {
		t.Fatalf("expected 3 held, got %d", held)
	}

	// Past the deadline the hold stops counting even while still ACTIVE.
	held, err = repo.SumActiveHolds(ctx, tt.ID, now.Add(11*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if held != 0 {
		t.Fatalf("expected 0 held past deadline, got %d", held)
	}

	// Only the first terminal transition wins.
	var first, second bool
	err = repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		first, err = repo.TransitionHold(txCtx, hold.SessionID, domain.HoldStatusActive, domain.HoldStatusReleased)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	err = repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		second, err = repo.TransitionHold(txCtx, hold.SessionID, domain.HoldStatusActive, domain.HoldStatusConfirmed)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !first || second {
		t.Fatalf("expected exactly one winning transition, got first=%v second=%v", first, second)
	}
}

func TestRepository_ListExpiredHolds(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	pool := startCRDB(t)
	repo := crdb.NewRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	overdue := domain.NewHold(uuid.New(), uuid.New(), nil, now.Add(-20*time.Minute), 10*time.Minute)
	live := domain.NewHold(uuid.New(), uuid.New(), nil, now, 10*time.Minute)
	for _, h := range []domain.Hold{overdue, live} {
		if err := repo.WithTx(ctx, func(txCtx context.Context) error {
			return repo.CreateHold(txCtx, h)
		}); err != nil {
			t.Fatal(err)
		}
	}

	expired, err := repo.ListExpiredHolds(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].SessionID != overdue.SessionID {
		t.Fatalf("expected only the overdue hold, got %+v", expired)
	}
}

func TestLedger_Commit(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	pool := startCRDB(t)
	repo := crdb.NewRepository(pool)
	ledger := crdb.NewLedger(pool)

	tt := domain.TicketType{
		ID: uuid.New(), FunctionID: uuid.New(), Name: "GA",
		Price: 50, TotalQuantity: 5, SoldQuantity: 3,
	}
	insertTicketType(t, pool, tt)

	err := repo.WithTx(ctx, func(txCtx context.Context) error {
		return ledger.Commit(txCtx, tt.ID, 2)
	})
	if err != nil {
		t.Fatal(err)
	}

	sold, err := ledger.CurrentSold(ctx, tt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sold != 5 {
		t.Fatalf("expected sold=5, got %d", sold)
	}

	// Any further commit would pass total_quantity and must be refused.
	err = repo.WithTx(ctx, func(txCtx context.Context) error {
		return ledger.Commit(txCtx, tt.ID, 1)
	})
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if sold, _ := ledger.CurrentSold(ctx, tt.ID); sold != 5 {
		t.Fatalf("refused commit must not move the counter, sold=%d", sold)
	}
}

func TestRepository_Orders(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	pool := startCRDB(t)
	repo := crdb.NewRepository(pool)

	sessionID := uuid.New()
	order := domain.Order{
		ID:          uuid.New(),
		SessionID:   sessionID,
		FunctionID:  uuid.New(),
		TotalAmount: 150,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	tickets := []domain.IssuedTicket{
		{ID: uuid.New(), OrderID: order.ID, TicketTypeID: uuid.New(), Status: domain.TicketStatusAvailable, IssuedAt: order.CreatedAt},
		{ID: uuid.New(), OrderID: order.ID, TicketTypeID: uuid.New(), Status: domain.TicketStatusAvailable, IssuedAt: order.CreatedAt},
	}

	err := repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := repo.CreateOrder(txCtx, order); err != nil {
			return err
		}
		return repo.CreateIssuedTickets(txCtx, tickets)
	})
	if err != nil {
		t.Fatal(err)
	}

	bySession, err := repo.GetOrderBySession(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if bySession == nil || bySession.ID != order.ID {
		t.Fatalf("order not found by session: %+v", bySession)
	}

	// Absence reads as nil, not an error; confirm uses this for idempotency.
	missing, err := repo.GetOrderBySession(ctx, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown session, got %+v", missing)
	}

	fetchedTickets, err := repo.ListTicketsByOrder(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetchedTickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(fetchedTickets))
	}

	if _, err := repo.GetOrder(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
