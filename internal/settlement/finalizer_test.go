package settlement

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ticketry/boxoffice/internal/domain"
	"github.com/ticketry/boxoffice/internal/observability"
)

type fakeGateway struct {
	authErr    error
	voidErr    error
	authorized []float64
	voided     []string
}

func (g *fakeGateway) Authorize(ctx context.Context, token string, amount float64) (string, error) {
	if g.authErr != nil {
		return "", g.authErr
	}
	g.authorized = append(g.authorized, amount)
	return "auth-" + token, nil
}

func (g *fakeGateway) Void(ctx context.Context, authRef string) error {
	if g.voidErr != nil {
		return g.voidErr
	}
	g.voided = append(g.voided, authRef)
	return nil
}

type fakeInventory struct {
	amount     float64
	quoteErr   error
	confirmErr error
	confirmed  []uuid.UUID
}

func (i *fakeInventory) Quote(ctx context.Context, sessionID uuid.UUID) (float64, error) {
	if i.quoteErr != nil {
		return 0, i.quoteErr
	}
	return i.amount, nil
}

func (i *fakeInventory) Confirm(ctx context.Context, sessionID uuid.UUID) (domain.Settlement, error) {
	if i.confirmErr != nil {
		return domain.Settlement{}, i.confirmErr
	}
	i.confirmed = append(i.confirmed, sessionID)
	return domain.Settlement{Order: domain.Order{ID: uuid.New(), SessionID: sessionID, TotalAmount: i.amount}}, nil
}

func (i *fakeInventory) Release(ctx context.Context, sessionID uuid.UUID) error {
	return nil
}

type fakeVoidQueue struct {
	requests []string
	err      error
}

func (q *fakeVoidQueue) RequestVoid(ctx context.Context, sessionID uuid.UUID, authRef string) error {
	if q.err != nil {
		return q.err
	}
	q.requests = append(q.requests, authRef)
	return nil
}

func TestFinalizer_Settle(t *testing.T) {
	t.Run("authorizes the quoted amount then confirms", func(t *testing.T) {
		inventory := &fakeInventory{amount: 150}
		gateway := &fakeGateway{}
		f := NewFinalizer(inventory, gateway, &fakeVoidQueue{}, observability.NewLogger())

		sessionID := uuid.New()
		settlement, err := f.Settle(context.Background(), sessionID, "tok_1")
		if err != nil {
			t.Fatal(err)
		}
		if settlement.Order.TotalAmount != 150 {
			t.Fatalf("expected amount 150, got %v", settlement.Order.TotalAmount)
		}
		if len(gateway.authorized) != 1 || gateway.authorized[0] != 150 {
			t.Fatalf("gateway authorized %v, want [150]", gateway.authorized)
		}
		if len(inventory.confirmed) != 1 {
			t.Fatalf("confirm not reached")
		}
	})

	t.Run("decline surfaces as recoverable and never confirms", func(t *testing.T) {
		inventory := &fakeInventory{amount: 80}
		gateway := &fakeGateway{authErr: errors.New("card declined")}
		f := NewFinalizer(inventory, gateway, &fakeVoidQueue{}, observability.NewLogger())

		_, err := f.Settle(context.Background(), uuid.New(), "tok_bad")
		if !errors.Is(err, domain.ErrPaymentDeclined) {
			t.Fatalf("expected ErrPaymentDeclined, got %v", err)
		}
		if len(inventory.confirmed) != 0 {
			t.Fatalf("confirm must not run after a decline")
		}
	})

	t.Run("confirm failure after authorization voids synchronously", func(t *testing.T) {
		inventory := &fakeInventory{amount: 80, confirmErr: domain.ErrCapacityRaceLost}
		gateway := &fakeGateway{}
		queue := &fakeVoidQueue{}
		f := NewFinalizer(inventory, gateway, queue, observability.NewLogger())

		_, err := f.Settle(context.Background(), uuid.New(), "tok_1")
		if !errors.Is(err, domain.ErrPaymentAuthorizedButConfirmFailed) {
			t.Fatalf("expected ErrPaymentAuthorizedButConfirmFailed, got %v", err)
		}
		// The underlying cause is preserved for the caller's error mapping.
		if !errors.Is(err, domain.ErrCapacityRaceLost) {
			t.Fatalf("expected race loss cause to survive, got %v", err)
		}
		if len(gateway.voided) != 1 || gateway.voided[0] != "auth-tok_1" {
			t.Fatalf("expected synchronous void, got %v", gateway.voided)
		}
		if len(queue.requests) != 0 {
			t.Fatalf("queue must not be used when the sync void succeeds")
		}
	})

	t.Run("void falls back to the queue when the gateway is down", func(t *testing.T) {
		inventory := &fakeInventory{amount: 80, confirmErr: domain.ErrSessionExpired}
		gateway := &fakeGateway{voidErr: errors.New("gateway timeout")}
		queue := &fakeVoidQueue{}
		f := NewFinalizer(inventory, gateway, queue, observability.NewLogger())

		_, err := f.Settle(context.Background(), uuid.New(), "tok_1")
		if !errors.Is(err, domain.ErrPaymentAuthorizedButConfirmFailed) {
			t.Fatalf("expected ErrPaymentAuthorizedButConfirmFailed, got %v", err)
		}
		if len(queue.requests) != 1 || queue.requests[0] != "auth-tok_1" {
			t.Fatalf("expected queued void, got %v", queue.requests)
		}
	})

	t.Run("quote failure stops before the gateway", func(t *testing.T) {
		inventory := &fakeInventory{quoteErr: domain.ErrSessionExpired}
		gateway := &fakeGateway{}
		f := NewFinalizer(inventory, gateway, &fakeVoidQueue{}, observability.NewLogger())

		_, err := f.Settle(context.Background(), uuid.New(), "tok_1")
		if !errors.Is(err, domain.ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
		if len(gateway.authorized) != 0 {
			t.Fatalf("no authorization expected when the quote fails")
		}
	})
}
