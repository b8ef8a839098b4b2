package rabbit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ticketry/boxoffice/internal/domain"
	"github.com/ticketry/boxoffice/internal/settlement"
)

const exchange = "boxoffice.events"

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	return p.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}

func (p *Publisher) publishJSON(ctx context.Context, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, key, amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
}

// HoldExpired satisfies sweeper.Notifier.
func (p *Publisher) HoldExpired(ctx context.Context, hold domain.Hold) error {
	return p.publishJSON(ctx, "hold.expired", map[string]any{
		"session_id":  hold.SessionID,
		"function_id": hold.FunctionID,
		"expired_at":  hold.ExpiresAt,
	})
}

// RequestVoid satisfies settlement.VoidQueue. Voids go through the exchange
// to the durable void queue so they survive this process.
func (p *Publisher) RequestVoid(ctx context.Context, sessionID uuid.UUID, authRef string) error {
	return p.publishJSON(ctx, "payment.void", settlement.VoidRequest{
		SessionID: sessionID.String(),
		AuthRef:   authRef,
	})
}
