package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ticketry/boxoffice/internal/settlement"
)

const voidQueue = "payment.void.q"

// VoidConsumer feeds the settlement void worker from the durable void queue.
type VoidConsumer struct {
	ch *amqp.Channel
}

func NewVoidConsumer(conn *amqp.Connection) (*VoidConsumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(voidQueue, true, false, false, false, nil); err != nil {
		return nil, err
	}
	if err := ch.QueueBind(voidQueue, "payment.void", exchange, false, nil); err != nil {
		return nil, err
	}
	return &VoidConsumer{ch: ch}, nil
}

func (c *VoidConsumer) Consume(ctx context.Context) (<-chan settlement.VoidDelivery, error) {
	deliveries, err := c.ch.Consume(voidQueue, "", false, false, false, false, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan settlement.VoidDelivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				out <- settlement.VoidDelivery{
					Body: d.Body,
					Ack:  func() error { return d.Ack(false) },
					Nack: func() error { return d.Nack(false, true) },
				}
			}
		}
	}()
	return out, nil
}
