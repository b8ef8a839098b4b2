// Package outbox implements the transactional outbox: confirms record their
// events in the same transaction as the inventory mutation, and a separate
// publisher drains them to the broker.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ticketry/boxoffice/internal/adapters/crdb"
	"github.com/ticketry/boxoffice/internal/adapters/rabbit"
	"github.com/ticketry/boxoffice/internal/domain"
	"github.com/ticketry/boxoffice/internal/observability"
)

// Recorder satisfies reservation.Outbox by writing event rows inside the
// confirm transaction.
type Recorder struct {
	repo *crdb.Repository
}

func NewRecorder(repo *crdb.Repository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) ConfirmRecorded(ctx context.Context, order domain.Order) error {
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":   order.ID,
		"session_id": order.SessionID,
		"total":      order.TotalAmount,
	})
	if err != nil {
		return err
	}
	return r.repo.InsertOutbox(ctx, crdb.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     "order.confirmed",
		Payload:       payload,
		DedupeKey:     order.SessionID.String(),
	})
}

// Publisher polls unpublished records and forwards them to the broker.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
	batchSize int
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{
		repo:      repo,
		rabbitPub: rabbitPub,
		logger:    logger,
		batchSize: 10,
	}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishBatch(ctx)
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, p.batchSize)
	if err != nil {
		p.logger.WithError(err).Error("failed to read outbox")
		return
	}
	for _, rec := range records {
		observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())

		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithError(err).WithField("outbox_id", rec.ID).Error("failed to publish outbox record")
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.WithError(err).WithField("outbox_id", rec.ID).Error("failed to mark outbox record published")
		}
	}
}
