package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ticketry/boxoffice/internal/observability"
)

// VoidRequest is the wire payload of a queued compensating void.
type VoidRequest struct {
	SessionID string `json:"session_id"`
	AuthRef   string `json:"auth_ref"`
}

// VoidSource delivers queued void requests. Ack removes a delivery; Nack
// requeues it for another attempt.
type VoidSource interface {
	Consume(ctx context.Context) (<-chan VoidDelivery, error)
}

type VoidDelivery struct {
	Body []byte
	Ack  func() error
	Nack func() error
}

// VoidWorker drains the void queue against the gateway with backoff. A void
// that exhausts its retries stays on the queue; the alert log is the signal
// for manual remediation.
type VoidWorker struct {
	source     VoidSource
	gateway    Gateway
	logger     observability.Logger
	maxRetries int
}

func NewVoidWorker(source VoidSource, gateway Gateway, logger observability.Logger) *VoidWorker {
	return &VoidWorker{
		source:     source,
		gateway:    gateway,
		logger:     logger,
		maxRetries: 5,
	}
}

func (w *VoidWorker) Run(ctx context.Context) error {
	deliveries, err := w.source.Consume(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handle(ctx, d)
		}
	}
}

func (w *VoidWorker) handle(ctx context.Context, d VoidDelivery) {
	var req VoidRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		w.logger.WithError(err).Error("malformed void request dropped")
		_ = d.Ack()
		return
	}

	log := w.logger.WithField("session_id", req.SessionID).WithField("auth_ref", req.AuthRef)

	for i := 0; i < w.maxRetries; i++ {
		err := w.gateway.Void(ctx, req.AuthRef)
		if err == nil {
			log.Info("compensating void completed")
			_ = d.Ack()
			return
		}
		log.WithError(err).Warn("void attempt failed")

		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			_ = d.Nack()
			return
		case <-time.After(backoff):
		}
	}

	log.Error("void retries exhausted, requeueing")
	_ = d.Nack()
}
