package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ticketry/boxoffice/internal/domain"
	"github.com/ticketry/boxoffice/internal/observability"
)

// AuditLogger records hold lifecycle transitions and settlement incidents.
// Best-effort: an audit failure is logged but never fails the operation it
// describes.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	SessionID uuid.UUID `bson:"session_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, sessionID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}

func (a *AuditLogger) LogHoldAcquired(ctx context.Context, hold domain.Hold) error {
	lines := make([]bson.M, len(hold.Lines))
	for i, line := range hold.Lines {
		lines[i] = bson.M{"ticket_type_id": line.TicketTypeID, "quantity": line.Quantity}
	}
	return a.LogEvent(ctx, "hold.acquired", hold.SessionID, map[string]interface{}{
		"function_id": hold.FunctionID,
		"lines":       lines,
		"expires_at":  hold.ExpiresAt.Format(time.RFC3339),
	})
}

func (a *AuditLogger) LogOrderConfirmed(ctx context.Context, settlement domain.Settlement) error {
	return a.LogEvent(ctx, "order.confirmed", settlement.Order.SessionID, map[string]interface{}{
		"order_id": settlement.Order.ID,
		"total":    settlement.Order.TotalAmount,
		"tickets":  len(settlement.Tickets),
	})
}

// HoldExpired records a sweeper reclaim, satisfying the sweeper's notifier
// alongside the broker publisher.
func (a *AuditLogger) HoldExpired(ctx context.Context, hold domain.Hold) error {
	return a.LogEvent(ctx, "hold.expired", hold.SessionID, map[string]interface{}{
		"function_id": hold.FunctionID,
		"expired_at":  hold.ExpiresAt.Format(time.RFC3339),
	})
}

// LogVoidIncident records the saga failure mode for the incident review
// trail.
func (a *AuditLogger) LogVoidIncident(ctx context.Context, sessionID uuid.UUID, authRef string) error {
	return a.LogEvent(ctx, "payment.void_requested", sessionID, map[string]interface{}{
		"auth_ref": authRef,
	})
}
