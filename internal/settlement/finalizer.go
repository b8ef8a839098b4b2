// Package settlement sequences the payment gateway round trip with the
// inventory confirm. The two form a cross-system saga: the gateway call
// happens before confirm, outside any inventory lock, and an authorization
// that outlives a failed confirm is compensated with a void.
package settlement

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ticketry/boxoffice/internal/domain"
	"github.com/ticketry/boxoffice/internal/observability"
)

// Gateway is the opaque external payment collaborator. Authorize returns a
// capture reference on success; Void reverses a prior authorization.
type Gateway interface {
	Authorize(ctx context.Context, token string, amount float64) (string, error)
	Void(ctx context.Context, authRef string) error
}

// Inventory is the slice of the reservation manager the finalizer drives.
type Inventory interface {
	Quote(ctx context.Context, sessionID uuid.UUID) (float64, error)
	Confirm(ctx context.Context, sessionID uuid.UUID) (domain.Settlement, error)
	Release(ctx context.Context, sessionID uuid.UUID) error
}

// VoidQueue hands a compensating void to asynchronous, retried remediation.
// Requests must survive the process; dropping one silently loses money.
type VoidQueue interface {
	RequestVoid(ctx context.Context, sessionID uuid.UUID, authRef string) error
}

// Audit records void incidents for the review trail. Optional, best-effort.
type Audit interface {
	LogVoidIncident(ctx context.Context, sessionID uuid.UUID, authRef string) error
}

type Finalizer struct {
	inventory Inventory
	gateway   Gateway
	voids     VoidQueue
	logger    observability.Logger
	audit     Audit
}

type Option func(*Finalizer)

func WithAudit(a Audit) Option {
	return func(f *Finalizer) {
		f.audit = a
	}
}

func NewFinalizer(inventory Inventory, gateway Gateway, voids VoidQueue, logger observability.Logger, opts ...Option) *Finalizer {
	f := &Finalizer{
		inventory: inventory,
		gateway:   gateway,
		voids:     voids,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Settle authorizes payment, then confirms the hold. Declines leave the hold
// untouched for a retry within the remaining TTL. A confirm failure after a
// successful authorization queues a compensating void and surfaces as an
// incident, never a silent swallow.
func (f *Finalizer) Settle(ctx context.Context, sessionID uuid.UUID, token string) (domain.Settlement, error) {
	amount, err := f.inventory.Quote(ctx, sessionID)
	if err != nil {
		return domain.Settlement{}, err
	}

	authRef, err := f.gateway.Authorize(ctx, token, amount)
	if err != nil {
		f.logger.WithError(err).WithField("session_id", sessionID).Info("payment declined")
		return domain.Settlement{}, errors.Mark(err, domain.ErrPaymentDeclined)
	}

	settlement, err := f.inventory.Confirm(ctx, sessionID)
	if err != nil {
		f.compensate(ctx, sessionID, authRef, err)
		return domain.Settlement{}, errors.Mark(err, domain.ErrPaymentAuthorizedButConfirmFailed)
	}

	return settlement, nil
}

// compensate tries a synchronous void first; if the gateway is unreachable
// the request goes to the retried queue. Either way the incident is logged
// at priority.
func (f *Finalizer) compensate(ctx context.Context, sessionID uuid.UUID, authRef string, confirmErr error) {
	observability.CompensatingVoids.Inc()
	f.logger.WithError(confirmErr).
		WithField("session_id", sessionID).
		WithField("auth_ref", authRef).
		Error("payment authorized but confirm failed, requesting void")

	if f.audit != nil {
		if err := f.audit.LogVoidIncident(ctx, sessionID, authRef); err != nil {
			f.logger.WithError(err).WithField("session_id", sessionID).Warn("audit write failed")
		}
	}

	if err := f.gateway.Void(ctx, authRef); err == nil {
		return
	}
	if err := f.voids.RequestVoid(ctx, sessionID, authRef); err != nil {
		// Last resort: everything we know goes into the log for manual
		// remediation.
		f.logger.WithError(err).
			WithField("session_id", sessionID).
			WithField("auth_ref", authRef).
			Error("void request could not be queued")
	}
}
