// Package checkout drives the billing → payment → confirmation flow on top
// of exactly one hold. Step data is session-local and has no concurrency
// hazard; only the hold and the ledger are shared state, and those are only
// touched through the reservation manager.
package checkout

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ticketry/boxoffice/internal/clock"
	"github.com/ticketry/boxoffice/internal/domain"
	"github.com/ticketry/boxoffice/internal/observability"
)

type BillingInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
}

type PaymentInfo struct {
	Method string `json:"method"`
	Token  string `json:"token"`
}

// Session is the controller's view of one checkout: the hold deadline plus
// whatever step data the shopper has submitted so far.
type Session struct {
	SessionID      uuid.UUID    `json:"session_id"`
	FunctionID     uuid.UUID    `json:"function_id"`
	LockExpiration time.Time    `json:"lock_expiration"`
	Billing        *BillingInfo `json:"billing,omitempty"`
	Payment        *PaymentInfo `json:"payment,omitempty"`
}

// SessionStore persists step data for the lifetime of the hold.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Get(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// Reserver is the slice of the reservation manager the controller needs.
type Reserver interface {
	Acquire(ctx context.Context, sessionID, functionID uuid.UUID, lines []domain.HoldLine) (domain.Hold, error)
	Release(ctx context.Context, sessionID uuid.UUID) error
}

// Settler runs the payment saga and the final confirm.
type Settler interface {
	Settle(ctx context.Context, sessionID uuid.UUID, token string) (domain.Settlement, error)
}

// Audit records hold and order lifecycle events for the review trail.
// Optional and best-effort; an audit failure never fails the checkout step.
type Audit interface {
	LogHoldAcquired(ctx context.Context, hold domain.Hold) error
	LogOrderConfirmed(ctx context.Context, settlement domain.Settlement) error
}

var (
	ErrMissingBilling = errors.New("billing step not completed")
	ErrMissingPayment = errors.New("payment step not completed")
	ErrInvalidBilling = errors.New("invalid billing info")
)

type Controller struct {
	reserver Reserver
	settler  Settler
	sessions SessionStore
	clock    clock.Clock
	logger   observability.Logger
	audit    Audit
}

type Option func(*Controller)

func WithAudit(a Audit) Option {
	return func(c *Controller) {
		c.audit = a
	}
}

func NewController(reserver Reserver, settler Settler, sessions SessionStore, clk clock.Clock, logger observability.Logger, opts ...Option) *Controller {
	c := &Controller{
		reserver: reserver,
		settler:  settler,
		sessions: sessions,
		clock:    clk,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start acquires a hold and opens the checkout session. The returned
// LockExpiration seeds the countdown the shopper sees.
func (c *Controller) Start(ctx context.Context, functionID uuid.UUID, lines []domain.HoldLine) (Session, error) {
	sessionID := uuid.New()
	hold, err := c.reserver.Acquire(ctx, sessionID, functionID, lines)
	if err != nil {
		return Session{}, err
	}

	session := Session{
		SessionID:      sessionID,
		FunctionID:     functionID,
		LockExpiration: hold.ExpiresAt,
	}
	if err := c.sessions.Save(ctx, session); err != nil {
		// The hold exists but the session state does not; give the
		// inventory back rather than strand it until the sweeper runs.
		_ = c.reserver.Release(ctx, sessionID)
		return Session{}, err
	}
	if c.audit != nil {
		if err := c.audit.LogHoldAcquired(ctx, hold); err != nil {
			c.logger.WithError(err).WithField("session_id", sessionID).Warn("audit write failed")
		}
	}
	return session, nil
}

// Remaining reports the time left on the hold's countdown.
func (c *Controller) Remaining(ctx context.Context, sessionID uuid.UUID) (time.Duration, error) {
	session, err := c.loadLive(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return session.LockExpiration.Sub(c.clock.Now()), nil
}

// SubmitBilling records the billing step. A validation failure leaves the
// hold untouched so the shopper can retry within the remaining TTL.
func (c *Controller) SubmitBilling(ctx context.Context, sessionID uuid.UUID, billing BillingInfo) error {
	if billing.Name == "" || billing.Email == "" {
		return ErrInvalidBilling
	}
	session, err := c.loadLive(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Billing = &billing
	return c.sessions.Save(ctx, *session)
}

// SubmitPayment records the tokenized payment method. Tokenization itself is
// the gateway's problem; a failure there is recoverable and never releases
// the hold.
func (c *Controller) SubmitPayment(ctx context.Context, sessionID uuid.UUID, payment PaymentInfo) error {
	session, err := c.loadLive(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Billing == nil {
		return ErrMissingBilling
	}
	session.Payment = &payment
	return c.sessions.Save(ctx, *session)
}

// Process runs the settlement saga for a fully filled-in session.
func (c *Controller) Process(ctx context.Context, sessionID uuid.UUID) (domain.Settlement, error) {
	session, err := c.loadLive(ctx, sessionID)
	if err != nil {
		return domain.Settlement{}, err
	}
	if session.Billing == nil {
		return domain.Settlement{}, ErrMissingBilling
	}
	if session.Payment == nil {
		return domain.Settlement{}, ErrMissingPayment
	}

	settlement, err := c.settler.Settle(ctx, sessionID, session.Payment.Token)
	if err != nil {
		if domain.IsUserRecoverable(err) {
			c.logger.WithError(err).WithField("session_id", sessionID).Info("settlement failed, awaiting retry")
		}
		return domain.Settlement{}, err
	}

	if err := c.sessions.Delete(ctx, sessionID); err != nil {
		c.logger.WithError(err).WithField("session_id", sessionID).Warn("could not delete checkout session")
	}
	if c.audit != nil {
		if err := c.audit.LogOrderConfirmed(ctx, settlement); err != nil {
			c.logger.WithError(err).WithField("session_id", sessionID).Warn("audit write failed")
		}
	}
	return settlement, nil
}

// Cancel releases the hold and discards step data. Idempotent; it is fine if
// the sweeper already reclaimed the hold.
func (c *Controller) Cancel(ctx context.Context, sessionID uuid.UUID) error {
	if err := c.reserver.Release(ctx, sessionID); err != nil {
		return err
	}
	if err := c.sessions.Delete(ctx, sessionID); err != nil {
		c.logger.WithError(err).WithField("session_id", sessionID).Warn("could not delete checkout session")
	}
	return nil
}

// loadLive fetches the session and enforces the deadline: a session past its
// lock expiration triggers an idempotent release and reads as expired.
func (c *Controller) loadLive(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	session, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionExpired
	}
	if !session.LockExpiration.After(c.clock.Now()) {
		_ = c.reserver.Release(ctx, sessionID)
		return nil, domain.ErrSessionExpired
	}
	return session, nil
}
