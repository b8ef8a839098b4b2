package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mongoadapter "github.com/ticketry/boxoffice/internal/adapters/mongo"
	"github.com/ticketry/boxoffice/internal/checkout"
	"github.com/ticketry/boxoffice/internal/domain"
	"github.com/ticketry/boxoffice/internal/idempotency"
)

// Checkout is the slice of the checkout controller the handlers call.
type Checkout interface {
	Start(ctx context.Context, functionID uuid.UUID, lines []domain.HoldLine) (checkout.Session, error)
	SubmitBilling(ctx context.Context, sessionID uuid.UUID, billing checkout.BillingInfo) error
	SubmitPayment(ctx context.Context, sessionID uuid.UUID, payment checkout.PaymentInfo) error
	Process(ctx context.Context, sessionID uuid.UUID) (domain.Settlement, error)
	Cancel(ctx context.Context, sessionID uuid.UUID) error
}

// Availability is the storefront's polling read.
type Availability interface {
	ForFunction(ctx context.Context, functionID uuid.UUID) (map[uuid.UUID]int, error)
}

// Orders resolves confirmed orders for the receipt endpoint.
type Orders interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	ListTicketsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.IssuedTicket, error)
}

// Catalog validates that the event function being purchased exists.
type Catalog interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*mongoadapter.EventDoc, error)
}

type Handlers struct {
	checkout     Checkout
	availability Availability
	orders       Orders
	catalog      Catalog
	idemp        *idempotency.Idempotency
}

func NewHandlers(co Checkout, avail Availability, orders Orders, catalog Catalog, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{
		checkout:     co,
		availability: avail,
		orders:       orders,
		catalog:      catalog,
		idemp:        idemp,
	}
}

// GetAvailability serves GET /v1/events/{id}/availability?function_id=F.
// Advisory only; acquire is the authority at purchase time.
func (h *Handlers) GetAvailability(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_event_id", "invalid event id")
		return
	}
	functionID, err := uuid.Parse(r.URL.Query().Get("function_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_function_id", "invalid function id")
		return
	}

	event, err := h.catalog.GetEvent(r.Context(), eventID)
	if err != nil || !event.HasFunction(functionID) {
		writeError(w, http.StatusNotFound, "not_found", "event function not found")
		return
	}

	avail, err := h.availability.ForFunction(r.Context(), functionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	byType := make(map[string]int, len(avail))
	for id, n := range avail {
		byType[id.String()] = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"function_id":  functionID,
		"availability": byType,
	})
}

// Acquire serves POST /v1/checkout/acquire: the implicit acquire at checkout
// entry. Returns the session id and the lock expiration for the countdown.
func (h *Handlers) Acquire(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if h.replay(w, r, key) {
		return
	}

	var req struct {
		FunctionID uuid.UUID      `json:"function_id"`
		Tickets    map[string]int `json:"tickets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	lines := make([]domain.HoldLine, 0, len(req.Tickets))
	for idStr, qty := range req.Tickets {
		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_ticket_type_id", "invalid ticket type id: "+idStr)
			return
		}
		lines = append(lines, domain.HoldLine{TicketTypeID: id, Quantity: qty})
	}

	session, err := h.checkout.Start(r.Context(), req.FunctionID, lines)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.respond(w, r, key, http.StatusCreated, map[string]interface{}{
		"session_id":      session.SessionID,
		"lock_expiration": session.LockExpiration.Format(time.RFC3339),
	})
}

// SubmitBilling serves POST /v1/checkout/billing.
func (h *Handlers) SubmitBilling(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID uuid.UUID            `json:"session_id"`
		Billing   checkout.BillingInfo `json:"billing_info"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.checkout.SubmitBilling(r.Context(), req.SessionID, req.Billing); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubmitPayment serves POST /v1/checkout/payment.
func (h *Handlers) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID uuid.UUID            `json:"session_id"`
		Payment   checkout.PaymentInfo `json:"payment_info"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.checkout.SubmitPayment(r.Context(), req.SessionID, req.Payment); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Process serves POST /v1/checkout/process: the final confirmation step.
func (h *Handlers) Process(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if h.replay(w, r, key) {
		return
	}

	var req struct {
		SessionID  uuid.UUID `json:"session_id"`
		Agreements bool      `json:"agreements"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if !req.Agreements {
		writeError(w, http.StatusBadRequest, "agreements_required", "terms must be accepted")
		return
	}

	settlement, err := h.checkout.Process(r.Context(), req.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.respond(w, r, key, http.StatusCreated, settlementPayload(settlement))
}

// ReleaseLocks serves POST /v1/checkout/releaseLocks. Idempotent; called on
// timer expiry or the shopper navigating away.
func (h *Handlers) ReleaseLocks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID uuid.UUID `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.checkout.Cancel(r.Context(), req.SessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

// GetOrder serves GET /v1/orders/{id}.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_order_id", "invalid order id")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	tickets, err := h.orders.ListTicketsByOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementPayload(domain.Settlement{Order: *order, Tickets: tickets}))
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

// replay writes the cached response for a seen idempotency key, reporting
// whether the request was handled.
func (h *Handlers) replay(w http.ResponseWriter, r *http.Request, key string) bool {
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return true
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return true
	}
	return false
}

func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, key string, status int, payload interface{}) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: data})
}

func settlementPayload(s domain.Settlement) map[string]interface{} {
	tickets := make([]map[string]interface{}, len(s.Tickets))
	for i, t := range s.Tickets {
		tickets[i] = map[string]interface{}{
			"id":             t.ID,
			"ticket_type_id": t.TicketTypeID,
			"status":         t.Status,
		}
	}
	return map[string]interface{}{
		"order_id": s.Order.ID,
		"total":    s.Order.TotalAmount,
		"tickets":  tickets,
	}
}
