package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/ticketry/boxoffice/internal/checkout"
	"github.com/ticketry/boxoffice/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// writeDomainError maps the error taxonomy onto the HTTP surface. The
// payload carries a retry/cancel affordance for the storefront.
func writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientAvailabilityError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":          "insufficient_availability",
			"message":        insufficient.Error(),
			"ticket_type_id": insufficient.TicketTypeID,
			"requested":      insufficient.Requested,
			"available":      insufficient.Available,
			"action":         "retry",
		})
		return
	}

	var invalid *domain.InvalidQuantityError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "invalid_quantity",
			"message": invalid.Error(),
			"action":  "retry",
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrPaymentAuthorizedButConfirmFailed):
		// The seat is gone and the charge will be voided; from the shopper's
		// perspective this is an expired session.
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":   "session_expired",
			"message": "the reservation could not be completed; any charge will be reversed",
			"action":  "restart",
		})
	case errors.Is(err, domain.ErrPaymentDeclined):
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":   "payment_declined",
			"message": "payment was declined",
			"action":  "retry",
		})
	case errors.Is(err, domain.ErrSessionExpired), errors.Is(err, domain.ErrCapacityRaceLost):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":   "session_expired",
			"message": "the reservation has expired",
			"action":  "restart",
		})
	case errors.Is(err, checkout.ErrMissingBilling), errors.Is(err, checkout.ErrMissingPayment),
		errors.Is(err, checkout.ErrInvalidBilling):
		writeError(w, http.StatusBadRequest, "incomplete_checkout", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrSerializationFailure):
		writeError(w, http.StatusConflict, "conflict", "conflict, try again")
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
