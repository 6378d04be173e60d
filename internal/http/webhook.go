package httpapi

import (
	"io"
	"net/http"
)

// handleStripeWebhook verifies the gateway signature and forwards the
// confirmed funding tuple to the wallet ledger. Redeliveries are safe:
// topUp is idempotent on the payment intent id.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if s.Payments == nil {
		writeJSONError(w, http.StatusNotImplemented, "payments_disabled", "payment gateway not configured")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "unreadable payload")
		return
	}
	ev, ok, err := s.Payments.VerifyTopUp(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.logger.Warn("webhook verification failed", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid_signature", "verification failed")
		return
	}
	if !ok {
		// Not a funding event; acknowledge so the gateway stops resending.
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if _, err := s.Wallet.TopUp(r.Context(), ev.UserID, ev.Amount, ev.ExternalRef); err != nil {
		s.logger.Error("top-up credit failed", "user_id", ev.UserID, "ref", ev.ExternalRef, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal", "credit failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
