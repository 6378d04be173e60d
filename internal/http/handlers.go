package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ridehail/internal/dispatch"
	"github.com/example/ridehail/internal/ingest"
	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/payments"
	"github.com/example/ridehail/internal/relay"
	"github.com/example/ridehail/internal/ride"
	"github.com/example/ridehail/internal/storage"
	"github.com/example/ridehail/internal/wallet"
)

// Server maps HTTP and WebSocket traffic onto the ride and wallet
// services. Identity arrives pre-verified from the gateway in the
// X-User-ID header; this process does no authentication of its own.
type Server struct {
	Rides    *ride.Service
	Wallet   *wallet.Ledger
	Hub      *dispatch.Hub
	Relay    *relay.Relay
	Payments *payments.Client // nil when Stripe is not configured
	Producer *ingest.Producer // nil when Kafka is not configured

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(rides *ride.Service, ledger *wallet.Ledger, hub *dispatch.Hub, rel *relay.Relay,
	pay *payments.Client, producer *ingest.Producer, logger *slog.Logger) *Server {
	s := &Server{
		Rides:    rides,
		Wallet:   ledger,
		Hub:      hub,
		Relay:    rel,
		Payments: pay,
		Producer: producer,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rides/request", s.requireIdentity(s.handleRequestRide)).Methods("POST")
	api.HandleFunc("/rides/active", s.requireIdentity(s.handleActiveRide)).Methods("GET")
	api.HandleFunc("/rides/history", s.requireIdentity(s.handleHistory)).Methods("GET")
	api.HandleFunc("/rides/{id}", s.requireIdentity(s.handleGetRide)).Methods("GET")
	api.HandleFunc("/rides/{id}/accept", s.requireIdentity(s.handleAcceptRide)).Methods("PATCH")
	api.HandleFunc("/rides/{id}/status", s.requireIdentity(s.handleAdvanceStatus)).Methods("PATCH")
	api.HandleFunc("/rides/{id}/cancel", s.requireIdentity(s.handleCancelRide)).Methods("PATCH")

	api.HandleFunc("/wallet/balance", s.requireIdentity(s.handleBalance)).Methods("GET")
	api.HandleFunc("/wallet/transactions", s.requireIdentity(s.handleTransactions)).Methods("GET")
	api.HandleFunc("/wallet/topup/intent", s.requireIdentity(s.handleTopUpIntent)).Methods("POST")

	s.mux.HandleFunc("/webhooks/stripe", s.handleStripeWebhook).Methods("POST")
	s.mux.HandleFunc("/ws", s.handleWS)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request, userID string) {
	var req models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	created, err := s.Rides.RequestRide(r.Context(), req, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleActiveRide(w http.ResponseWriter, r *http.Request, userID string) {
	active, err := s.Rides.ActiveRide(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// null body when there is no active ride
	writeJSON(w, http.StatusOK, active)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, userID string) {
	rides, err := s.Rides.History(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rides == nil {
		rides = []*models.Ride{}
	}
	writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request, _ string) {
	out, err := s.Rides.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAcceptRide(w http.ResponseWriter, r *http.Request, userID string) {
	out, err := s.Rides.AcceptRide(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdvanceStatus(w http.ResponseWriter, r *http.Request, userID string) {
	var body struct {
		Status models.RideStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	out, err := s.Rides.AdvanceStatus(r.Context(), mux.Vars(r)["id"], body.Status, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request, _ string) {
	out, err := s.Rides.CancelRide(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, userID string) {
	balance, err := s.Wallet.Balance(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	entries, err := s.Wallet.Entries(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleTopUpIntent(w http.ResponseWriter, r *http.Request, userID string) {
	if s.Payments == nil {
		writeJSONError(w, http.StatusNotImplemented, "payments_disabled", "payment gateway not configured")
		return
	}
	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body.Amount <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive")
		return
	}
	intent, err := s.Payments.CreateTopUpIntent(r.Context(), userID, body.Amount)
	if err != nil {
		s.logger.Error("payment intent creation failed", "user_id", userID, "error", err)
		writeJSONError(w, http.StatusBadGateway, "gateway_error", "payment gateway rejected the request")
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

// writeError translates the domain taxonomy onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ride.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ride.ErrAlreadyAccepted):
		// Expected race outcome: drivers dismiss the offer quietly.
		writeJSONError(w, http.StatusConflict, "ride_unavailable", err.Error())
	case errors.Is(err, ride.ErrInvalidTransition), errors.Is(err, ride.ErrDriverMismatch):
		writeJSONError(w, http.StatusBadRequest, "invalid_transition", err.Error())
	case errors.Is(err, wallet.ErrInvalidAmount):
		writeJSONError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, wallet.ErrInsufficientFunds):
		writeJSONError(w, http.StatusPaymentRequired, "insufficient_funds", err.Error())
	case errors.Is(err, storage.ErrUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "try again shortly")
	default:
		s.logger.Error("request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
