package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ridehail/internal/dispatch"
	"github.com/example/ridehail/internal/location"
	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/relay"
	"github.com/example/ridehail/internal/ride"
	"github.com/example/ridehail/internal/settlement"
	"github.com/example/ridehail/internal/storage"
	"github.com/example/ridehail/internal/wallet"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	server *Server
	rides  storage.RideStore
	ledger *wallet.Ledger
	hub    *dispatch.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()
	rideStore := storage.NewMemoryRideStore()
	walletStore := storage.NewMemoryWalletStore()

	hub := dispatch.NewHub(logger)
	rel := relay.New(hub, nil, rideStore, location.NewMemoryStore(), logger)
	ledger := wallet.NewLedger(walletStore, rel, logger)
	trigger := settlement.NewTrigger(ledger, rideStore, logger)
	machine := ride.NewMachine(rideStore, rel, logger, trigger)
	rides := ride.NewService(rideStore, machine, ride.NewCoordinator(machine), rel, nil, nil, logger)

	return &testEnv{
		server: NewServer(rides, ledger, hub, rel, nil, nil, logger),
		rides:  rideStore,
		ledger: ledger,
		hub:    hub,
	}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeRide(t *testing.T, rec *httptest.ResponseRecorder) models.Ride {
	t.Helper()
	var r models.Ride
	if err := json.NewDecoder(rec.Body).Decode(&r); err != nil {
		t.Fatalf("decode ride: %v", err)
	}
	return r
}

func TestRequestRideCreated(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/v1/rides/request", "rider1", models.RideRequest{
		PickupAddr: "Ikeja", DropAddr: "Lekki", Price: 15000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	r := decodeRide(t, rec)
	if r.Status != models.StatusSearching || r.RiderID != "rider1" || r.Price != 15000 {
		t.Fatalf("unexpected ride: %+v", r)
	}
}

func TestRequestRideRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/v1/rides/request", "", models.RideRequest{
		PickupAddr: "a", DropAddr: "b", Price: 100,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAcceptRideRace(t *testing.T) {
	env := newTestEnv(t)
	created := decodeRide(t, env.do(t, "POST", "/api/v1/rides/request", "rider1", models.RideRequest{
		PickupAddr: "a", DropAddr: "b", Price: 100,
	}))

	first := env.do(t, "PATCH", "/api/v1/rides/"+created.ID+"/accept", "driver1", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("winner got %d: %s", first.Code, first.Body.String())
	}
	if r := decodeRide(t, first); r.DriverID != "driver1" || r.Status != models.StatusAccepted {
		t.Fatalf("unexpected accepted ride: %+v", r)
	}

	second := env.do(t, "PATCH", "/api/v1/rides/"+created.ID+"/accept", "driver2", nil)
	if second.Code != http.StatusConflict {
		t.Fatalf("loser got %d: %s", second.Code, second.Body.String())
	}
	var errBody map[string]string
	if err := json.NewDecoder(second.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["code"] != "ride_unavailable" {
		t.Fatalf("unexpected error code: %v", errBody)
	}
}

func TestAcceptUnknownRideIs404(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "PATCH", "/api/v1/rides/nope/accept", "driver1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStatusProgressionAndInvalidJump(t *testing.T) {
	env := newTestEnv(t)
	created := decodeRide(t, env.do(t, "POST", "/api/v1/rides/request", "rider1", models.RideRequest{
		PickupAddr: "a", DropAddr: "b", Price: 100,
	}))
	env.do(t, "PATCH", "/api/v1/rides/"+created.ID+"/accept", "driver1", nil)

	// completing straight from ACCEPTED skips the pickup
	rec := env.do(t, "PATCH", "/api/v1/rides/"+created.ID+"/status", "driver1",
		map[string]string{"status": "COMPLETED"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("illegal jump got %d: %s", rec.Code, rec.Body.String())
	}

	for _, status := range []string{"ARRIVED", "IN_PROGRESS", "COMPLETED"} {
		rec := env.do(t, "PATCH", "/api/v1/rides/"+created.ID+"/status", "driver1",
			map[string]string{"status": status})
		if rec.Code != http.StatusOK {
			t.Fatalf("advance to %s got %d: %s", status, rec.Code, rec.Body.String())
		}
	}
}

func TestAdvanceByWrongDriverIs400(t *testing.T) {
	env := newTestEnv(t)
	created := decodeRide(t, env.do(t, "POST", "/api/v1/rides/request", "rider1", models.RideRequest{
		PickupAddr: "a", DropAddr: "b", Price: 100,
	}))
	env.do(t, "PATCH", "/api/v1/rides/"+created.ID+"/accept", "driver1", nil)

	rec := env.do(t, "PATCH", "/api/v1/rides/"+created.ID+"/status", "driver2",
		map[string]string{"status": "ARRIVED"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelRideEndpoint(t *testing.T) {
	env := newTestEnv(t)
	created := decodeRide(t, env.do(t, "POST", "/api/v1/rides/request", "rider1", models.RideRequest{
		PickupAddr: "a", DropAddr: "b", Price: 100,
	}))

	rec := env.do(t, "PATCH", "/api/v1/rides/"+created.ID+"/cancel", "rider1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel got %d: %s", rec.Code, rec.Body.String())
	}
	if r := decodeRide(t, rec); r.Status != models.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", r.Status)
	}
}

func TestActiveRideNullWhenNone(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/api/v1/rides/active", "rider1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("active got %d", rec.Code)
	}
	if body := bytes.TrimSpace(rec.Body.Bytes()); !bytes.Equal(body, []byte("null")) {
		t.Fatalf("expected null body, got %s", body)
	}
}

func TestHistoryEmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/api/v1/rides/history", "rider1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history got %d", rec.Code)
	}
	if body := bytes.TrimSpace(rec.Body.Bytes()); !bytes.Equal(body, []byte("[]")) {
		t.Fatalf("expected empty array, got %s", body)
	}
}

func TestCompletedRideSettlesWallets(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.ledger.TopUp(context.Background(), "rider1", 10000, "seed"); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	created := decodeRide(t, env.do(t, "POST", "/api/v1/rides/request", "rider1", models.RideRequest{
		PickupAddr: "a", DropAddr: "b", Price: 4000,
	}))
	env.do(t, "PATCH", "/api/v1/rides/"+created.ID+"/accept", "driver1", nil)
	for _, status := range []string{"ARRIVED", "IN_PROGRESS", "COMPLETED"} {
		if rec := env.do(t, "PATCH", "/api/v1/rides/"+created.ID+"/status", "driver1",
			map[string]string{"status": status}); rec.Code != http.StatusOK {
			t.Fatalf("advance to %s: %d", status, rec.Code)
		}
	}

	var balance map[string]int64
	rec := env.do(t, "GET", "/api/v1/wallet/balance", "driver1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance got %d", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance["balance"] != 4000 {
		t.Fatalf("driver balance after settlement: %d", balance["balance"])
	}

	rec = env.do(t, "GET", "/api/v1/wallet/transactions", "rider1", nil)
	var entries []models.Transaction
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	// seed top-up plus the ride payment debit
	if len(entries) != 2 {
		t.Fatalf("rider passbook: %+v", entries)
	}
}

func TestTopUpIntentWithoutGatewayIs501(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/v1/wallet/topup/intent", "rider1", map[string]int64{"amount": 5000})
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz got %d", rec.Code)
	}
}

// dialWS opens a websocket through the full server, middleware included.
func dialWS(t *testing.T, srv *httptest.Server, userID, role string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if role != "" {
		url += "?role=" + role
	}
	header := http.Header{}
	if userID != "" {
		header.Set("X-User-ID", userID)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial as %q: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// readEnvelope returns the next payload, skipping the session-ready
// pings waitForSession may have queued.
func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read: %v", err)
		}
		if env.Channel != sessionReadyChannel {
			return env
		}
	}
}

const sessionReadyChannel = "session-ready"

// waitForSession blocks until the hub has registered the identity, so a
// follow-up request cannot outrun the connection setup.
func waitForSession(t *testing.T, env *testEnv, identity string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := env.hub.PublishTo(identity, sessionReadyChannel, nil); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never registered", identity)
}

// The upgrade must survive the middleware chain; a wrapper that hides
// http.Hijacker breaks every realtime client.
func TestWebSocketUpgradeThroughMiddleware(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server)
	defer srv.Close()

	conn := dialWS(t, srv, "rider1", "")
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write on upgraded conn: %v", err)
	}
}

func TestWebSocketPlainRequestRejectedOnce(t *testing.T) {
	env := newTestEnv(t)
	// not an upgrade request; gorilla writes the only error response
	rec := env.do(t, "GET", "/ws", "rider1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 from the failed upgrade, got %d", rec.Code)
	}
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without identity succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake rejection, got %+v", resp)
	}
}

func TestWebSocketRecoveryReplaysActiveRide(t *testing.T) {
	env := newTestEnv(t)
	created := decodeRide(t, env.do(t, "POST", "/api/v1/rides/request", "rider1", models.RideRequest{
		PickupAddr: "a", DropAddr: "b", Price: 4000,
	}))
	env.do(t, "PATCH", "/api/v1/rides/"+created.ID+"/accept", "driver1", nil)

	srv := httptest.NewServer(env.server)
	defer srv.Close()

	conn := dialWS(t, srv, "rider1", "")
	msg := readEnvelope(t, conn)
	if msg.Channel != relay.RideStatusChannel(created.ID) {
		t.Fatalf("snapshot on wrong channel: %s", msg.Channel)
	}
	var snapshot models.Ride
	if err := json.Unmarshal(msg.Data, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.ID != created.ID || snapshot.Status != models.StatusAccepted {
		t.Fatalf("stale snapshot: %+v", snapshot)
	}
}

func TestWebSocketDriverSeesNewRideBroadcast(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server)
	defer srv.Close()

	conn := dialWS(t, srv, "driver1", "driver")
	waitForSession(t, env, "driver1")

	created := decodeRide(t, env.do(t, "POST", "/api/v1/rides/request", "rider1", models.RideRequest{
		PickupAddr: "a", DropAddr: "b", Price: 4000,
	}))

	msg := readEnvelope(t, conn)
	if msg.Channel != relay.ChannelNewRides {
		t.Fatalf("broadcast on wrong channel: %s", msg.Channel)
	}
	var offered models.Ride
	if err := json.Unmarshal(msg.Data, &offered); err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	if offered.ID != created.ID || offered.Status != models.StatusSearching {
		t.Fatalf("unexpected offer: %+v", offered)
	}
}
