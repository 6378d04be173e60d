package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/relay"
)

var upgrader = websocket.Upgrader{}

// clientMessage is what a connected client may send upstream. Drivers
// report positions; anything else is ignored.
type clientMessage struct {
	Type    string  `json:"type"` // "location"
	RideID  string  `json:"ride_id"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Heading float64 `json:"heading"`
}

// handleWS upgrades the connection, registers the session, subscribes
// drivers to the broadcast channel and replays the client's active ride
// snapshot (session recovery). Then it pumps inbound messages until the
// peer goes away. Identity comes from the gateway-verified header, same
// as the REST surface; the connection is refused without it.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(identityHeader))
	if userID == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing_identity", "no verified user id on request")
		return
	}
	role := r.URL.Query().Get("role")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its own error response.
		s.logger.Debug("ws upgrade failed", "user_id", userID, "error", err)
		return
	}
	s.Hub.Add(userID, conn)
	if role == "driver" {
		s.Hub.Join(userID, relay.ChannelNewRides)
	}
	s.Relay.Recover(r.Context(), userID)

	go s.readLoop(userID, conn)
}

func (s *Server) readLoop(userID string, conn *websocket.Conn) {
	ctx := context.Background()
	defer func() {
		s.Hub.Remove(userID)
		_ = conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("ws message ignored", "user_id", userID, "error", err)
			continue
		}
		if msg.Type != "location" || msg.RideID == "" {
			continue
		}
		loc := models.LocationUpdate{
			RideID:   msg.RideID,
			DriverID: userID,
			Lat:      msg.Lat,
			Lng:      msg.Lng,
			Heading:  msg.Heading,
		}
		// Live relay to the ride's subscribers, then the pipeline that
		// feeds the last-known-location store.
		s.Relay.DriverLocation(ctx, loc)
		if s.Producer != nil {
			if err := s.Producer.PublishLocation(ctx, loc); err != nil {
				s.logger.Warn("location publish failed", "ride_id", loc.RideID, "error", err)
			}
		}
	}
}
