package dispatch

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ridehail/internal/observability"
)

var ErrNoSession = errors.New("no active session")

// Message is the wire envelope: every payload is tagged with the channel
// it was published on so clients can route it.
type Message struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// Session wraps one websocket connection. gorilla/websocket allows a
// single concurrent writer, hence the per-session mutex.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Session) send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// Hub tracks connected client sessions and their channel memberships.
// It implements relay.Transport.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session            // identity -> session
	channels map[string]map[string]struct{} // channel -> member identities
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		channels: make(map[string]map[string]struct{}),
		logger:   logger,
	}
}

// Add registers a connection for an identity. A reconnect replaces the
// previous session; the stale connection is closed.
func (h *Hub) Add(identity string, conn *websocket.Conn) {
	h.mu.Lock()
	old := h.sessions[identity]
	h.sessions[identity] = &Session{conn: conn}
	h.mu.Unlock()
	if old != nil {
		_ = old.conn.Close()
	} else {
		observability.WSConnections.Inc()
	}
}

// Remove drops the identity's session and all its channel memberships.
func (h *Hub) Remove(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[identity]; !ok {
		return
	}
	delete(h.sessions, identity)
	for ch, members := range h.channels {
		delete(members, identity)
		if len(members) == 0 {
			delete(h.channels, ch)
		}
	}
	observability.WSConnections.Dec()
}

func (h *Hub) Join(identity, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[string]struct{})
		h.channels[channel] = members
	}
	members[identity] = struct{}{}
}

func (h *Hub) Leave(identity, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(members, identity)
	if len(members) == 0 {
		delete(h.channels, channel)
	}
}

// Publish delivers the payload to every connected member of the channel.
// Per-session write failures are logged and do not fail the publish.
func (h *Hub) Publish(channel string, payload any) error {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.channels[channel]))
	for identity := range h.channels[channel] {
		if s, ok := h.sessions[identity]; ok {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	msg := Message{Channel: channel, Data: payload}
	for _, s := range targets {
		if err := s.send(msg); err != nil {
			h.logger.Warn("ws send failed", "channel", channel, "error", err)
		}
	}
	return nil
}

// PublishTo delivers directly to one identity, whether or not it is a
// member of the channel. Used for snapshot replay and wallet pushes.
func (h *Hub) PublishTo(identity, channel string, payload any) error {
	h.mu.RLock()
	s, ok := h.sessions[identity]
	h.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(Message{Channel: channel, Data: payload})
}
