// Package events pushes real-time events to connected staff over WebSockets.
// It implements a hub-and-spoke pattern where each connection is keyed by the
// authenticated user, so domain services can target individual recipients or
// everyone except the actor who triggered the event.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is a single real-time notification delivered to WebSocket clients.
type Event struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent builds an event with the current timestamp.
func NewEvent(name string, payload any) Event {
	return Event{Name: name, Timestamp: time.Now().UTC(), Payload: payload}
}

// Publisher is the interface domain services use to emit real-time events.
// Delivery is best-effort: offline users simply miss the event and rely on
// stored notifications instead.
type Publisher interface {
	// PublishToUsers delivers the event to every connection of each listed user.
	PublishToUsers(ctx context.Context, userIDs []uuid.UUID, event Event)
	// PublishToAll delivers the event to every connected user except those excluded.
	PublishToAll(ctx context.Context, event Event, exclude ...uuid.UUID)
}

// Client represents a single WebSocket connection owned by a user. A user may
// hold several concurrent connections (multiple tabs or devices).
type Client struct {
	UserID uuid.UUID
	Send   chan []byte
}

// Hub is the central connection manager. All operations are thread-safe via
// sync.RWMutex.
type Hub struct {
	mu      sync.RWMutex
	byUser  map[uuid.UUID]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

// NewHub creates a new Hub ready to manage WebSocket clients.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		byUser: make(map[uuid.UUID]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a client to the hub under its user ID.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	if h.byUser[client.UserID] == nil {
		h.byUser[client.UserID] = make(map[*Client]struct{})
	}
	h.byUser[client.UserID][client] = struct{}{}
}

// Unregister removes a client from the hub and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	if conns, ok := h.byUser[client.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.byUser, client.UserID)
		}
	}

	delete(h.all, client)
	close(client.Send)
}

// PublishToUsers implements Publisher.
func (h *Hub) PublishToUsers(_ context.Context, userIDs []uuid.UUID, event Event) {
	data, ok := h.marshal(event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range userIDs {
		for client := range h.byUser[userID] {
			h.send(client, data, event.Name)
		}
	}
}

// PublishToAll implements Publisher.
func (h *Hub) PublishToAll(_ context.Context, event Event, exclude ...uuid.UUID) {
	data, ok := h.marshal(event)
	if !ok {
		return
	}

	excluded := make(map[uuid.UUID]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.all {
		if _, skip := excluded[client.UserID]; skip {
			continue
		}
		h.send(client, data, event.Name)
	}
}

func (h *Hub) marshal(event Event) ([]byte, bool) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event.Name).Msg("failed to marshal event")
		return nil, false
	}
	return data, true
}

func (h *Hub) send(client *Client, data []byte, eventName string) {
	select {
	case client.Send <- data:
	default:
		// Client buffer full; skip to avoid blocking.
		h.logger.Warn().
			Str("user_id", client.UserID.String()).
			Str("event", eventName).
			Msg("dropping event for slow client")
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// UserConnCount returns the number of connections held by a specific user.
func (h *Hub) UserConnCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// IsOnline reports whether the user currently holds at least one connection.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	return h.UserConnCount(userID) > 0
}
