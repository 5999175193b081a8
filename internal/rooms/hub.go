package rooms

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/models"
)

// Member receives room broadcasts. Delivery is attempted once per message.
type Member interface {
	Deliver(ev models.Event) error
}

// Hub is a transient relay of in-ride chat, keyed by order id. Rooms are
// created implicitly on first join and hold no message history; membership
// does not survive reconnects.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Member]struct{}
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{rooms: make(map[string]map[Member]struct{}), log: log}
}

func (h *Hub) Join(roomID string, m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[Member]struct{})
		h.rooms[roomID] = members
	}
	members[m] = struct{}{}
}

func (h *Hub) Leave(roomID string, m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[roomID]; ok {
		delete(members, m)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Send fans the message to all current members, best-effort.
func (h *Hub) Send(roomID string, ev models.Event) {
	h.mu.RLock()
	members := make([]Member, 0, len(h.rooms[roomID]))
	for m := range h.rooms[roomID] {
		members = append(members, m)
	}
	h.mu.RUnlock()

	for _, m := range members {
		if err := m.Deliver(ev); err != nil {
			h.log.Warn("room delivery failed", "room", roomID, "error", err)
		}
	}
}

// Close emits the terminal ride_ended signal and releases the room.
func (h *Hub) Close(roomID string) {
	h.mu.Lock()
	members := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	for m := range members {
		if err := m.Deliver(models.Event{Type: models.EventRideEnded, OrderID: roomID}); err != nil {
			h.log.Warn("ride_ended delivery failed", "room", roomID, "error", err)
		}
	}
}

// Members reports current room size, mostly for tests and metrics.
func (h *Hub) Members(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// WSMember adapts a websocket connection into a room member. The mutex
// serializes writes; gorilla/websocket allows one concurrent writer only.
type WSMember struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewWSMember(conn *websocket.Conn) *WSMember {
	return &WSMember{conn: conn}
}

func (s *WSMember) Deliver(ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}
