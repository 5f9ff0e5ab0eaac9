package http

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

const sendBuffer = 64

// Hub is the broadcast gateway: it tracks which connection sits in which room
// and fans encoded events out to per-connection send queues. It never blocks;
// a connection whose queue is full misses the event.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]struct{}
}

type client struct {
	id   string
	room string
	send chan []byte
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Register creates the send queue of a new connection.
func (h *Hub) Register(connID string) <-chan []byte {
	c := &client{id: connID, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[connID] = c
	h.mu.Unlock()
	return c.send
}

// Unregister drops the connection and closes its queue.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	delete(h.clients, connID)
	close(c.send)
}

// RoomOf returns the room the connection is subscribed to, if any.
func (h *Hub) RoomOf(connID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		return c.room
	}
	return ""
}

// Members returns the number of connections subscribed to a room.
func (h *Hub) Members(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}

// Subscribe moves the connection into the room.
func (h *Hub) Subscribe(roomCode, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if c.room != "" && c.room != roomCode {
		h.leaveLocked(c)
	}
	members, ok := h.rooms[roomCode]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[roomCode] = members
	}
	members[connID] = struct{}{}
	c.room = roomCode
}

func (h *Hub) Unsubscribe(roomCode, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok || c.room != roomCode {
		return
	}
	h.leaveLocked(c)
}

func (h *Hub) Broadcast(roomCode string, event domain.Event) {
	msg, ok := h.encode(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID := range h.rooms[roomCode] {
		h.deliverLocked(h.clients[connID], event.Type, msg)
	}
}

func (h *Hub) Send(connID string, event domain.Event) {
	msg, ok := h.encode(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliverLocked(h.clients[connID], event.Type, msg)
}

// CloseRoom detaches every member from the room; the connections stay open.
func (h *Hub) CloseRoom(roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for connID := range h.rooms[roomCode] {
		if c, ok := h.clients[connID]; ok && c.room == roomCode {
			c.room = ""
		}
	}
	delete(h.rooms, roomCode)
}

func (h *Hub) leaveLocked(c *client) {
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

func (h *Hub) deliverLocked(c *client, eventType string, msg []byte) {
	if c == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("dropping event for slow connection", zap.String("conn", c.id), zap.String("event", eventType))
	}
}

func (h *Hub) encode(event domain.Event) ([]byte, bool) {
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode event failed", zap.String("event", event.Type), zap.Error(err))
		return nil, false
	}
	return msg, true
}
