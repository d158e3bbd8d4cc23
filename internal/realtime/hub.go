package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"dispatch/internal/common/logger"
	"dispatch/internal/domain/user"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
)

// Conn is one authenticated WebSocket connection tracked by the hub.
type Conn struct {
	ID     string
	UserID string
	Role   user.Role

	sock *websocket.Conn

	// serializes all writes to sock, including control frames
	writeMu sync.Mutex
}

// NewConn wraps an upgraded socket with its authenticated identity.
func NewConn(id, userID string, role user.Role, sock *websocket.Conn) *Conn {
	return &Conn{ID: id, UserID: userID, Role: role, sock: sock}
}

// WriteJSON marshals v and writes a single text frame under the write lock.
func (c *Conn) WriteJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, payload)
}

// WriteMessage sets a short write deadline and writes a frame under the write lock.
func (c *Conn) WriteMessage(mt int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.sock.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.sock.WriteMessage(mt, payload)
}

// ReadJSON reads the next text frame into v. Reads are only ever issued from
// the connection's single read loop, so no lock is taken.
func (c *Conn) ReadJSON(v any) error {
	return c.sock.ReadJSON(v)
}

// Ping sends a ping control frame under the write lock.
func (c *Conn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.sock.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// WriteClose sends a close control frame with the given code and reason.
func (c *Conn) WriteClose(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.sock.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = c.sock.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
}

// Hub tracks live connections and their room memberships. Broadcasts are
// fire-and-forget: a slow or dead subscriber never blocks or fails the
// operation that triggered the event.
type Hub struct {
	logger *logger.Logger

	mu    sync.RWMutex
	conns map[string]*Conn               // conn id -> conn
	rooms map[string]map[string]*Conn    // room -> conn id -> conn
	joins map[string]map[string]struct{} // conn id -> set of joined rooms
}

// NewHub constructs an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger: log,
		conns:  make(map[string]*Conn),
		rooms:  make(map[string]map[string]*Conn),
		joins:  make(map[string]map[string]struct{}),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
	h.joins[c.ID] = make(map[string]struct{})
}

// Unregister removes a connection from the hub and every room it joined.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.joins[connID] {
		delete(h.rooms[room], connID)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.joins, connID)
	delete(h.conns, connID)
}

// Join subscribes a connection to a room. Unknown connections are ignored.
func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Conn)
	}
	h.rooms[room][connID] = c
	h.joins[connID][room] = struct{}{}
}

// Leave unsubscribes a connection from a room.
func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.rooms[room], connID)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
	if h.joins[connID] != nil {
		delete(h.joins[connID], room)
	}
}

// Broadcast sends v to every member of a room. Write failures are logged and
// the failing connection is dropped from the hub; the caller never sees an error.
func (h *Hub) Broadcast(room string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error(context.Background(), "ws_broadcast_marshal_failed",
			"Failed to marshal broadcast payload", err, map[string]any{"room": room})
		return
	}

	h.mu.RLock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug(context.Background(), "ws_broadcast_write_failed",
				"Dropping subscriber after failed write",
				map[string]any{"room": room, "conn_id": c.ID})
			h.Unregister(c.ID)
		}
	}
}

// SendTo writes v to a single connection, if it is still registered.
func (h *Hub) SendTo(connID string, v any) error {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return nil // connection already gone
	}
	return c.WriteJSON(v)
}

// RoomSize returns the number of members in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ConnCount returns the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
