package http

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"quiz-host/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 32
)

// ConnMetrics observes the websocket gateway.
type ConnMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
	MessageDropped()
}

type noopConnMetrics struct{}

func (noopConnMetrics) ConnectionOpened() {}
func (noopConnMetrics) ConnectionClosed() {}
func (noopConnMetrics) MessageDropped()   {}

type role int

const (
	roleNone role = iota
	roleParticipant
	roleAdmin
)

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// client is one websocket connection. roomID and role are guarded by the hub lock;
// participantID and adminID are only touched by the connection's read loop.
type client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool

	roomID string
	role   role

	participantID string
	adminID       string
}

func newClient(conn *websocket.Conn, adminID string) *client {
	return &client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		adminID: adminID,
	}
}

// enqueue never blocks: when the buffer is full the oldest queued message is dropped.
func (c *client) enqueue(msg []byte) (dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	for {
		select {
		case c.send <- msg:
			return dropped
		default:
		}
		select {
		case <-c.send:
			dropped = true
		default:
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub fans room events out to the connections attached to each room. It implements
// app.Broadcaster and never blocks the caller.
type Hub struct {
	metrics ConnMetrics

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func NewHub(metrics ConnMetrics) *Hub {
	if metrics == nil {
		metrics = noopConnMetrics{}
	}
	return &Hub{
		metrics: metrics,
		rooms:   make(map[string]map[*client]struct{}),
	}
}

func (h *Hub) Broadcast(roomID string, audience domain.Audience, event string, payload any) {
	msg, err := json.Marshal(outboundMessage{Type: event, Payload: payload})
	if err != nil {
		log.Printf("broadcast %s to room %s: %v", event, roomID, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		if audience == domain.AudienceAdmins && c.role != roleAdmin {
			continue
		}
		if c.enqueue(msg) {
			h.metrics.MessageDropped()
		}
	}
}

// attach moves c into roomID's group with the given role.
func (h *Hub) attach(c *client, roomID string, r role) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c)
	group, ok := h.rooms[roomID]
	if !ok {
		group = make(map[*client]struct{})
		h.rooms[roomID] = group
	}
	group[c] = struct{}{}
	c.roomID = roomID
	c.role = r
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c)
}

func (h *Hub) detachLocked(c *client) {
	if c.roomID == "" {
		return
	}
	if group, ok := h.rooms[c.roomID]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.rooms, c.roomID)
		}
	}
	c.roomID = ""
	c.role = roleNone
}

// reply queues a message for a single connection.
func (h *Hub) reply(c *client, event string, payload any) {
	msg, err := json.Marshal(outboundMessage{Type: event, Payload: payload})
	if err != nil {
		log.Printf("reply %s: %v", event, err)
		return
	}
	if c.enqueue(msg) {
		h.metrics.MessageDropped()
	}
}

// connections reports how many clients are attached to roomID.
func (h *Hub) connections(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
