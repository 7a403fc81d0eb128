package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	log "github.com/sirupsen/logrus"

	"github.com/ticketwell/helpdesk-api/internal/models"
)

// Message types sent over the push channel.
const (
	MessageAuth        = "auth"
	MessageNotify      = "notification"
	MessageUnreadCount = "unread_count_update"
)

// AuthMessage is the first frame a client must send after the channel opens.
type AuthMessage struct {
	Type     string `json:"type"`
	UserID   uint   `json:"userId"`
	UserRole string `json:"userRole"`
}

// NotificationPayload is the wire shape of a pushed notification. ID may be
// zero when the push races row persistence; clients reconcile by
// (type, ticketId, timestamp) rather than by id.
type NotificationPayload struct {
	ID         uint            `json:"id,omitempty"`
	Type       string          `json:"type"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	TicketID   *uint           `json:"ticketId,omitempty"`
	TicketCode string          `json:"ticketCode,omitempty"`
	Priority   string          `json:"priority"`
	Metadata   models.Metadata `json:"metadata,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NotificationEvent wraps a pushed notification.
type NotificationEvent struct {
	Type         string              `json:"type"`
	Notification NotificationPayload `json:"notification"`
}

// UnreadCountEvent carries the authoritative unread counter. It is pushed on
// every change so clients never have to derive the badge from their cache.
type UnreadCountEvent struct {
	Type        string `json:"type"`
	UnreadCount int64  `json:"unreadCount"`
}

// PayloadFor converts a stored notification into its wire shape.
func PayloadFor(n *models.Notification) NotificationPayload {
	return NotificationPayload{
		ID:         n.ID,
		Type:       n.Type,
		Title:      n.Title,
		Message:    n.Message,
		TicketID:   n.TicketID,
		TicketCode: n.TicketCode,
		Priority:   n.Priority,
		Metadata:   n.Metadata,
		Timestamp:  n.CreatedAt,
	}
}

// messageWriter is the subset of *websocket.Conn the hub needs to write.
type messageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Conn wraps a websocket connection with its owning user. Writes are
// serialized so concurrent fan-out cannot interleave frames.
type Conn struct {
	userID uint
	mu     sync.Mutex
	ws     messageWriter
}

func NewConn(userID uint, ws *websocket.Conn) *Conn {
	return &Conn{userID: userID, ws: ws}
}

func (c *Conn) send(v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

// Hub tracks live connections per user and fans events out to all of a
// user's devices. There is no cross-user ordering; per-user order follows
// the order of Push calls.
type Hub struct {
	mu    sync.RWMutex
	users map[uint]map[*Conn]bool
}

func NewHub() *Hub {
	return &Hub{users: make(map[uint]map[*Conn]bool)}
}

// Register adds a connection for a user.
func (h *Hub) Register(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[conn.userID] == nil {
		h.users[conn.userID] = make(map[*Conn]bool)
	}
	h.users[conn.userID][conn] = true
	log.WithFields(log.Fields{"userId": conn.userID, "connections": len(h.users[conn.userID])}).Debug("ws register")
}

// Unregister removes a connection for a user.
func (h *Hub) Unregister(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.users[conn.userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.users, conn.userID)
		}
	}
}

// PushNotification delivers a new-notification event to every live
// connection of the user.
func (h *Hub) PushNotification(userID uint, payload NotificationPayload) {
	h.broadcast(userID, NotificationEvent{Type: MessageNotify, Notification: payload})
}

// PushUnreadCount delivers the authoritative unread counter to every live
// connection of the user.
func (h *Hub) PushUnreadCount(userID uint, count int64) {
	h.broadcast(userID, UnreadCountEvent{Type: MessageUnreadCount, UnreadCount: count})
}

func (h *Hub) broadcast(userID uint, event interface{}) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.send(event); err != nil {
			log.WithError(err).WithField("userId", userID).Warn("ws write failed")
		}
	}
}
