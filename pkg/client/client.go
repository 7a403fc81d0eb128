// Package client is the Go SDK for the helpdesk notification engine: a
// per-instance push-channel connection with automatic reconnection and
// backfill, a bounded reconciled view of recent notifications, and the REST
// mutations for read-state and deletion.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ticketwell/helpdesk-api/internal/ws"
)

// State is the connection lifecycle state of one client instance.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateLive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateLive:
		return "live"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// ErrAlreadyConnected is returned by Connect while a connection is already
// being established or is live for this instance. Opening a second channel
// per instance is a caller bug the client refuses to act on.
var ErrAlreadyConnected = errors.New("client: connection already active")

// Conn is the subset of a websocket connection the client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens the push channel. The default dials a real websocket; tests
// inject fakes.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

type websocketDialer struct{}

func (websocketDialer) DialContext(ctx context.Context, rawURL string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config configures one client instance.
type Config struct {
	// BaseURL is the http(s) origin of the service, e.g. "http://localhost:8080".
	BaseURL string
	// Token is the JWT identifying the session.
	Token string
	// UserID and UserRole go into the auth frame and must match the token.
	UserID   uint
	UserRole string

	// CacheSize bounds the local view (default 100).
	CacheSize int
	// BackfillLimit bounds the unread backfill page (default 50).
	BackfillLimit int
	// HandshakeTimeout bounds dial-to-accepted (default 10s).
	HandshakeTimeout time.Duration
	// MinBackoff/MaxBackoff bound the reconnect delay (default 1s/30s).
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// Dialer and HTTPClient are injectable for tests.
	Dialer     Dialer
	HTTPClient *http.Client

	// Callbacks, all optional, invoked from the connection goroutine.
	OnNotification func(Notification)
	OnUnreadCount  func(int64)
	OnStateChange  func(State)
}

func (cfg *Config) applyDefaults() {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = 50
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocketDialer{}
	}
}

// Client is one client instance: one device, one channel, one cached view.
// Multiple instances for the same user are independent of each other.
type Client struct {
	cfg        Config
	instanceID uuid.UUID
	api        *api
	cache      *Cache

	mu          sync.Mutex
	state       State
	lastErr     error
	unread      int64
	conn        Conn
	cancel      context.CancelFunc
	done        chan struct{}
	backfilling bool
}

func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:        cfg,
		instanceID: uuid.New(),
		api:        newAPI(cfg.BaseURL, cfg.Token, cfg.HTTPClient),
		cache:      NewCache(cfg.CacheSize),
	}
}

// InstanceID identifies this client instance.
func (c *Client) InstanceID() uuid.UUID {
	return c.instanceID
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the most recent transport error. A transport error never
// clears the cache or the counter; it only shows up here and in the state.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// UnreadCount returns the last counter received from an authoritative
// source (count push or query response). It is never derived from the cache.
func (c *Client) UnreadCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// Notifications returns the current reconciled view, newest first.
func (c *Client) Notifications() []Notification {
	return c.cache.Items()
}

// Connect starts the connection loop. It returns ErrAlreadyConnected while
// a previous Connect is still in effect; Close ends it.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = StateConnecting
	cb := c.cfg.OnStateChange
	c.mu.Unlock()

	if cb != nil {
		cb(StateConnecting)
	}
	go c.run(runCtx)
	return nil
}

// Close tears down this instance's channel and cancels its in-flight work.
// Other instances are unaffected. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	cancel := c.cancel
	conn := c.conn
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done

	c.setState(StateDisconnected)
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	backoff := c.cfg.MinBackoff
	for {
		wasLive, err := c.session(ctx)
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.setState(StateDisconnected)
		log.WithError(err).WithField("instance", c.instanceID).Debug("push channel lost, reconnecting")

		if wasLive {
			backoff = c.cfg.MinBackoff
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// session runs one dial-authenticate-live cycle and reports whether Live was
// reached before the error that ended it.
func (c *Client) session(ctx context.Context) (bool, error) {
	c.setState(StateConnecting)

	conn, err := c.cfg.Dialer.DialContext(ctx, c.wsURL())
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	c.setState(StateAuthenticating)
	auth, err := json.Marshal(ws.AuthMessage{
		Type:     ws.MessageAuth,
		UserID:   c.cfg.UserID,
		UserRole: c.cfg.UserRole,
	})
	if err != nil {
		return false, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, auth); err != nil {
		return false, err
	}

	// The server answers an accepted handshake with a counter seed; nothing
	// arrives at all if it rejects us, so bound the wait.
	conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	_, first, err := conn.ReadMessage()
	if err != nil {
		return false, err
	}
	conn.SetReadDeadline(time.Time{})

	c.setState(StateLive)
	c.dispatch(first)
	go c.backfill(ctx)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.dispatch(msg)
	}
}

// backfill recovers notifications missed while disconnected. At most one
// backfill runs per instance; a failure is retried on the next transition
// into Live, not in a loop.
func (c *Client) backfill(ctx context.Context) {
	c.mu.Lock()
	if c.backfilling {
		c.mu.Unlock()
		return
	}
	c.backfilling = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.backfilling = false
		c.mu.Unlock()
	}()

	res, err := c.api.ListUnread(ctx, c.cfg.BackfillLimit)
	if err != nil {
		log.WithError(err).WithField("instance", c.instanceID).Debug("backfill failed")
		return
	}

	c.cache.Merge(res.Notifications)
	c.setUnread(res.UnreadCount)
}

func (c *Client) dispatch(msg []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return
	}

	switch envelope.Type {
	case ws.MessageNotify:
		var event ws.NotificationEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			return
		}
		n := fromPayload(event.Notification)
		c.cache.Add(n)
		if cb := c.cfg.OnNotification; cb != nil {
			cb(n)
		}
	case ws.MessageUnreadCount:
		var event ws.UnreadCountEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			return
		}
		c.setUnread(event.UnreadCount)
	}
}

// MarkRead marks one notification read, mirrors it into the view, and
// refreshes the counter from the store.
func (c *Client) MarkRead(ctx context.Context, id uint) error {
	if err := c.api.MarkRead(ctx, id); err != nil {
		return err
	}
	c.cache.MarkRead(id)
	c.refreshUnread(ctx)
	return nil
}

// MarkAllRead marks every unread notification read and returns how many the
// store updated.
func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	updated, err := c.api.MarkAllRead(ctx)
	if err != nil {
		return 0, err
	}
	c.cache.MarkAllRead()
	c.refreshUnread(ctx)
	return updated, nil
}

// Delete permanently deletes one notification.
func (c *Client) Delete(ctx context.Context, id uint) error {
	if err := c.api.Delete(ctx, id); err != nil {
		return err
	}
	c.cache.Remove(id)
	c.refreshUnread(ctx)
	return nil
}

// DeleteMany permanently deletes a batch of notifications.
func (c *Client) DeleteMany(ctx context.Context, ids []uint) error {
	if err := c.api.DeleteMany(ctx, ids); err != nil {
		return err
	}
	c.cache.RemoveMany(ids)
	c.refreshUnread(ctx)
	return nil
}

// Backfill fetches the latest unread page outside the automatic
// on-reconnect path, for callers that want an explicit refresh.
func (c *Client) Backfill(ctx context.Context) error {
	res, err := c.api.ListUnread(ctx, c.cfg.BackfillLimit)
	if err != nil {
		return err
	}
	c.cache.Merge(res.Notifications)
	c.setUnread(res.UnreadCount)
	return nil
}

func (c *Client) refreshUnread(ctx context.Context) {
	if count, err := c.api.UnreadCount(ctx); err == nil {
		c.setUnread(count)
	}
}

func (c *Client) setUnread(count int64) {
	c.mu.Lock()
	changed := c.unread != count
	c.unread = count
	cb := c.cfg.OnUnreadCount
	c.mu.Unlock()
	if changed && cb != nil {
		cb(count)
	}
}

func (c *Client) setState(next State) {
	c.mu.Lock()
	if c.state == next || (c.state == StateClosing && next != StateDisconnected) {
		c.mu.Unlock()
		return
	}
	c.state = next
	cb := c.cfg.OnStateChange
	c.mu.Unlock()
	if cb != nil {
		cb(next)
	}
}

func (c *Client) wsURL() string {
	base := c.cfg.BaseURL
	switch {
	case strings.HasPrefix(base, "https"):
		base = "wss" + strings.TrimPrefix(base, "https")
	case strings.HasPrefix(base, "http"):
		base = "ws" + strings.TrimPrefix(base, "http")
	}
	return base + "/ws/notifications?token=" + url.QueryEscape(c.cfg.Token)
}
