package client

import (
	"sort"
	"sync"
	"time"

	"github.com/ticketwell/helpdesk-api/internal/ws"
)

// defaultCacheSize bounds the client-side view of recent notifications.
const defaultCacheSize = 100

// Notification is the client-side view of a notification. ID is zero while a
// live-pushed copy has not been observed as persisted yet.
type Notification struct {
	ID         uint                   `json:"id"`
	Type       string                 `json:"type"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Priority   string                 `json:"priority"`
	TicketID   *uint                  `json:"ticketId,omitempty"`
	TicketCode string                 `json:"ticketCode,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	ReadAt     *time.Time             `json:"readAt,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}

func fromPayload(p ws.NotificationPayload) Notification {
	return Notification{
		ID:         p.ID,
		Type:       p.Type,
		Title:      p.Title,
		Message:    p.Message,
		Priority:   p.Priority,
		TicketID:   p.TicketID,
		TicketCode: p.TicketCode,
		Metadata:   p.Metadata,
		CreatedAt:  p.Timestamp,
	}
}

// sameEvent is the reconciliation equality rule: two notifications describe
// the same event when they share type, ticket and creation time at
// millisecond resolution. Ids cannot be compared because a live-pushed copy
// may not have one yet.
func sameEvent(a, b Notification) bool {
	if a.Type != b.Type {
		return false
	}
	if (a.TicketID == nil) != (b.TicketID == nil) {
		return false
	}
	if a.TicketID != nil && *a.TicketID != *b.TicketID {
		return false
	}
	return a.CreatedAt.UTC().Truncate(time.Millisecond).
		Equal(b.CreatedAt.UTC().Truncate(time.Millisecond))
}

// Cache is the bounded, ordered, duplicate-free view a client instance keeps
// of its recent notifications. It is not authoritative: the store is, and
// Merge moves the view toward it.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    []Notification
}

func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = defaultCacheSize
	}
	return &Cache{capacity: capacity}
}

// Add inserts a live-pushed notification, replacing a matching entry when
// the new copy is the persisted one.
func (c *Cache) Add(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsert(n)
	c.normalize()
}

// Merge folds a page of persisted notifications from a backfill query into
// the view. Persisted copies win over id-less live copies of the same event;
// live copies with no persisted counterpart are kept.
func (c *Cache) Merge(persisted []Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range persisted {
		c.upsert(n)
	}
	c.normalize()
}

func (c *Cache) upsert(n Notification) {
	for i, existing := range c.items {
		if !sameEvent(existing, n) {
			continue
		}
		// Prefer the copy carrying a durable id.
		if n.ID != 0 || existing.ID == 0 {
			c.items[i] = n
		}
		return
	}
	c.items = append(c.items, n)
}

func (c *Cache) normalize() {
	sort.SliceStable(c.items, func(i, j int) bool {
		a, b := c.items[i], c.items[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	if len(c.items) > c.capacity {
		c.items = c.items[:c.capacity]
	}
}

// MarkRead mirrors a successful mark-read mutation into the view.
func (c *Cache) MarkRead(id uint) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id && c.items[i].ReadAt == nil {
			c.items[i].ReadAt = &now
		}
	}
}

// MarkAllRead mirrors a successful mark-all-read mutation into the view.
func (c *Cache) MarkAllRead() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ReadAt == nil {
			c.items[i].ReadAt = &now
		}
	}
}

// Remove mirrors a successful delete into the view.
func (c *Cache) Remove(id uint) {
	c.RemoveMany([]uint{id})
}

// RemoveMany mirrors a successful batch delete into the view.
func (c *Cache) RemoveMany(ids []uint) {
	drop := make(map[uint]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.items[:0]
	for _, n := range c.items {
		if n.ID == 0 || !drop[n.ID] {
			kept = append(kept, n)
		}
	}
	c.items = kept
}

// Items returns a copy of the view, newest first.
func (c *Cache) Items() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of cached notifications.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
