package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Notification types sent to users when something happens on a ticket they
// participate in.
const (
	NotificationNewTicket          = "new-ticket"
	NotificationStatusChange       = "status-change"
	NotificationNewReply           = "new-reply"
	NotificationParticipantAdded   = "participant-added"
	NotificationParticipantRemoved = "participant-removed"
	NotificationTicketEscalated    = "ticket-escalated"
	NotificationTicketDueSoon      = "ticket-due-soon"
)

// Notification priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Metadata is a free-form key/value payload stored as a JSON column.
type Metadata map[string]interface{}

// Value implements driver.Valuer so GORM can persist the map as JSON.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode notification metadata")
	}
	return string(data), nil
}

// Scan implements sql.Scanner for reading the JSON column back.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("unsupported metadata column type %T", value)
	}
	return errors.Wrap(json.Unmarshal(data, m), "unable to decode notification metadata")
}

// Notification is the durable record of a single event delivered to a single
// user. ReadAt is nil while unread. Deletion is permanent, so there is no
// soft-delete column.
type Notification struct {
	ID         uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     uint       `json:"userId" gorm:"index;not null"`
	Type       string     `json:"type" gorm:"not null"`
	Title      string     `json:"title" gorm:"not null"`
	Message    string     `json:"message"`
	Priority   string     `json:"priority" gorm:"default:medium"`
	TicketID   *uint      `json:"ticketId,omitempty"`
	TicketCode string     `json:"ticketCode,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty" gorm:"type:text"`
	ReadAt     *time.Time `json:"readAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Read reports whether the notification has been marked read.
func (n *Notification) Read() bool {
	return n.ReadAt != nil
}
