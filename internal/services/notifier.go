package services

import (
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ticketwell/helpdesk-api/internal/models"
	"github.com/ticketwell/helpdesk-api/internal/store"
	"github.com/ticketwell/helpdesk-api/internal/ws"
)

// Notifier is the single entry point for domain events that should reach a
// user: it persists the notification, fans it out to the user's live
// channels together with a fresh unread count, and hands it to FCM for
// disconnected devices. The store stays authoritative; the pushes are hints.
type Notifier struct {
	db    *gorm.DB
	store *store.Store
	hub   *ws.Hub
	push  *PushService
}

func NewNotifier(db *gorm.DB, hub *ws.Hub, push *PushService) *Notifier {
	return &Notifier{
		db:    db,
		store: store.New(db),
		hub:   hub,
		push:  push,
	}
}

// Notify records one (user, event) notification and delivers it. The ticket
// code is resolved here so callers only need the ticket id.
func (n *Notifier) Notify(userID uint, notifType, title, message, priority string, ticketID *uint, metadata models.Metadata) (*models.Notification, error) {
	var ticket *store.TicketRef
	if ticketID != nil {
		ticket = &store.TicketRef{ID: *ticketID}
		var row models.Ticket
		if err := n.db.Select("id", "code").First(&row, *ticketID).Error; err == nil {
			ticket.Code = row.Code
		}
	}

	notif, err := n.store.Create(userID, notifType, title, message, priority, ticket, metadata)
	if err != nil {
		return nil, err
	}

	n.hub.PushNotification(userID, ws.PayloadFor(notif))
	if count, err := n.store.CountUnread(userID); err == nil {
		n.hub.PushUnreadCount(userID, count)
	} else {
		log.WithError(err).WithField("userId", userID).Warn("unread count refresh failed")
	}

	go n.push.SendToUser(userID, title, message, metadata)

	return notif, nil
}

// NotifyMany fans one event out to several users, one notification per
// (user, event) pair. Per-user delivery order follows creation order.
func (n *Notifier) NotifyMany(userIDs []uint, notifType, title, message, priority string, ticketID *uint, metadata models.Metadata) {
	for _, userID := range userIDs {
		if _, err := n.Notify(userID, notifType, title, message, priority, ticketID, metadata); err != nil {
			log.WithError(err).WithField("userId", userID).Warn("notification delivery failed")
		}
	}
}
