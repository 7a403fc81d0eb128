package store

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/ticketwell/helpdesk-api/internal/models"
	"gorm.io/gorm"
)

// maxPageSize caps the page size a caller may request.
const maxPageSize = 100

// Store owns durable notification state. It is the single source of truth
// for history and for the unread counter; everything the push channel sends
// is derived from it.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// TicketRef links a notification to the ticket that produced it.
type TicketRef struct {
	ID   uint
	Code string
}

// Create persists a new unread notification for the given user. The id and
// creation timestamp are assigned here and never change afterwards.
func (s *Store) Create(userID uint, notifType, title, message, priority string, ticket *TicketRef, metadata models.Metadata) (*models.Notification, error) {
	var user models.User
	if err := s.db.Select("id").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: userID}
		}
		return nil, errors.Wrap(err, "unable to look up notification owner")
	}

	if priority == "" {
		priority = models.PriorityMedium
	}

	notif := models.Notification{
		UserID:   userID,
		Type:     notifType,
		Title:    title,
		Message:  message,
		Priority: priority,
		Metadata: metadata,
	}
	if ticket != nil {
		id := ticket.ID
		notif.TicketID = &id
		notif.TicketCode = ticket.Code
	}

	if err := s.db.Create(&notif).Error; err != nil {
		return nil, errors.Wrap(err, "unable to save notification")
	}
	return &notif, nil
}

// MarkRead sets the read timestamp on a single unread notification owned by
// the user. Marking an already-read, missing, or foreign notification is a
// no-op.
func (s *Store) MarkRead(userID, id uint) error {
	err := s.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", time.Now()).Error
	return errors.Wrap(err, "unable to mark notification read")
}

// MarkAllRead sets the read timestamp on every unread notification owned by
// the user in one statement and returns the number of rows affected.
func (s *Store) MarkAllRead(userID uint) (int64, error) {
	result := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now())
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "unable to mark notifications read")
	}
	return result.RowsAffected, nil
}

// Delete permanently removes a notification owned by the user. Deleting a
// missing id is a no-op.
func (s *Store) Delete(userID, id uint) error {
	err := s.db.Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Notification{}).Error
	return errors.Wrap(err, "unable to delete notification")
}

// DeleteMany permanently removes every listed notification owned by the user
// in a single statement.
func (s *Store) DeleteMany(userID uint, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.Where("user_id = ? AND id IN ?", userID, ids).
		Delete(&models.Notification{}).Error
	return errors.Wrap(err, "unable to delete notifications")
}

// CountUnread returns the number of notifications with no read timestamp for
// the user.
func (s *Store) CountUnread(userID uint) (int64, error) {
	var count int64
	err := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "unable to count unread notifications")
	}
	return count, nil
}

// ListParams are the query filters. UserID is the mandatory scope; every
// other filter is optional and narrows the result (filters combine with AND).
type ListParams struct {
	UserID    uint
	Type      *string
	Read      *bool
	StartDate *time.Time
	EndDate   *time.Time
	Search    string
	Page      int
	Limit     int
}

// ListResult is one page of history plus the global unread counter for the
// same user. UnreadCount ignores the filters on purpose: the badge shows
// total unread, not filtered unread.
type ListResult struct {
	Notifications []models.Notification
	HasMore       bool
	UnreadCount   int64
}

// List returns one page of the user's notification history, newest first
// (created_at desc, id desc tie-break), after applying the filters.
func (s *Store) List(p ListParams) (*ListResult, error) {
	if p.Page < 1 {
		return nil, &ValidationError{Msg: "page must be >= 1"}
	}
	if p.Limit <= 0 {
		return nil, &ValidationError{Msg: "limit must be > 0"}
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}

	query := s.filtered(p)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, errors.Wrap(err, "unable to count notifications")
	}

	var notifications []models.Notification
	err := query.
		Order("created_at DESC, id DESC").
		Offset((p.Page - 1) * p.Limit).
		Limit(p.Limit).
		Find(&notifications).Error
	if err != nil {
		return nil, errors.Wrap(err, "unable to query notifications")
	}

	unread, err := s.CountUnread(p.UserID)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Notifications: notifications,
		HasMore:       int64(p.Page*p.Limit) < total,
		UnreadCount:   unread,
	}, nil
}

func (s *Store) filtered(p ListParams) *gorm.DB {
	query := s.db.Model(&models.Notification{}).Where("user_id = ?", p.UserID)

	if p.Type != nil {
		query = query.Where("type = ?", *p.Type)
	}
	if p.Read != nil {
		if *p.Read {
			query = query.Where("read_at IS NOT NULL")
		} else {
			query = query.Where("read_at IS NULL")
		}
	}
	if p.StartDate != nil {
		query = query.Where("created_at >= ?", *p.StartDate)
	}
	if p.EndDate != nil {
		query = query.Where("created_at <= ?", *p.EndDate)
	}
	if p.Search != "" {
		pattern := "%" + strings.ToLower(p.Search) + "%"
		query = query.Where("(LOWER(title) LIKE ? OR LOWER(message) LIKE ?)", pattern, pattern)
	}

	return query
}
