package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ticketwell/helpdesk-api/internal/database"
	"github.com/ticketwell/helpdesk-api/internal/middleware"
	"github.com/ticketwell/helpdesk-api/internal/models"
	"github.com/ticketwell/helpdesk-api/internal/store"
)

func notifStore() *store.Store {
	return store.New(database.DB)
}

// pushUnreadCount refreshes the live counter on every device of the user
// after a mutation. The count always comes from the store, never from a
// client-side guess.
func pushUnreadCount(userID uint) {
	if count, err := notifStore().CountUnread(userID); err == nil {
		WS.PushUnreadCount(userID, count)
	}
}

// GetNotifications returns one page of the user's notification history with
// optional AND-composed filters, plus the global unread counter.
func GetNotifications(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid page"})
	}
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid limit"})
	}

	params := store.ListParams{
		UserID: userID,
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
	}

	if t := c.Query("type"); t != "" {
		params.Type = &t
	}
	if r := c.Query("read"); r != "" {
		read, err := strconv.ParseBool(r)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid read filter"})
		}
		params.Read = &read
	}
	if s := c.Query("startDate"); s != "" {
		start, err := parseDate(s, false)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid startDate"})
		}
		params.StartDate = &start
	}
	if e := c.Query("endDate"); e != "" {
		end, err := parseDate(e, true)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid endDate"})
		}
		params.EndDate = &end
	}

	result, err := notifStore().List(params)
	if err != nil {
		var validation *store.ValidationError
		if errors.As(err, &validation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validation.Msg})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to query notifications"})
	}

	if result.Notifications == nil {
		result.Notifications = []models.Notification{}
	}

	return c.JSON(fiber.Map{
		"notifications": result.Notifications,
		"hasMore":       result.HasMore,
		"unreadCount":   result.UnreadCount,
	})
}

// parseDate accepts RFC 3339 or a bare date. A bare end date is widened to
// the end of that day so the range stays inclusive.
func parseDate(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// MarkNotificationRead marks a single notification as read. Marking an
// already-read or missing notification succeeds as a no-op.
func MarkNotificationRead(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	notifID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid notification ID",
		})
	}

	if err := notifStore().MarkRead(userID, uint(notifID)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to mark notification read"})
	}

	pushUnreadCount(userID)
	return c.JSON(fiber.Map{"success": true})
}

// MarkAllRead marks all notifications as read for the current user
func MarkAllRead(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	updated, err := notifStore().MarkAllRead(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to mark notifications read"})
	}

	pushUnreadCount(userID)
	return c.JSON(fiber.Map{"success": true, "updated": updated})
}

// DeleteNotification permanently deletes a single notification.
func DeleteNotification(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	notifID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid notification ID",
		})
	}

	if err := notifStore().Delete(userID, uint(notifID)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete notification"})
	}

	pushUnreadCount(userID)
	return c.JSON(fiber.Map{"success": true})
}

// DeleteNotifications permanently deletes a batch of notifications by id.
func DeleteNotifications(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req struct {
		IDs []uint `json:"ids"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "ids is required",
		})
	}

	if err := notifStore().DeleteMany(userID, req.IDs); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete notifications"})
	}

	pushUnreadCount(userID)
	return c.JSON(fiber.Map{"success": true})
}

// RegisterDeviceToken saves the FCM token for background push delivery to
// this user's disconnected devices.
func RegisterDeviceToken(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Token is required",
		})
	}

	database.DB.Model(&models.User{}).Where("id = ?", userID).Update("fcm_token", req.Token)

	return c.JSON(fiber.Map{"success": true})
}

// UnregisterDeviceToken clears the FCM token, unsubscribing the device from
// background push.
func UnregisterDeviceToken(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	database.DB.Model(&models.User{}).Where("id = ?", userID).Update("fcm_token", "")

	return c.JSON(fiber.Map{"success": true})
}
