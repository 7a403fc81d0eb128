package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ticketwell/helpdesk-api/internal/database"
	"github.com/ticketwell/helpdesk-api/internal/middleware"
	"github.com/ticketwell/helpdesk-api/internal/models"
	"github.com/ticketwell/helpdesk-api/internal/services"
	"github.com/ticketwell/helpdesk-api/internal/store"
)

var notificationTypes = map[string]bool{
	models.NotificationNewTicket:          true,
	models.NotificationStatusChange:       true,
	models.NotificationNewReply:           true,
	models.NotificationParticipantAdded:   true,
	models.NotificationParticipantRemoved: true,
	models.NotificationTicketEscalated:    true,
	models.NotificationTicketDueSoon:      true,
}

// SendNotification is the internal API the ticketing service calls when a
// qualifying domain event occurs. One notification is created per listed
// user and fanned out to their live channels.
func SendNotification(c *fiber.Ctx) error {
	role := middleware.GetUserRole(c)
	if role != models.RoleAgent && role != models.RoleAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient permissions",
		})
	}

	var req struct {
		UserIDs  []uint          `json:"userIds"`
		Type     string          `json:"type"`
		Title    string          `json:"title"`
		Message  string          `json:"message"`
		Priority string          `json:"priority"`
		TicketID *uint           `json:"ticketId"`
		Metadata models.Metadata `json:"metadata"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(req.UserIDs) == 0 || req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "userIds and title are required",
		})
	}
	if !notificationTypes[req.Type] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown notification type",
		})
	}

	notifier := services.NewNotifier(database.DB, WS, services.Push)

	if len(req.UserIDs) == 1 {
		notif, err := notifier.Notify(req.UserIDs[0], req.Type, req.Title, req.Message, req.Priority, req.TicketID, req.Metadata)
		if err != nil {
			var notFound *store.NotFoundError
			if errors.As(err, &notFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": notFound.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create notification"})
		}
		return c.Status(fiber.StatusCreated).JSON(notif)
	}

	notifier.NotifyMany(req.UserIDs, req.Type, req.Title, req.Message, req.Priority, req.TicketID, req.Metadata)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true})
}
