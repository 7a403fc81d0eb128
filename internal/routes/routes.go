package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/ticketwell/helpdesk-api/internal/handlers"
	"github.com/ticketwell/helpdesk-api/internal/middleware"
)

func Setup(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", handlers.Register)
	auth.Post("/login", handlers.Login)

	protected := api.Group("/", middleware.Protected())

	protected.Get("/me", handlers.GetMe)

	// Notification history & mutations
	notifications := protected.Group("/notifications")
	notifications.Get("/", handlers.GetNotifications)
	notifications.Patch("/read-all", handlers.MarkAllRead)
	notifications.Patch("/:id/read", handlers.MarkNotificationRead)
	notifications.Delete("/:id", handlers.DeleteNotification)
	notifications.Delete("/", handlers.DeleteNotifications)

	// Internal API for the ticketing service
	internal := protected.Group("/internal")
	internal.Post("/notifications", handlers.SendNotification)

	// Device token for background push (subscribe/unsubscribe)
	protected.Post("/device-token", handlers.RegisterDeviceToken)
	protected.Delete("/device-token", handlers.UnregisterDeviceToken)

	// WebSocket push channel
	app.Use("/ws", handlers.WebSocketUpgrade())
	app.Get("/ws/notifications", websocket.New(handlers.HandleWebSocket))
}
