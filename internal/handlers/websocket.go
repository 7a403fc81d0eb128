package handlers

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	log "github.com/sirupsen/logrus"

	"github.com/ticketwell/helpdesk-api/internal/database"
	"github.com/ticketwell/helpdesk-api/internal/middleware"
	"github.com/ticketwell/helpdesk-api/internal/store"
	"github.com/ticketwell/helpdesk-api/internal/ws"
)

// authTimeout bounds how long a freshly opened channel may take to send its
// auth frame before the server abandons it.
const authTimeout = 10 * time.Second

// Global hub instance
var WS = ws.NewHub()

// WebSocketUpgrade is the middleware that checks the upgrade request and validates JWT
func WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// Authenticate via query param: ?token=<jwt>
		tokenString := c.Query("token")
		if tokenString == "" {
			// Also check Authorization header for non-browser clients
			authHeader := c.Get("Authorization")
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				tokenString = ""
			}
		}

		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authentication token",
			})
		}

		claims, err := middleware.ParseToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}

// HandleWebSocket runs the notification push channel for one client
// instance. The client must send an auth frame matching its token claims
// before anything is delivered; the accepted handshake is acknowledged with
// an unread_count_update seeded from the store.
func HandleWebSocket(c *websocket.Conn) {
	claims, ok := c.Locals("claims").(*middleware.Claims)
	if !ok {
		c.Close()
		return
	}

	if err := awaitAuth(c, claims); err != nil {
		log.WithError(err).WithField("userId", claims.UserID).Info("ws handshake rejected")
		c.Close()
		return
	}

	conn := ws.NewConn(claims.UserID, c)
	WS.Register(conn)
	defer WS.Unregister(conn)

	// Handshake ack: seed the client's counter from the store.
	notifications := store.New(database.DB)
	if count, err := notifications.CountUnread(claims.UserID); err == nil {
		WS.PushUnreadCount(claims.UserID, count)
	}

	// Keep connection alive — read messages (client sends pings/keepalives)
	for {
		_, _, err := c.ReadMessage()
		if err != nil {
			break
		}
	}
}

// awaitAuth reads the first frame and checks it against the token claims.
func awaitAuth(c *websocket.Conn, claims *middleware.Claims) error {
	c.SetReadDeadline(time.Now().Add(authTimeout))
	defer c.SetReadDeadline(time.Time{})

	_, msg, err := c.ReadMessage()
	if err != nil {
		return err
	}

	var auth ws.AuthMessage
	if err := json.Unmarshal(msg, &auth); err != nil {
		return err
	}
	if auth.Type != ws.MessageAuth {
		return errAuthFrame{reason: "first frame must be auth"}
	}
	if auth.UserID != claims.UserID || auth.UserRole != claims.Role {
		return errAuthFrame{reason: "auth frame does not match token"}
	}
	return nil
}

type errAuthFrame struct {
	reason string
}

func (e errAuthFrame) Error() string {
	return e.reason
}
