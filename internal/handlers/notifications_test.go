package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ticketwell/helpdesk-api/internal/database"
	"github.com/ticketwell/helpdesk-api/internal/middleware"
	"github.com/ticketwell/helpdesk-api/internal/models"
	"github.com/ticketwell/helpdesk-api/internal/routes"
)

func setupApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Ticket{}, &models.Notification{}))
	database.DB = db

	app := fiber.New()
	routes.Setup(app)
	return app
}

func createUser(t *testing.T, id uint, role string) (models.User, string) {
	t.Helper()
	user := models.User{
		ID:    id,
		Email: fmt.Sprintf("user%d@example.com", id),
		Role:  role,
	}
	require.NoError(t, database.DB.Create(&user).Error)

	token, err := middleware.GenerateToken(user.ID, user.Email, user.Role)
	require.NoError(t, err)
	return user, token
}

func seedNotification(t *testing.T, n models.Notification) models.Notification {
	t.Helper()
	if n.Type == "" {
		n.Type = models.NotificationNewReply
	}
	if n.Title == "" {
		n.Title = "Ticket updated"
	}
	require.NoError(t, database.DB.Create(&n).Error)
	return n
}

func doRequest(t *testing.T, app *fiber.App, method, target, token string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

type listEnvelope struct {
	Notifications []models.Notification `json:"notifications"`
	HasMore       bool                  `json:"hasMore"`
	UnreadCount   int64                 `json:"unreadCount"`
}

func TestGetNotificationsRequiresAuth(t *testing.T) {
	app := setupApp(t)

	resp := doRequest(t, app, http.MethodGet, "/api/notifications", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetNotificationsEnvelopeAndFilters(t *testing.T) {
	app := setupApp(t)
	_, token := createUser(t, 1, models.RoleUser)

	now := time.Now()
	readAt := now
	seedNotification(t, models.Notification{UserID: 1, Type: models.NotificationNewTicket, Title: "New ticket", CreatedAt: now.Add(-2 * time.Hour)})
	seedNotification(t, models.Notification{UserID: 1, Type: models.NotificationNewReply, Title: "Reply", CreatedAt: now.Add(-time.Hour), ReadAt: &readAt})
	unreadReply := seedNotification(t, models.Notification{UserID: 1, Type: models.NotificationNewReply, Title: "Another reply", CreatedAt: now})

	var all listEnvelope
	decode(t, doRequest(t, app, http.MethodGet, "/api/notifications", token, nil), &all)
	require.Len(t, all.Notifications, 3)
	require.False(t, all.HasMore)
	require.EqualValues(t, 2, all.UnreadCount)
	// Newest first.
	require.Equal(t, unreadReply.ID, all.Notifications[0].ID)

	var filtered listEnvelope
	decode(t, doRequest(t, app, http.MethodGet, "/api/notifications?type=new-reply&read=false", token, nil), &filtered)
	require.Len(t, filtered.Notifications, 1)
	require.Equal(t, unreadReply.ID, filtered.Notifications[0].ID)
	// The counter stays global even under filters.
	require.EqualValues(t, 2, filtered.UnreadCount)

	var paged listEnvelope
	decode(t, doRequest(t, app, http.MethodGet, "/api/notifications?page=1&limit=2", token, nil), &paged)
	require.Len(t, paged.Notifications, 2)
	require.True(t, paged.HasMore)
}

func TestGetNotificationsInvalidPagination(t *testing.T) {
	app := setupApp(t)
	_, token := createUser(t, 1, models.RoleUser)

	resp := doRequest(t, app, http.MethodGet, "/api/notifications?page=0", token, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, app, http.MethodGet, "/api/notifications?limit=-1", token, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, app, http.MethodGet, "/api/notifications?read=sometimes", token, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMarkReadEndpoints(t *testing.T) {
	app := setupApp(t)
	_, token := createUser(t, 1, models.RoleUser)

	first := seedNotification(t, models.Notification{UserID: 1, CreatedAt: time.Now().Add(-time.Minute)})
	seedNotification(t, models.Notification{UserID: 1, CreatedAt: time.Now()})

	resp := doRequest(t, app, http.MethodPatch, fmt.Sprintf("/api/notifications/%d/read", first.ID), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stored models.Notification
	require.NoError(t, database.DB.First(&stored, first.ID).Error)
	require.NotNil(t, stored.ReadAt)

	// Marking a missing id is a no-op, not an error.
	resp = doRequest(t, app, http.MethodPatch, "/api/notifications/9999/read", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Updated int64 `json:"updated"`
	}
	decode(t, doRequest(t, app, http.MethodPatch, "/api/notifications/read-all", token, nil), &result)
	require.EqualValues(t, 1, result.Updated)

	var envelope listEnvelope
	decode(t, doRequest(t, app, http.MethodGet, "/api/notifications", token, nil), &envelope)
	require.EqualValues(t, 0, envelope.UnreadCount)
}

func TestDeleteEndpoints(t *testing.T) {
	app := setupApp(t)
	_, token := createUser(t, 1, models.RoleUser)

	var ids []uint
	for i := 0; i < 4; i++ {
		n := seedNotification(t, models.Notification{UserID: 1, CreatedAt: time.Now()})
		ids = append(ids, n.ID)
	}

	resp := doRequest(t, app, http.MethodDelete, fmt.Sprintf("/api/notifications/%d", ids[0]), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, app, http.MethodDelete, "/api/notifications", token, map[string][]uint{"ids": {ids[1], ids[2]}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope listEnvelope
	decode(t, doRequest(t, app, http.MethodGet, "/api/notifications", token, nil), &envelope)
	require.Len(t, envelope.Notifications, 1)
	require.Equal(t, ids[3], envelope.Notifications[0].ID)

	// Batch delete without ids is rejected.
	resp = doRequest(t, app, http.MethodDelete, "/api/notifications", token, map[string][]uint{"ids": {}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteScopedToOwner(t *testing.T) {
	app := setupApp(t)
	_, ownerToken := createUser(t, 1, models.RoleUser)
	_, otherToken := createUser(t, 2, models.RoleUser)

	n := seedNotification(t, models.Notification{UserID: 1, CreatedAt: time.Now()})

	// A foreign delete succeeds as a no-op and removes nothing.
	resp := doRequest(t, app, http.MethodDelete, fmt.Sprintf("/api/notifications/%d", n.ID), otherToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope listEnvelope
	decode(t, doRequest(t, app, http.MethodGet, "/api/notifications", ownerToken, nil), &envelope)
	require.Len(t, envelope.Notifications, 1)
}

func TestInternalSendNotification(t *testing.T) {
	app := setupApp(t)
	_, userToken := createUser(t, 1, models.RoleUser)
	_, agentToken := createUser(t, 2, models.RoleAgent)

	payload := map[string]interface{}{
		"userIds":  []uint{1},
		"type":     models.NotificationTicketEscalated,
		"title":    "Ticket escalated",
		"message":  "HD-10 was escalated to tier 2",
		"priority": models.PriorityCritical,
		"metadata": map[string]interface{}{"escalatedBy": "agent-2"},
	}

	// Regular users cannot emit domain events.
	resp := doRequest(t, app, http.MethodPost, "/api/internal/notifications", userToken, payload)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var created models.Notification
	decode(t, doRequest(t, app, http.MethodPost, "/api/internal/notifications", agentToken, payload), &created)
	require.NotZero(t, created.ID)
	require.Equal(t, models.NotificationTicketEscalated, created.Type)
	require.Equal(t, "agent-2", created.Metadata["escalatedBy"])

	var envelope listEnvelope
	decode(t, doRequest(t, app, http.MethodGet, "/api/notifications", userToken, nil), &envelope)
	require.Len(t, envelope.Notifications, 1)
	require.EqualValues(t, 1, envelope.UnreadCount)

	// Unknown notification types are rejected.
	payload["type"] = "something-else"
	resp = doRequest(t, app, http.MethodPost, "/api/internal/notifications", agentToken, payload)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown target users are a NotFoundError.
	payload["type"] = models.NotificationTicketEscalated
	payload["userIds"] = []uint{999}
	resp = doRequest(t, app, http.MethodPost, "/api/internal/notifications", agentToken, payload)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRegisterLoginAndMe(t *testing.T) {
	app := setupApp(t)

	var registered models.AuthResponse
	decode(t, doRequest(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "sam@example.com",
		"password": "hunter22",
		"name":     "Sam",
	}), &registered)
	require.NotEmpty(t, registered.Token)
	require.Equal(t, models.RoleUser, registered.User.Role)

	var loggedIn models.AuthResponse
	decode(t, doRequest(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "sam@example.com",
		"password": "hunter22",
	}), &loggedIn)
	require.NotEmpty(t, loggedIn.Token)

	var me models.User
	decode(t, doRequest(t, app, http.MethodGet, "/api/me", loggedIn.Token, nil), &me)
	require.Equal(t, "sam@example.com", me.Email)

	resp := doRequest(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "sam@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDeviceTokenSubscribeUnsubscribe(t *testing.T) {
	app := setupApp(t)
	user, token := createUser(t, 1, models.RoleUser)

	resp := doRequest(t, app, http.MethodPost, "/api/device-token", token, map[string]string{"token": "fcm-token-abc"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stored models.User
	require.NoError(t, database.DB.First(&stored, user.ID).Error)
	require.Equal(t, "fcm-token-abc", stored.FCMToken)

	resp = doRequest(t, app, http.MethodDelete, "/api/device-token", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, database.DB.First(&stored, user.ID).Error)
	require.Empty(t, stored.FCMToken)
}
