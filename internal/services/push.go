package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/ticketwell/helpdesk-api/internal/database"
	"github.com/ticketwell/helpdesk-api/internal/models"
)

// PushService delivers notifications to devices that have no live channel,
// via Firebase Cloud Messaging. It is purely best-effort: the durable store
// and the websocket hub carry the actual state.
type PushService struct {
	client *messaging.Client
}

// Global push service instance
var Push *PushService

// InitPush initializes the Firebase push notification service.
// Returns nil gracefully if no service account is configured (dev mode).
func InitPush(serviceAccountPath string) error {
	if serviceAccountPath == "" {
		log.Info("FCM: no service account configured, background push disabled")
		Push = &PushService{client: nil}
		return nil
	}

	ctx := context.Background()
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		log.WithError(err).Warn("FCM: failed to initialize Firebase app")
		Push = &PushService{client: nil}
		return nil
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		log.WithError(err).Warn("FCM: failed to get messaging client")
		Push = &PushService{client: nil}
		return nil
	}

	Push = &PushService{client: client}
	log.Info("FCM: background push enabled")
	return nil
}

// SendToUser sends a background push to a user's registered device.
// No-op if push is not configured or the user has no device token.
func (p *PushService) SendToUser(userID uint, title, body string, metadata models.Metadata) {
	if p == nil || p.client == nil {
		return
	}

	var user models.User
	if err := database.DB.Select("fcm_token").First(&user, userID).Error; err != nil {
		return
	}

	if user.FCMToken == "" {
		return
	}

	msg := &messaging.Message{
		Token: user.FCMToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
	}

	if metadata != nil {
		data := make(map[string]string, len(metadata))
		for k, v := range metadata {
			data[k] = fmt.Sprintf("%v", v)
		}
		msg.Data = data
	}

	if _, err := p.client.Send(context.Background(), msg); err != nil {
		log.WithError(err).WithField("userId", userID).Warn("FCM: send failed")
	}
}
