package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/fanout"
)

type messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Client broadcasts events to a Firebase Cloud Messaging topic as data
// messages. Mobile clients subscribe to the topic instead of holding a socket.
type Client struct {
	msgClient messenger
	topic     string
	logger    *zap.Logger
}

func NewClient(ctx context.Context, logger *zap.Logger, credentialsFile, topic string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	} else {
		logger.Warn("No Firebase credentials file provided. FCM will utilize environment variable GOOGLE_APPLICATION_CREDENTIALS or default credentials.")
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return newClient(msgClient, topic, logger), nil
}

func newClient(msgClient messenger, topic string, logger *zap.Logger) *Client {
	return &Client{
		msgClient: msgClient,
		topic:     topic,
		logger:    logger.Named("fcm"),
	}
}

func (c *Client) Name() string { return "fcm" }

// Deliver sends a compact data message to the topic. Data payloads are
// capped at 4KB, so clients fetch the post itself by id.
func (c *Client) Deliver(ctx context.Context, msg fanout.Message) error {
	data := map[string]string{
		"type":    msg.Event.Type,
		"eventId": msg.Event.EventID.String(),
	}
	if id, ok := postID(msg.Event.Payload); ok {
		data["postId"] = id.String()
	}

	message := &messaging.Message{
		Topic: c.topic,
		Data:  data,
	}

	if _, err := c.msgClient.Send(ctx, message); err != nil {
		c.logger.Error("Failed to send FCM message", zap.String("topic", c.topic), zap.Error(err))
		return err
	}
	return nil
}

func postID(payload any) (uuid.UUID, bool) {
	switch p := payload.(type) {
	case domain.LikeEventPayload:
		return p.PostID, true
	case domain.PostCreatedPayload:
		if p.Post != nil {
			return p.Post.ID, true
		}
	}
	return uuid.Nil, false
}
