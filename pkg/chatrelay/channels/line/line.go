// Package line implements the LINE Messaging API channel on top of the
// official SDK: webhook signature verification, reply-token replies, and
// push messages.
package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
)

// Config holds the LINE channel credentials.
type Config struct {
	// ChannelSecret signs webhook deliveries.
	ChannelSecret string `yaml:"channel_secret"`

	// ChannelAccessToken authorizes the Messaging API.
	ChannelAccessToken string `yaml:"channel_access_token"`
}

// Channel is the LINE transport.
type Channel struct {
	client *linebot.Client
	logger *slog.Logger
}

// New creates a LINE channel from config.
func New(cfg Config, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChannelSecret == "" || cfg.ChannelAccessToken == "" {
		return nil, fmt.Errorf("line channel requires channel_secret and channel_access_token")
	}
	client, err := linebot.New(cfg.ChannelSecret, cfg.ChannelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating line client: %w", err)
	}
	return &Channel{
		client: client,
		logger: logger.With("component", "line"),
	}, nil
}

// Name returns "line".
func (c *Channel) Name() string { return "line" }

// ParseWebhook verifies the X-Line-Signature header and decodes the
// delivery into incoming messages. Event kinds the relay does not handle
// (stickers, postbacks, ...) are dropped here.
func (c *Channel) ParseWebhook(r *http.Request) ([]*channels.IncomingMessage, error) {
	events, err := c.client.ParseRequest(r)
	if err != nil {
		if errors.Is(err, linebot.ErrInvalidSignature) {
			return nil, channels.ErrInvalidSignature
		}
		return nil, fmt.Errorf("parsing webhook request: %w", err)
	}

	var msgs []*channels.IncomingMessage
	for _, event := range events {
		userID := ""
		if event.Source != nil {
			userID = event.Source.UserID
		}
		switch event.Type {
		case linebot.EventTypeMessage:
			text, ok := event.Message.(*linebot.TextMessage)
			if !ok {
				continue
			}
			msgs = append(msgs, &channels.IncomingMessage{
				Kind:       channels.KindText,
				UserID:     userID,
				ReplyToken: event.ReplyToken,
				Text:       text.Text,
				Timestamp:  event.Timestamp,
			})
		case linebot.EventTypeFollow:
			msgs = append(msgs, &channels.IncomingMessage{
				Kind:       channels.KindFollow,
				UserID:     userID,
				ReplyToken: event.ReplyToken,
				Timestamp:  event.Timestamp,
			})
		}
	}
	return msgs, nil
}

// Reply sends the synchronous reply for a webhook event. The token is
// single-use and short-lived; a second reply with the same token fails.
func (c *Channel) Reply(ctx context.Context, replyToken, text string) error {
	_, err := c.client.ReplyMessage(replyToken, linebot.NewTextMessage(text)).WithContext(ctx).Do()
	if err != nil {
		c.logger.Error("reply failed", "error", err)
		return fmt.Errorf("%w: %v", channels.ErrSendFailed, err)
	}
	return nil
}

// Push sends an asynchronous message to a user.
func (c *Channel) Push(ctx context.Context, userID, text string) error {
	_, err := c.client.PushMessage(userID, linebot.NewTextMessage(text)).WithContext(ctx).Do()
	if err != nil {
		c.logger.Error("push failed", "user_id", userID, "error", err)
		return fmt.Errorf("%w: %v", channels.ErrSendFailed, err)
	}
	return nil
}
