// Package channels defines the transport-side types for the relay. A
// channel turns platform webhook deliveries into IncomingMessages and
// carries outbound replies and pushes; the engine never sees platform
// payloads.
package channels

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// MessageKind identifies the kind of inbound event.
type MessageKind string

const (
	// KindText is a plain text message from a user.
	KindText MessageKind = "text"

	// KindFollow is emitted when a user adds the bot as a friend.
	KindFollow MessageKind = "follow"
)

// IncomingMessage is one authenticated inbound event. The channel has
// already verified the platform signature before producing it.
type IncomingMessage struct {
	// Kind is the event kind.
	Kind MessageKind

	// UserID is the stable platform identifier of the sender.
	UserID string

	// ReplyToken is the single-use token for the synchronous reply.
	ReplyToken string

	// Text is the message text (KindText only).
	Text string

	// Timestamp is when the platform recorded the event.
	Timestamp time.Time
}

// Channel is the interface a messaging platform transport implements.
type Channel interface {
	// Name returns the channel identifier (e.g. "line").
	Name() string

	// ParseWebhook authenticates and decodes one webhook delivery.
	// Returns ErrInvalidSignature when the request is not authentic.
	ParseWebhook(r *http.Request) ([]*IncomingMessage, error)

	// Reply sends the one synchronous reply bound to a reply token.
	Reply(ctx context.Context, replyToken, text string) error

	// Push sends an asynchronous message to a user by ID. Used by the
	// reminder scheduler and for output after the reply token expired.
	Push(ctx context.Context, userID, text string) error
}

// Errors.
var (
	ErrInvalidSignature = fmt.Errorf("webhook signature verification failed")
	ErrSendFailed       = fmt.Errorf("failed to send message")
)
