// Package chatwire defines the wire format exchanged between chat front-end
// bridges and the workbot webhook. Bridges (Discord, Slack, a CLI shim)
// translate platform messages into this shape; workbot only ever sees it.
package chatwire

import (
	"errors"
	"fmt"
	"strings"
)

// Message is one inbound chat message delivered to the webhook.
type Message struct {
	// MessageID is the platform-assigned identifier of the message.
	// Used to drop duplicate webhook deliveries.
	MessageID string `json:"message_id"`

	// UserID identifies the actor. Opaque to workbot.
	UserID string `json:"user_id"`

	// DisplayName is the human-readable name used in replies.
	DisplayName string `json:"display_name,omitempty"`

	// ScopeID is the optional grouping context the message was sent in
	// (a server, a channel, a workspace). Empty means global scope.
	ScopeID string `json:"scope_id,omitempty"`

	// Content is the raw message text.
	Content string `json:"content"`
}

// Reply is the response text sent back to the bridge.
// An empty Text means the message was not a command and needs no reply.
type Reply struct {
	Text string `json:"text"`
}

// ErrInvalidMessage is returned when a message fails validation.
var ErrInvalidMessage = errors.New("invalid chat message")

// Validate checks that the message carries the fields workbot requires.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("%w: message_id is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}
	return nil
}

// Mention returns the text used to address the actor in replies.
// Falls back to the user ID when the bridge did not supply a display name.
func (m *Message) Mention() string {
	if m.DisplayName != "" {
		return "@" + m.DisplayName
	}
	return "@" + m.UserID
}
