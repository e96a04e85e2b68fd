// Package transport connects the bot to a chat network.
package transport

import (
	"context"

	"github.com/spec-kit/incidence-service/internal/domain"
)

// Conversation is a resolved chat destination.
type Conversation struct {
	ID   string
	Name string
}

// Transport sends messages and answers lookups for the core services.
type Transport interface {
	SendText(ctx context.Context, conversationID, text string) error
	SendMedia(ctx context.Context, conversationID string, data []byte, mimeType, caption string) error
	ResolveConversation(ctx context.Context, nameOrID string) (Conversation, error)
	// QuotedMessage returns the message msg replies to, or nil when none.
	QuotedMessage(ctx context.Context, msg domain.Message) (*domain.Message, error)
}

// Handler receives inbound traffic from a listener.
type Handler interface {
	Handle(ctx context.Context, msg domain.Message)
	HandleEdit(ctx context.Context, msg domain.Message)
}
