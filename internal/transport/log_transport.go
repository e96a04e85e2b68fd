package transport

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/domain"
)

// LogTransport writes outbound messages to the log. It is used when no chat
// credentials are configured.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport returns a transport that only logs.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) SendText(_ context.Context, conversationID, text string) error {
	t.logger.Info("outbound message",
		zap.String("conversation_id", conversationID),
		zap.String("text", text))
	return nil
}

func (t *LogTransport) SendMedia(_ context.Context, conversationID string, data []byte, mimeType, caption string) error {
	t.logger.Info("outbound media",
		zap.String("conversation_id", conversationID),
		zap.String("mime_type", mimeType),
		zap.Int("bytes", len(data)),
		zap.String("caption", caption))
	return nil
}

func (t *LogTransport) ResolveConversation(_ context.Context, nameOrID string) (Conversation, error) {
	return Conversation{ID: nameOrID, Name: nameOrID}, nil
}

func (t *LogTransport) QuotedMessage(context.Context, domain.Message) (*domain.Message, error) {
	return nil, nil
}
