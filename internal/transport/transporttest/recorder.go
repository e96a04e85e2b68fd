// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/transport"
)

// Sent is one outbound message captured by the recorder.
type Sent struct {
	Conversation string
	Text         string
	MimeType     string
	Media        []byte
}

// Recorder captures outbound traffic and serves quoted messages from a map.
type Recorder struct {
	mu     sync.Mutex
	sent   []Sent
	fail   map[string]error
	quotes map[string]*domain.Message
}

// New returns an empty recorder.
func New() *Recorder {
	return &Recorder{fail: map[string]error{}, quotes: map[string]*domain.Message{}}
}

// FailFor makes every send to conversationID return err.
func (r *Recorder) FailFor(conversationID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[conversationID] = err
}

// Quote registers msg as the message quoted by replies naming its ID.
func (r *Recorder) Quote(msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes[msg.ID] = &msg
}

func (r *Recorder) SendText(_ context.Context, conversationID, text string) error {
	return r.record(Sent{Conversation: conversationID, Text: text})
}

func (r *Recorder) SendMedia(_ context.Context, conversationID string, data []byte, mimeType, caption string) error {
	return r.record(Sent{Conversation: conversationID, Text: caption, MimeType: mimeType, Media: data})
}

func (r *Recorder) ResolveConversation(_ context.Context, nameOrID string) (transport.Conversation, error) {
	if nameOrID == "" {
		return transport.Conversation{}, errors.New("empty conversation")
	}
	return transport.Conversation{ID: nameOrID, Name: nameOrID}, nil
}

func (r *Recorder) QuotedMessage(_ context.Context, msg domain.Message) (*domain.Message, error) {
	if !msg.HasQuotedMessage {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[msg.QuotedMessageID]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (r *Recorder) record(s Sent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[s.Conversation]; err != nil {
		return err
	}
	r.sent = append(r.sent, s)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// To returns the messages delivered to conversationID.
func (r *Recorder) To(conversationID string) []Sent {
	var out []Sent
	for _, s := range r.Sent() {
		if s.Conversation == conversationID {
			out = append(out, s)
		}
	}
	return out
}

// Containing returns the messages whose text contains substr.
func (r *Recorder) Containing(substr string) []Sent {
	var out []Sent
	for _, s := range r.Sent() {
		if strings.Contains(s.Text, substr) {
			out = append(out, s)
		}
	}
	return out
}

// Reset forgets recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
