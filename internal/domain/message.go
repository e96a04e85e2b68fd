package domain

import "time"

// Message is an inbound chat message as delivered by a transport.
type Message struct {
	ID               string
	ConversationID   string
	Author           string
	Body             string
	Timestamp        time.Time
	HasQuotedMessage bool
	QuotedMessageID  string
	HasMedia         bool
	Media            *Attachment
}
