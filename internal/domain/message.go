package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message send status values
const (
	MessageSending   = "sending"
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageFailed    = "failed"
)

// Message represents a chat message. A message is created locally in an
// optimistic "sending" state under a client-generated provisional ID, then
// reconciled by that ID to "sent" (with the remote ID merged in) or "failed".
type Message struct {
	MessageID      uuid.UUID `json:"message_id" cql:"message_id"`
	RemoteID       string    `json:"remote_id,omitempty" cql:"remote_id"`
	ConversationID uuid.UUID `json:"conversation_id" cql:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id" cql:"sender_id"`
	Content        string    `json:"content" cql:"content"`
	Status         string    `json:"status" cql:"status"`
	CreatedAt      time.Time `json:"created_at" cql:"created_at"`
}
