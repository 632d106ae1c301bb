package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation type values
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// Conversation represents a logical chat thread between a fixed set of
// identities, backed by a remote messaging channel. The participant set is
// immutable after creation. A direct conversation for a given pair of
// identities exists at most once.
type Conversation struct {
	ConversationID uuid.UUID   `json:"conversation_id" db:"conversation_id"`
	ChannelARN     string      `json:"channel_arn" db:"channel_arn"`
	Type           string      `json:"type" db:"type"` // direct, group
	Name           string      `json:"name" db:"name"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
	CreatedBy      uuid.UUID   `json:"created_by" db:"created_by"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`

	LastMessageAt      *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
	LastMessagePreview string     `json:"last_message_preview,omitempty" db:"last_message_preview"`
}

// HasExactParticipants reports whether the conversation's participant set is
// exactly {a, b}
func (c *Conversation) HasExactParticipants(a, b uuid.UUID) bool {
	if len(c.ParticipantIDs) != 2 {
		return false
	}
	p0, p1 := c.ParticipantIDs[0], c.ParticipantIDs[1]
	return (p0 == a && p1 == b) || (p0 == b && p1 == a)
}
