package cassandra

import (
	"fmt"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"telecare-backend/internal/domain"
)

// MessageRepository archives sent messages in Cassandra. The archive is
// written on successful sends and serves history queries; the live timeline
// is maintained by the poller against the messaging provider.
type MessageRepository struct {
	session *gocql.Session
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(session *gocql.Session) *MessageRepository {
	return &MessageRepository{session: session}
}

// Save inserts a message into the archive
func (r *MessageRepository) Save(message *domain.Message) error {
	if message.MessageID == uuid.Nil {
		message.MessageID = uuid.New()
	}

	query := `
		INSERT INTO messages (
			conversation_id, message_id, remote_id, sender_id, content, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		message.ConversationID,
		message.MessageID,
		message.RemoteID,
		message.SenderID,
		message.Content,
		message.Status,
		message.CreatedAt,
	).Exec()
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// GetByConversation retrieves archived messages for a conversation, newest
// first, with cursor-based pagination
func (r *MessageRepository) GetByConversation(conversationID uuid.UUID, limit int, pageState []byte) ([]*domain.Message, []byte, error) {
	query := `
		SELECT conversation_id, message_id, remote_id, sender_id, content, status, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	iter := r.session.Query(query, conversationID, limit).PageState(pageState).Iter()

	var messages []*domain.Message
	for {
		message := &domain.Message{}
		if !iter.Scan(
			&message.ConversationID,
			&message.MessageID,
			&message.RemoteID,
			&message.SenderID,
			&message.Content,
			&message.Status,
			&message.CreatedAt,
		) {
			break
		}
		messages = append(messages, message)
	}

	nextPageState := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return messages, nextPageState, nil
}
