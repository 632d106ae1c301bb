package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telecare-backend/internal/domain"
	apperrors "telecare-backend/pkg/errors"
)

// ConversationRepository handles conversation records and their participant sets
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// Create inserts a conversation and its participant set in one transaction.
// The participant set is written once here and never modified afterwards.
func (r *ConversationRepository) Create(ctx context.Context, conversation *domain.Conversation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO conversations (conversation_id, channel_arn, type, name, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(ctx, query,
		conversation.ConversationID,
		conversation.ChannelARN,
		conversation.Type,
		conversation.Name,
		conversation.CreatedBy,
		conversation.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	for _, userID := range conversation.ParticipantIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
			VALUES ($1, $2, $3)
		`, conversation.ConversationID, userID, conversation.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to add participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit conversation: %w", err)
	}

	return nil
}

// GetByID retrieves a conversation with its participant set
func (r *ConversationRepository) GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT conversation_id, channel_arn, type, name, created_by, created_at,
		       last_message_at, last_message_preview
		FROM conversations
		WHERE conversation_id = $1
	`

	var conv domain.Conversation
	err := r.pool.QueryRow(ctx, query, conversationID).Scan(
		&conv.ConversationID,
		&conv.ChannelARN,
		&conv.Type,
		&conv.Name,
		&conv.CreatedBy,
		&conv.CreatedAt,
		&conv.LastMessageAt,
		&conv.LastMessagePreview,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundError("conversation")
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	participants, err := r.getParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	conv.ParticipantIDs = participants

	return &conv, nil
}

// GetUserConversations retrieves all conversations visible to a user, newest
// activity first, with participant sets populated
func (r *ConversationRepository) GetUserConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error) {
	query := `
		SELECT c.conversation_id, c.channel_arn, c.type, c.name, c.created_by, c.created_at,
		       c.last_message_at, c.last_message_preview
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.conversation_id
		WHERE p.user_id = $1
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		if err := rows.Scan(
			&conv.ConversationID,
			&conv.ChannelARN,
			&conv.Type,
			&conv.Name,
			&conv.CreatedBy,
			&conv.CreatedAt,
			&conv.LastMessageAt,
			&conv.LastMessagePreview,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	for _, conv := range conversations {
		participants, err := r.getParticipants(ctx, conv.ConversationID)
		if err != nil {
			return nil, err
		}
		conv.ParticipantIDs = participants
	}

	return conversations, nil
}

// FindDirectByParticipants returns the direct conversation whose participant
// set is exactly the two given users, regardless of how long it has been
// dormant. Returns NotFound when no such conversation exists.
func (r *ConversationRepository) FindDirectByParticipants(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT c.conversation_id, c.channel_arn, c.type, c.name, c.created_by, c.created_at,
		       c.last_message_at, c.last_message_preview
		FROM conversations c
		WHERE c.type = 'direct'
		  AND EXISTS (
		      SELECT 1 FROM conversation_participants
		      WHERE conversation_id = c.conversation_id AND user_id = $1)
		  AND EXISTS (
		      SELECT 1 FROM conversation_participants
		      WHERE conversation_id = c.conversation_id AND user_id = $2)
		  AND (SELECT count(*) FROM conversation_participants
		       WHERE conversation_id = c.conversation_id) = 2
		LIMIT 1
	`

	var conv domain.Conversation
	err := r.pool.QueryRow(ctx, query, a, b).Scan(
		&conv.ConversationID,
		&conv.ChannelARN,
		&conv.Type,
		&conv.Name,
		&conv.CreatedBy,
		&conv.CreatedAt,
		&conv.LastMessageAt,
		&conv.LastMessagePreview,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundError("conversation")
		}
		return nil, fmt.Errorf("failed to find direct conversation: %w", err)
	}

	participants, err := r.getParticipants(ctx, conv.ConversationID)
	if err != nil {
		return nil, err
	}
	conv.ParticipantIDs = participants

	return &conv, nil
}

// UpdateLastMessage updates the denormalized last-message preview
func (r *ConversationRepository) UpdateLastMessage(ctx context.Context, conversationID uuid.UUID, preview string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = now(), last_message_preview = $2
		WHERE conversation_id = $1
	`, conversationID, preview)
	if err != nil {
		return fmt.Errorf("failed to update last message: %w", err)
	}
	return nil
}

func (r *ConversationRepository) getParticipants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY joined_at
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}

	return ids, nil
}
