package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"telecare-backend/internal/domain"
	"telecare-backend/internal/provider"
	apperrors "telecare-backend/pkg/errors"
	"telecare-backend/pkg/logger"
	"telecare-backend/pkg/metrics"
	"telecare-backend/pkg/sanitize"
)

// Store persists conversation records and their participant sets
type Store interface {
	Create(ctx context.Context, conversation *domain.Conversation) error
	GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	GetUserConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error)
	FindDirectByParticipants(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error)
}

// Registry creates or reuses messaging conversations. Direct conversations
// are deduplicated: for a given pair of identities at most one direct
// conversation ever exists, including under concurrent create attempts.
type Registry struct {
	store    Store
	channels provider.ChannelProvider
	metrics  *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per participant-pair create lock
}

// NewRegistry creates a conversation registry
func NewRegistry(store Store, channels provider.ChannelProvider, m *metrics.Metrics) *Registry {
	return &Registry{
		store:    store,
		channels: channels,
		metrics:  m,
		locks:    make(map[string]*sync.Mutex),
	}
}

// GetOrCreateDirect returns the direct conversation between callerID and
// otherID, creating it if none exists.
//
// The remote channel is created before the local record. If the record write
// fails after the channel exists, a PersistenceError is returned; callers
// should re-run the lookup before retrying creation so the orphaned channel
// is not duplicated.
func (r *Registry) GetOrCreateDirect(ctx context.Context, callerID, otherID uuid.UUID, displayName string) (*domain.Conversation, error) {
	if callerID == uuid.Nil || otherID == uuid.Nil || callerID == otherID {
		return nil, apperrors.ValidationError("a direct conversation requires two distinct participants")
	}
	displayName = sanitize.CleanDisplayName(displayName)
	if displayName == "" {
		return nil, apperrors.ValidationError("display name must not be empty")
	}

	// Serialize create attempts per pair so a double-tap cannot race two
	// channel creations past the lookup.
	pairLock := r.pairLock(callerID, otherID)
	pairLock.Lock()
	defer pairLock.Unlock()

	existing, err := r.findDirect(ctx, callerID, otherID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if r.metrics != nil {
			r.metrics.RecordConversationReused()
		}
		return existing, nil
	}

	channelARN, err := r.channels.CreateChannel(ctx, displayName, callerID.String(),
		[]string{callerID.String(), otherID.String()})
	if err != nil {
		return nil, err
	}

	conv := &domain.Conversation{
		ConversationID: uuid.New(),
		ChannelARN:     channelARN,
		Type:           domain.ConversationDirect,
		Name:           displayName,
		ParticipantIDs: []uuid.UUID{callerID, otherID},
		CreatedBy:      callerID,
		CreatedAt:      time.Now(),
	}

	if err := r.store.Create(ctx, conv); err != nil {
		// Channel exists remotely but is not discoverable locally.
		logger.Error("conversation record write failed after channel creation",
			zap.String("channel_arn", channelARN),
			zap.Error(err))
		return nil, apperrors.PersistenceError("conversation record write failed after channel creation", err)
	}

	if r.metrics != nil {
		r.metrics.RecordConversationCreated()
	}
	return conv, nil
}

// Get returns a conversation the caller participates in
func (r *Registry) Get(ctx context.Context, callerID, conversationID uuid.UUID) (*domain.Conversation, error) {
	conv, err := r.store.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !containsID(conv.ParticipantIDs, callerID) {
		return nil, apperrors.AuthorizationError("caller is not a participant of this conversation")
	}
	return conv, nil
}

// List returns the caller's conversations, newest activity first
func (r *Registry) List(ctx context.Context, callerID uuid.UUID, limit, offset int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return r.store.GetUserConversations(ctx, callerID, limit, offset)
}

// findDirect asks the store for the pair's direct conversation by exact
// participant set. Dormant conversations count the same as active ones; the
// lookup must never be bounded by recency.
func (r *Registry) findDirect(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	conv, err := r.store.FindDirectByParticipants(ctx, a, b)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

func (r *Registry) pairLock(a, b uuid.UUID) *sync.Mutex {
	key := pairKey(a, b)
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.locks[key] = l
	return l
}

// pairKey is order-independent so both argument orders map to the same lock
func pairKey(a, b uuid.UUID) string {
	if a.String() < b.String() {
		return fmt.Sprintf("%s:%s", a, b)
	}
	return fmt.Sprintf("%s:%s", b, a)
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
