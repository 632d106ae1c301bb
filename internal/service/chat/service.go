package chat

import (
	"context"
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

const maxMessageLength = 4096

// ConversationSource resolves a conversation and checks the caller belongs
// to it
type ConversationSource interface {
	Get(ctx context.Context, callerID, conversationID uuid.UUID) (*domain.Conversation, error)
}

// MessageArchive is the durable message store
type MessageArchive interface {
	Save(message *domain.Message) error
	GetByConversation(conversationID uuid.UUID, limit int, pageState []byte) ([]*domain.Message, []byte, error)
}

// ActivityRecorder updates the conversation's last-message preview used for
// list ordering
type ActivityRecorder interface {
	UpdateLastMessage(ctx context.Context, conversationID uuid.UUID, preview string) error
}

// Service runs message sending and per-conversation polling. Each active
// conversation gets one timeline and at most one poller; pollers are
// reference-counted so concurrent subscribers share the same loop.
type Service struct {
	channels      provider.ChannelProvider
	conversations ConversationSource
	archive       MessageArchive
	activity      ActivityRecorder
	metrics       *metrics.Metrics
	interval      time.Duration

	mu        sync.Mutex
	timelines map[uuid.UUID]*Timeline
	pollers   map[uuid.UUID]*pollerRef
}

type pollerRef struct {
	poller *Poller
	refs   int
}

// NewService creates the chat service. interval is the poll cadence for all
// conversations.
func NewService(channels provider.ChannelProvider, conversations ConversationSource, archive MessageArchive, activity ActivityRecorder, m *metrics.Metrics, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Service{
		channels:      channels,
		conversations: conversations,
		archive:       archive,
		activity:      activity,
		metrics:       m,
		interval:      interval,
		timelines:     make(map[uuid.UUID]*Timeline),
		pollers:       make(map[uuid.UUID]*pollerRef),
	}
}

// SendMessage sends content into the conversation. The returned message is
// the timeline entry: appended optimistically with a provisional ID, then
// reconciled in place to sent (with the remote ID) or failed. The entry is
// never duplicated when the same message later shows up in a poll result.
func (s *Service) SendMessage(ctx context.Context, callerID, conversationID uuid.UUID, content string) (*domain.Message, error) {
	content = sanitize.CleanMessage(content)
	if content == "" {
		return nil, apperrors.ValidationError("message content must not be empty")
	}
	if len(content) > maxMessageLength {
		return nil, apperrors.ValidationError("message content exceeds maximum length")
	}

	conv, err := s.conversations.Get(ctx, callerID, conversationID)
	if err != nil {
		return nil, err
	}

	timeline := s.timeline(conversationID)

	message := &domain.Message{
		MessageID:      uuid.New(),
		ConversationID: conversationID,
		SenderID:       callerID,
		Content:        content,
		Status:         domain.MessageSending,
		CreatedAt:      time.Now(),
	}
	timeline.Append(message)

	// The appended entry belongs to the timeline now; all further updates go
	// through Reconcile, which applies them under the timeline lock and hands
	// back a private copy for the caller.
	remoteID, err := s.channels.SendChannelMessage(ctx, conv.ChannelARN, callerID.String(), content)
	if err != nil {
		failed, _ := timeline.Reconcile(message.MessageID, "", domain.MessageFailed)
		if s.metrics != nil {
			s.metrics.RecordMessageSent("failed")
		}
		return &failed, err
	}

	sent, _ := timeline.Reconcile(message.MessageID, remoteID, domain.MessageSent)
	if s.metrics != nil {
		s.metrics.RecordMessageSent("sent")
	}

	// Archival and activity bookkeeping are best-effort: the message is
	// already delivered remotely, so their failure must not fail the send.
	if s.archive != nil {
		if err := s.archive.Save(&sent); err != nil {
			logger.Error("message archive write failed",
				zap.String("conversation_id", conversationID.String()),
				zap.String("message_id", sent.MessageID.String()),
				zap.Error(err))
		}
	}
	if s.activity != nil {
		if err := s.activity.UpdateLastMessage(ctx, conversationID, preview(content)); err != nil {
			logger.Warn("conversation activity update failed",
				zap.String("conversation_id", conversationID.String()),
				zap.Error(err))
		}
	}

	return &sent, nil
}

// StartPolling ensures a poll loop is running for the conversation and
// returns a stop function. Stops are reference-counted: the loop ends when
// the last subscriber's stop function has returned, and that return is the
// guarantee that no further tick executes. The stop function is idempotent.
func (s *Service) StartPolling(ctx context.Context, callerID, conversationID uuid.UUID) (func(), error) {
	conv, err := s.conversations.Get(ctx, callerID, conversationID)
	if err != nil {
		return nil, err
	}

	timeline := s.timeline(conversationID)

	s.mu.Lock()
	ref, ok := s.pollers[conversationID]
	if !ok {
		p := newPoller(s.interval, s.metrics, func(ctx context.Context, since time.Time) error {
			return s.pollOnce(ctx, conv.ChannelARN, conversationID, timeline, since)
		})
		ref = &pollerRef{poller: p}
		s.pollers[conversationID] = ref
		// The loop runs off its own context: its lifetime is governed by
		// Stop, not by the subscribing request's deadline.
		go p.run(context.WithoutCancel(ctx))
	}
	ref.refs++
	s.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			ref.refs--
			last := ref.refs == 0
			if last {
				delete(s.pollers, conversationID)
			}
			s.mu.Unlock()
			if last {
				ref.poller.Stop()
			}
		})
	}
	return stop, nil
}

// Messages returns the current timeline snapshot for the conversation,
// oldest first
func (s *Service) Messages(ctx context.Context, callerID, conversationID uuid.UUID) ([]domain.Message, error) {
	if _, err := s.conversations.Get(ctx, callerID, conversationID); err != nil {
		return nil, err
	}
	return s.timeline(conversationID).Messages(), nil
}

// History pages through the durable archive of the conversation
func (s *Service) History(ctx context.Context, callerID, conversationID uuid.UUID, limit int, pageState []byte) ([]*domain.Message, []byte, error) {
	if _, err := s.conversations.Get(ctx, callerID, conversationID); err != nil {
		return nil, nil, err
	}
	if s.archive == nil {
		return nil, nil, apperrors.ConfigurationError("message archive is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return s.archive.GetByConversation(conversationID, limit, pageState)
}

func (s *Service) pollOnce(ctx context.Context, channelARN string, conversationID uuid.UUID, timeline *Timeline, since time.Time) error {
	fetched, err := s.channels.ListChannelMessages(ctx, channelARN, since)
	if err != nil {
		return err
	}
	added := timeline.Merge(conversationID, fetched)
	if added > 0 && s.metrics != nil {
		s.metrics.RecordPollMerged(added)
	}
	return nil
}

func (s *Service) timeline(conversationID uuid.UUID) *Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timelines[conversationID]
	if !ok {
		t = NewTimeline()
		s.timelines[conversationID] = t
	}
	return t
}

func preview(content string) string {
	const max = 120
	if len(content) <= max {
		return content
	}
	return content[:max]
}
