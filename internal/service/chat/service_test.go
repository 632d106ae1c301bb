package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"telecare-backend/internal/domain"
	"telecare-backend/internal/provider"
	apperrors "telecare-backend/pkg/errors"
)

// Mocks
type MockConversationSource struct {
	mock.Mock
}

func (m *MockConversationSource) Get(ctx context.Context, callerID, conversationID uuid.UUID) (*domain.Conversation, error) {
	args := m.Called(ctx, callerID, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

type MockChannelProvider struct {
	mock.Mock
}

func (m *MockChannelProvider) CreateChannel(ctx context.Context, name string, ownerARN string, memberARNs []string) (string, error) {
	args := m.Called(ctx, name, ownerARN, memberARNs)
	return args.String(0), args.Error(1)
}

func (m *MockChannelProvider) SendChannelMessage(ctx context.Context, channelARN, senderARN, content string) (string, error) {
	args := m.Called(ctx, channelARN, senderARN, content)
	return args.String(0), args.Error(1)
}

func (m *MockChannelProvider) ListChannelMessages(ctx context.Context, channelARN string, since time.Time) ([]provider.ChannelMessage, error) {
	args := m.Called(ctx, channelARN, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.ChannelMessage), args.Error(1)
}

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) Save(message *domain.Message) error {
	args := m.Called(message)
	return args.Error(0)
}

func (m *MockArchive) GetByConversation(conversationID uuid.UUID, limit int, pageState []byte) ([]*domain.Message, []byte, error) {
	args := m.Called(conversationID, limit, pageState)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]*domain.Message), args.Get(1).([]byte), args.Error(2)
}

type MockActivity struct {
	mock.Mock
}

func (m *MockActivity) UpdateLastMessage(ctx context.Context, conversationID uuid.UUID, preview string) error {
	args := m.Called(ctx, conversationID, preview)
	return args.Error(0)
}

func chatConversation(caller uuid.UUID) *domain.Conversation {
	return &domain.Conversation{
		ConversationID: uuid.New(),
		ChannelARN:     "arn:channel/c1",
		Type:           domain.ConversationDirect,
		Name:           "Dr. Reyes",
		ParticipantIDs: []uuid.UUID{caller, uuid.New()},
		CreatedBy:      caller,
		CreatedAt:      time.Now(),
	}
}

func TestSendMessage_OptimisticEntryReconciledToSent(t *testing.T) {
	caller := uuid.New()
	conv := chatConversation(caller)

	conversations := new(MockConversationSource)
	channels := new(MockChannelProvider)
	archive := new(MockArchive)
	activity := new(MockActivity)

	conversations.On("Get", mock.Anything, caller, conv.ConversationID).Return(conv, nil)
	channels.On("SendChannelMessage", mock.Anything, conv.ChannelARN, caller.String(), "hello").
		Return("remote-1", nil)
	archive.On("Save", mock.Anything).Return(nil)
	activity.On("UpdateLastMessage", mock.Anything, conv.ConversationID, "hello").Return(nil)

	s := NewService(channels, conversations, archive, activity, nil, time.Second)
	message, err := s.SendMessage(context.Background(), caller, conv.ConversationID, "hello")

	assert.NoError(t, err)
	assert.Equal(t, domain.MessageSent, message.Status)
	assert.Equal(t, "remote-1", message.RemoteID)
	assert.Equal(t, caller, message.SenderID)

	// Exactly one timeline entry, already reconciled.
	messages, err := s.Messages(context.Background(), caller, conv.ConversationID)
	assert.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Equal(t, message.MessageID, messages[0].MessageID)
	assert.Equal(t, domain.MessageSent, messages[0].Status)

	archive.AssertCalled(t, "Save", mock.Anything)
	activity.AssertCalled(t, "UpdateLastMessage", mock.Anything, conv.ConversationID, "hello")
}

func TestSendMessage_FailureMarksEntryFailed(t *testing.T) {
	caller := uuid.New()
	conv := chatConversation(caller)

	conversations := new(MockConversationSource)
	channels := new(MockChannelProvider)

	conversations.On("Get", mock.Anything, caller, conv.ConversationID).Return(conv, nil)
	channels.On("SendChannelMessage", mock.Anything, conv.ChannelARN, caller.String(), "hello").
		Return("", apperrors.NetworkError("provider unreachable", nil))

	s := NewService(channels, conversations, nil, nil, nil, time.Second)
	message, err := s.SendMessage(context.Background(), caller, conv.ConversationID, "hello")

	assert.Error(t, err)
	assert.NotNil(t, message)
	assert.Equal(t, domain.MessageFailed, message.Status)
	assert.Empty(t, message.RemoteID)

	// The failed entry stays on the timeline for client readback.
	messages, _ := s.Messages(context.Background(), caller, conv.ConversationID)
	assert.Len(t, messages, 1)
	assert.Equal(t, domain.MessageFailed, messages[0].Status)
}

func TestSendMessage_RejectsEmptyContent(t *testing.T) {
	conversations := new(MockConversationSource)
	channels := new(MockChannelProvider)

	s := NewService(channels, conversations, nil, nil, nil, time.Second)
	_, err := s.SendMessage(context.Background(), uuid.New(), uuid.New(), "   \n\t ")

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
	conversations.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessage_ArchiveFailureDoesNotFailSend(t *testing.T) {
	caller := uuid.New()
	conv := chatConversation(caller)

	conversations := new(MockConversationSource)
	channels := new(MockChannelProvider)
	archive := new(MockArchive)
	activity := new(MockActivity)

	conversations.On("Get", mock.Anything, caller, conv.ConversationID).Return(conv, nil)
	channels.On("SendChannelMessage", mock.Anything, conv.ChannelARN, caller.String(), "hello").
		Return("remote-1", nil)
	archive.On("Save", mock.Anything).Return(assert.AnError)
	activity.On("UpdateLastMessage", mock.Anything, conv.ConversationID, "hello").Return(assert.AnError)

	s := NewService(channels, conversations, archive, activity, nil, time.Second)
	message, err := s.SendMessage(context.Background(), caller, conv.ConversationID, "hello")

	assert.NoError(t, err)
	assert.Equal(t, domain.MessageSent, message.Status)
}

func TestStartPolling_MergesFetchedMessages(t *testing.T) {
	caller := uuid.New()
	other := uuid.New()
	conv := chatConversation(caller)
	conv.ParticipantIDs = []uuid.UUID{caller, other}

	conversations := new(MockConversationSource)
	channels := new(MockChannelProvider)

	conversations.On("Get", mock.Anything, caller, conv.ConversationID).Return(conv, nil)
	channels.On("ListChannelMessages", mock.Anything, conv.ChannelARN, mock.Anything).
		Return([]provider.ChannelMessage{
			{MessageID: "r1", SenderARN: other.String(), Content: "hi there", CreatedAt: time.Now()},
		}, nil)

	s := NewService(channels, conversations, nil, nil, nil, 10*time.Millisecond)
	stop, err := s.StartPolling(context.Background(), caller, conv.ConversationID)
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		messages, err := s.Messages(context.Background(), caller, conv.ConversationID)
		return err == nil && len(messages) == 1
	}, time.Second, 5*time.Millisecond)

	stop()

	messages, _ := s.Messages(context.Background(), caller, conv.ConversationID)
	assert.Len(t, messages, 1)
	assert.Equal(t, "hi there", messages[0].Content)
	assert.Equal(t, domain.MessageDelivered, messages[0].Status)
}

func TestStartPolling_StopIsDeterministic(t *testing.T) {
	caller := uuid.New()
	conv := chatConversation(caller)

	var ticks int64
	conversations := new(MockConversationSource)
	channels := new(MockChannelProvider)

	conversations.On("Get", mock.Anything, caller, conv.ConversationID).Return(conv, nil)
	channels.On("ListChannelMessages", mock.Anything, conv.ChannelARN, mock.Anything).
		Return([]provider.ChannelMessage{}, nil).
		Run(func(mock.Arguments) { atomic.AddInt64(&ticks, 1) })

	s := NewService(channels, conversations, nil, nil, nil, 5*time.Millisecond)
	stop, err := s.StartPolling(context.Background(), caller, conv.ConversationID)
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&ticks) >= 2
	}, time.Second, time.Millisecond)

	stop()
	after := atomic.LoadInt64(&ticks)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt64(&ticks))

	// Stop is idempotent.
	stop()
}

func TestStartPolling_SharedPollerRefCounted(t *testing.T) {
	caller := uuid.New()
	conv := chatConversation(caller)

	var ticks int64
	conversations := new(MockConversationSource)
	channels := new(MockChannelProvider)

	conversations.On("Get", mock.Anything, caller, conv.ConversationID).Return(conv, nil)
	channels.On("ListChannelMessages", mock.Anything, conv.ChannelARN, mock.Anything).
		Return([]provider.ChannelMessage{}, nil).
		Run(func(mock.Arguments) { atomic.AddInt64(&ticks, 1) })

	s := NewService(channels, conversations, nil, nil, nil, 5*time.Millisecond)

	stopA, err := s.StartPolling(context.Background(), caller, conv.ConversationID)
	assert.NoError(t, err)
	stopB, err := s.StartPolling(context.Background(), caller, conv.ConversationID)
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&ticks) >= 2
	}, time.Second, time.Millisecond)

	// First release keeps the loop alive for the second subscriber.
	stopA()
	before := atomic.LoadInt64(&ticks)
	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&ticks) > before
	}, time.Second, time.Millisecond)

	stopB()
	after := atomic.LoadInt64(&ticks)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt64(&ticks))
}

func TestStartPolling_FetchFailuresKeepLoopAlive(t *testing.T) {
	caller := uuid.New()
	conv := chatConversation(caller)

	var ticks int64
	conversations := new(MockConversationSource)
	channels := new(MockChannelProvider)

	conversations.On("Get", mock.Anything, caller, conv.ConversationID).Return(conv, nil)
	channels.On("ListChannelMessages", mock.Anything, conv.ChannelARN, mock.Anything).
		Return(nil, apperrors.NetworkError("provider unreachable", nil)).
		Run(func(mock.Arguments) { atomic.AddInt64(&ticks, 1) })

	s := NewService(channels, conversations, nil, nil, nil, 5*time.Millisecond)
	stop, err := s.StartPolling(context.Background(), caller, conv.ConversationID)
	assert.NoError(t, err)
	defer stop()

	// The loop keeps its cadence through consecutive failures.
	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&ticks) >= 3
	}, time.Second, time.Millisecond)
}

func TestStartPolling_RequiresParticipant(t *testing.T) {
	caller := uuid.New()
	conversationID := uuid.New()

	conversations := new(MockConversationSource)
	channels := new(MockChannelProvider)
	conversations.On("Get", mock.Anything, caller, conversationID).
		Return(nil, apperrors.AuthorizationError("caller is not a participant of this conversation"))

	s := NewService(channels, conversations, nil, nil, nil, time.Second)
	stop, err := s.StartPolling(context.Background(), caller, conversationID)

	assert.Nil(t, stop)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAuthorization))
}

// Sends must never write to a timeline entry outside the timeline lock while
// snapshot readers are active; run with -race to enforce.
func TestSendMessage_ConcurrentSnapshotReadsAreSafe(t *testing.T) {
	caller := uuid.New()
	conv := chatConversation(caller)

	conversations := new(MockConversationSource)
	channels := new(MockChannelProvider)

	conversations.On("Get", mock.Anything, caller, conv.ConversationID).Return(conv, nil)
	channels.On("SendChannelMessage", mock.Anything, conv.ChannelARN, caller.String(), mock.Anything).
		Return("remote-1", nil)

	s := NewService(channels, conversations, nil, nil, nil, time.Second)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				s.Messages(context.Background(), caller, conv.ConversationID)
			}
		}
	}()

	for i := 0; i < 50; i++ {
		message, err := s.SendMessage(context.Background(), caller, conv.ConversationID, "hello")
		assert.NoError(t, err)
		assert.Equal(t, domain.MessageSent, message.Status)
	}
	close(done)
	wg.Wait()

	messages, _ := s.Messages(context.Background(), caller, conv.ConversationID)
	assert.Len(t, messages, 50)
}

func TestHistory_WithoutArchiveIsConfigurationError(t *testing.T) {
	caller := uuid.New()
	conv := chatConversation(caller)

	conversations := new(MockConversationSource)
	channels := new(MockChannelProvider)
	conversations.On("Get", mock.Anything, caller, conv.ConversationID).Return(conv, nil)

	s := NewService(channels, conversations, nil, nil, nil, time.Second)
	_, _, err := s.History(context.Background(), caller, conv.ConversationID, 10, nil)

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfiguration))
}

func TestHistory_PagesThroughArchive(t *testing.T) {
	caller := uuid.New()
	conv := chatConversation(caller)
	archived := []*domain.Message{
		{MessageID: uuid.New(), ConversationID: conv.ConversationID, Content: "old", Status: domain.MessageDelivered},
	}

	conversations := new(MockConversationSource)
	channels := new(MockChannelProvider)
	archive := new(MockArchive)

	conversations.On("Get", mock.Anything, caller, conv.ConversationID).Return(conv, nil)
	archive.On("GetByConversation", conv.ConversationID, 50, []byte(nil)).
		Return(archived, []byte("next"), nil)

	s := NewService(channels, conversations, archive, nil, nil, time.Second)
	messages, next, err := s.History(context.Background(), caller, conv.ConversationID, 0, nil)

	assert.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Equal(t, []byte("next"), next)
}
