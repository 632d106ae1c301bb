package chat

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"telecare-backend/internal/domain"
	"telecare-backend/internal/provider"
)

// Timeline is the ordered, deduplicated local message sequence of one
// conversation. Messages are ordered by creation time and deduplicated by
// local ID and by remote (provider-assigned) ID, so an optimistic send and
// its later appearance in a poll result collapse into a single entry.
type Timeline struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*domain.Message
	byRemote map[string]uuid.UUID
	ordered  []*domain.Message
}

// NewTimeline creates an empty timeline
func NewTimeline() *Timeline {
	return &Timeline{
		byID:     make(map[uuid.UUID]*domain.Message),
		byRemote: make(map[string]uuid.UUID),
	}
}

// Append adds an optimistic local message. The caller supplies the
// provisional client-generated ID and hands the entry over: after Append the
// stored message is only touched under the timeline lock.
func (t *Timeline) Append(message *domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byID[message.MessageID]; exists {
		return
	}
	t.insertLocked(message)
}

// Reconcile updates the entry created by Append once the remote send
// settles. Matching is by the provisional ID, never by position or content.
// The updated entry comes back as a copy so callers never write to the stored
// message outside the lock while snapshot readers are active.
func (t *Timeline) Reconcile(messageID uuid.UUID, remoteID string, status string) (domain.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	message, ok := t.byID[messageID]
	if !ok {
		return domain.Message{}, false
	}
	message.Status = status
	if remoteID != "" {
		message.RemoteID = remoteID
		t.byRemote[remoteID] = messageID
	}
	return *message, true
}

// Merge folds a poll result into the timeline, returning how many entries
// were new. Messages whose remote ID is already present (including our own
// reconciled sends) are skipped.
func (t *Timeline) Merge(conversationID uuid.UUID, fetched []provider.ChannelMessage) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0
	for _, cm := range fetched {
		if _, known := t.byRemote[cm.MessageID]; known {
			continue
		}
		senderID, err := uuid.Parse(cm.SenderARN)
		if err != nil {
			// Foreign sender representation; skip rather than misattribute.
			continue
		}
		message := &domain.Message{
			MessageID:      uuid.New(),
			RemoteID:       cm.MessageID,
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        cm.Content,
			Status:         domain.MessageDelivered,
			CreatedAt:      cm.CreatedAt,
		}
		t.byRemote[cm.MessageID] = message.MessageID
		t.insertLocked(message)
		added++
	}
	return added
}

// Messages returns a snapshot of the timeline, oldest first
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.ordered))
	for i, m := range t.ordered {
		out[i] = *m
	}
	return out
}

// Len returns the number of entries
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ordered)
}

func (t *Timeline) insertLocked(message *domain.Message) {
	t.byID[message.MessageID] = message
	idx := sort.Search(len(t.ordered), func(i int) bool {
		return t.ordered[i].CreatedAt.After(message.CreatedAt)
	})
	t.ordered = append(t.ordered, nil)
	copy(t.ordered[idx+1:], t.ordered[idx:])
	t.ordered[idx] = message
}
