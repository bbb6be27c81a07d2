package timeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/moodchat/client/internal/model/chat"
)

// Listener receives every new timeline snapshot. The slice belongs to the
// listener; the store never touches it again. Listeners run synchronously and
// must not mutate the store from inside the callback.
type Listener func(snapshot []chat.Message)

// Store is the observable chat timeline. Every mutation swaps in a fresh
// slice, so published snapshots are never written after they leave the store.
type Store struct {
	mu       sync.Mutex
	messages []chat.Message

	// notifyMu orders listener calls the same way mutations were applied.
	notifyMu  sync.Mutex
	listeners []subscription
	nextID    int
	now       func() time.Time
}

// NewStore returns an empty timeline.
func NewStore() *Store {
	return &Store{
		messages: make([]chat.Message, 0),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type subscription struct {
	id int
	fn Listener
}

// Subscribe registers fn for future snapshots and returns a func that removes
// it. Listeners are called in subscription order.
func (s *Store) Subscribe(fn Listener) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})

	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		kept := make([]subscription, 0, len(s.listeners))
		for _, sub := range s.listeners {
			if sub.id != id {
				kept = append(kept, sub)
			}
		}
		s.listeners = kept
	}
}

// Append pushes message to the end of the timeline and returns its id.
func (s *Store) Append(message chat.Message) string {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	message = s.stamp(message)
	next := make([]chat.Message, len(s.messages), len(s.messages)+1)
	copy(next, s.messages)
	s.messages = append(next, message)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
	return message.ID
}

// AppendLoading appends a pending placeholder and returns its handle.
func (s *Store) AppendLoading() string {
	return s.Append(chat.Message{
		Text:         chat.LoadingText,
		Kind:         chat.KindLoading,
		IsUser:       false,
		IsProcessing: true,
	})
}

// Resolve replaces the placeholder with the given handle. It reports false
// when the handle is unknown or no longer a placeholder.
func (s *Store) Resolve(id string, res chat.Resolution) bool {
	return s.replace(func(messages []chat.Message) int {
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].ID == id && messages[i].IsPendingLoading() {
				return i
			}
		}
		return -1
	}, res)
}

// ResolveLastLoading replaces the most recently appended placeholder. A
// timeline without placeholders is left untouched.
func (s *Store) ResolveLastLoading(res chat.Resolution) bool {
	return s.replace(func(messages []chat.Message) int {
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].IsPendingLoading() {
				return i
			}
		}
		return -1
	}, res)
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.messages = make([]chat.Message, 0)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
}

// Snapshot returns a copy of the current timeline.
func (s *Store) Snapshot() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// PendingCount returns how many placeholders are still unresolved.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, message := range s.messages {
		if message.IsPendingLoading() {
			count++
		}
	}
	return count
}

func (s *Store) replace(find func([]chat.Message) int, res chat.Resolution) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	index := find(s.messages)
	if index < 0 {
		s.mu.Unlock()
		return false
	}

	previous := s.messages[index]
	kind := res.Kind
	if kind == "" {
		kind = chat.KindText
	}

	next := make([]chat.Message, len(s.messages))
	copy(next, s.messages)
	next[index] = chat.Message{
		ID:            previous.ID,
		Text:          res.Text,
		Kind:          kind,
		IsUser:        previous.IsUser,
		AttachmentRef: res.AttachmentRef,
		IsProcessing:  false,
		Result:        res.Result,
		CreatedAt:     s.now(),
	}
	s.messages = next
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
	return true
}

func (s *Store) stamp(message chat.Message) chat.Message {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now()
	}
	return message
}

func (s *Store) snapshotLocked() []chat.Message {
	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// publish must be called with notifyMu held.
func (s *Store) publish(snapshot []chat.Message) {
	for _, sub := range s.listeners {
		owned := make([]chat.Message, len(snapshot))
		copy(owned, snapshot)
		sub.fn(owned)
	}
}
