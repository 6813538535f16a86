package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
)

// MessageStore holds the ordered message list of the selected thread.
type MessageStore struct {
	backend Backend
	log     *logger.Logger
	events  *notifier

	mu       sync.Mutex
	threadID string
	gen      uint64
	messages []Message
}

func newMessageStore(backend Backend, log *logger.Logger, events *notifier) *MessageStore {
	return &MessageStore{backend: backend, log: log, events: events}
}

// ThreadID is the thread whose history the store currently shows.
func (s *MessageStore) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// Messages returns a copy of the current list.
func (s *MessageStore) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Find returns the message with the given server or local id.
func (s *MessageStore) Find(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.messages[i], true
	}
	return Message{}, false
}

// begin switches the store to threadID and returns the generation that a
// later history response must carry to be applied.
func (s *MessageStore) begin(threadID string) uint64 {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.threadID != threadID {
		s.messages = nil
	}
	s.threadID = threadID
	s.mu.Unlock()
	s.events.emit(Event{Kind: EventMessages, ThreadID: threadID})
	return gen
}

// reset empties the store and invalidates every in-flight load.
func (s *MessageStore) reset() {
	s.mu.Lock()
	s.gen++
	s.threadID = ""
	s.messages = nil
	s.mu.Unlock()
	s.events.emit(Event{Kind: EventMessages})
}

// LoadHistory fetches threadID's history and makes it the current list.
// It returns an ErrStaleContext error, and changes nothing, when another
// selection happened while the request was in flight.
func (s *MessageStore) LoadHistory(ctx context.Context, threadID string) ([]Message, error) {
	gen := s.begin(threadID)
	return s.load(ctx, gen, threadID)
}

func (s *MessageStore) load(ctx context.Context, gen uint64, threadID string) ([]Message, error) {
	msgs, err := s.backend.ListMessages(ctx, threadID)
	if err != nil {
		if !s.current(gen) {
			return nil, &Error{Kind: KindStaleContext, Op: "load history", Err: err}
		}
		return nil, err
	}
	if !s.apply(gen, msgs) {
		s.log.Debug("discarding stale history", "thread_id", threadID, "generation", gen)
		return nil, &Error{Kind: KindStaleContext, Op: "load history", Msg: "thread no longer selected"}
	}
	return s.Messages(), nil
}

func (s *MessageStore) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// apply replaces the list with history for generation gen. Entries the
// history does not contain yet are kept: local sends still in flight and
// messages pushed while the load was running.
func (s *MessageStore) apply(gen uint64, history []Message) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	seen := make(map[string]bool, len(history))
	next := make([]Message, 0, len(history)+len(s.messages))
	for _, m := range history {
		if m.ThreadID != "" && m.ThreadID != s.threadID {
			continue
		}
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		next = append(next, m)
	}
	for _, m := range s.messages {
		if !seen[m.ID] {
			next = append(next, m)
		}
	}
	sortMessages(next)
	s.messages = next
	threadID := s.threadID
	s.mu.Unlock()
	s.events.emit(Event{Kind: EventMessages, ThreadID: threadID})
	return true
}

// Append inserts m in order. Messages for other threads and duplicates of
// an id already present are ignored; the return value reports insertion.
func (s *MessageStore) Append(m Message) bool {
	s.mu.Lock()
	if m.ThreadID != s.threadID || s.indexLocked(m.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.insertLocked(m)
	s.mu.Unlock()
	s.events.emit(Event{Kind: EventMessages, ThreadID: m.ThreadID, Message: &m})
	return true
}

func (s *MessageStore) insertLocked(m Message) {
	n := len(s.messages)
	if n == 0 || !messageLess(m, s.messages[n-1]) {
		s.messages = append(s.messages, m)
		return
	}
	i := sort.Search(n, func(i int) bool { return messageLess(m, s.messages[i]) })
	s.messages = append(s.messages, Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = m
}

func (s *MessageStore) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.messages {
		if s.messages[i].ID == id || s.messages[i].LocalID == id {
			return i
		}
	}
	return -1
}

// reconcile swaps the provisional entry localID for the server's copy. If
// the server copy already arrived through another path the provisional
// entry is dropped instead.
func (s *MessageStore) reconcile(localID string, confirmed Message) {
	s.mu.Lock()
	i := s.indexLocked(localID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	if j := s.indexLocked(confirmed.ID); j >= 0 {
		s.messages[j].LocalID = localID
		s.messages[j].State = StateConfirmed
	} else {
		s.insertLocked(confirmed)
	}
	threadID := s.threadID
	s.mu.Unlock()
	s.events.emit(Event{Kind: EventMessages, ThreadID: threadID, Message: &confirmed})
}

// setState updates the send state of the provisional entry localID.
func (s *MessageStore) setState(localID string, state SendState, err error) {
	s.mu.Lock()
	i := s.indexLocked(localID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.messages[i].State = state
	s.messages[i].Err = err
	m := s.messages[i]
	s.mu.Unlock()
	s.events.emit(Event{Kind: EventMessages, ThreadID: m.ThreadID, Message: &m})
}
