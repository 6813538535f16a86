package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
)

// ThreadStore is the client-side cache of threads. It owns the selection
// and the per-thread unread counters.
type ThreadStore struct {
	backend  Backend
	log      *logger.Logger
	events   *notifier
	self     string
	messages *MessageStore

	mu       sync.Mutex
	threads  map[string]Thread
	unread   map[string]int
	arrived  map[string]bool
	selected string
}

func newThreadStore(backend Backend, log *logger.Logger, events *notifier, self string, messages *MessageStore) *ThreadStore {
	return &ThreadStore{
		backend:  backend,
		log:      log,
		events:   events,
		self:     self,
		messages: messages,
		threads:  make(map[string]Thread),
		unread:   make(map[string]int),
		arrived:  make(map[string]bool),
	}
}

// List returns threads ordered by most recent activity first.
func (s *ThreadStore) List() []Thread {
	s.mu.Lock()
	out := make([]Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, cloneThread(t))
	}
	s.mu.Unlock()
	sortThreads(out)
	return out
}

func (s *ThreadStore) Get(threadID string) (Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return Thread{}, false
	}
	return cloneThread(t), true
}

// Selected returns the active thread, if any.
func (s *ThreadStore) Selected() (Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return Thread{}, false
	}
	t, ok := s.threads[s.selected]
	return cloneThread(t), ok
}

// Refresh merges the server's thread list into the cache. Unread counters
// are seeded from the server only for threads not cached yet; known threads
// keep their local counter, which already reflects arrivals and selections.
func (s *ThreadStore) Refresh(ctx context.Context) error {
	threads, err := s.backend.ListThreads(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, t := range threads {
		if _, known := s.threads[t.ID]; !known && t.ID != s.selected {
			s.unread[t.ID] = t.UnreadCount
		}
		s.threads[t.ID] = cloneThread(t)
	}
	s.mu.Unlock()
	s.log.Debug("threads refreshed", "count", len(threads))
	s.events.emit(Event{Kind: EventThreads})
	s.events.emit(Event{Kind: EventUnread})
	return nil
}

// Select makes threadID the active thread, zeroes its unread counter and
// loads its history. The counter reset is local and immediate. A history
// response that arrives after a newer selection is dropped and reported
// as (nil, nil).
func (s *ThreadStore) Select(ctx context.Context, threadID string) ([]Message, error) {
	s.mu.Lock()
	if _, ok := s.threads[threadID]; !ok {
		s.mu.Unlock()
		return nil, validationError("select thread", "That conversation no longer exists.")
	}
	s.selected = threadID
	s.unread[threadID] = 0
	s.mu.Unlock()
	s.events.emit(Event{Kind: EventUnread, ThreadID: threadID})
	s.events.emit(Event{Kind: EventThreads, ThreadID: threadID})

	gen := s.messages.begin(threadID)
	msgs, err := s.messages.load(ctx, gen, threadID)
	if KindOf(err) == KindStaleContext {
		return nil, nil
	}
	return msgs, err
}

// ClearSelection returns to the thread list.
func (s *ThreadStore) ClearSelection() {
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()
	s.messages.reset()
	s.events.emit(Event{Kind: EventThreads})
}

// StartDirect returns the direct thread between the local user and u,
// creating it on the server only when none is cached.
func (s *ThreadStore) StartDirect(ctx context.Context, u User) (Thread, error) {
	const op = "start direct"
	if u.ID == "" {
		return Thread{}, validationError(op, "Pick someone to chat with.")
	}
	if u.ID == s.self {
		return Thread{}, validationError(op, "You can't start a chat with yourself.")
	}
	if t, ok := s.findDirect(u.ID); ok {
		return t, nil
	}
	t, err := s.backend.StartDirect(ctx, u.ID)
	if err != nil {
		return Thread{}, err
	}
	if !t.IsDirectBetween(s.self, u.ID) {
		return Thread{}, &Error{Kind: KindServer, Op: op, Msg: "server returned a thread for the wrong participants"}
	}
	// A concurrent call may have cached the same pair meanwhile.
	if existing, ok := s.findDirect(u.ID); ok {
		return existing, nil
	}
	s.upsert(t)
	return t, nil
}

func (s *ThreadStore) findDirect(other string) (Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.threads {
		if t.IsDirectBetween(s.self, other) {
			return cloneThread(t), true
		}
	}
	return Thread{}, false
}

// CreateGroup always creates a new group, even for a membership that
// already has one.
func (s *ThreadStore) CreateGroup(ctx context.Context, title string, memberIDs []string) (Thread, error) {
	const op = "create group"
	title = strings.TrimSpace(title)
	if title == "" {
		return Thread{}, validationError(op, "Give the group a name.")
	}
	members := make([]string, 0, len(memberIDs))
	seen := map[string]bool{s.self: true}
	for _, id := range memberIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) == 0 {
		return Thread{}, validationError(op, "Add at least one member to the group.")
	}
	if len(members) < 2 {
		return Thread{}, validationError(op, "A group needs at least two other members. Start a direct chat instead.")
	}
	t, err := s.backend.CreateGroup(ctx, title, members)
	if err != nil {
		return Thread{}, err
	}
	if !t.HasParticipant(s.self) {
		t.ParticipantIDs = append([]string{s.self}, t.ParticipantIDs...)
	}
	s.upsert(t)
	return t, nil
}

func (s *ThreadStore) upsert(t Thread) {
	s.mu.Lock()
	existing, known := s.threads[t.ID]
	if known && t.LastMessage == nil {
		t.LastMessage = existing.LastMessage
	}
	s.threads[t.ID] = cloneThread(t)
	if !known && t.ID != s.selected {
		s.unread[t.ID] = t.UnreadCount
	}
	s.mu.Unlock()
	s.events.emit(Event{Kind: EventThreads, ThreadID: t.ID})
}

// receive is the arrival hook. known is false when the thread is not
// cached, in which case nothing changed. seen reports a first arrival from
// someone else in the selected thread.
func (s *ThreadStore) receive(m Message) (known, seen bool) {
	s.mu.Lock()
	t, ok := s.threads[m.ThreadID]
	if !ok {
		s.mu.Unlock()
		return false, false
	}
	counted := false
	if !s.arrived[m.ID] {
		s.arrived[m.ID] = true
		if m.SenderID != s.self {
			if m.ThreadID == s.selected {
				seen = true
			} else {
				s.unread[m.ThreadID]++
				counted = true
			}
		}
	}
	if t.LastMessage == nil || !m.CreatedAt.Before(t.LastMessage.CreatedAt) {
		t.LastMessage = m.Summary()
		s.threads[m.ThreadID] = t
	}
	s.mu.Unlock()
	s.events.emit(Event{Kind: EventThreads, ThreadID: m.ThreadID})
	if counted {
		s.events.emit(Event{Kind: EventUnread, ThreadID: m.ThreadID})
	}
	return true, seen
}

// noteArrival records id as counted without touching any counter. Used
// after a refresh whose server counts already include the message.
func (s *ThreadStore) noteArrival(id string) {
	s.mu.Lock()
	s.arrived[id] = true
	s.mu.Unlock()
}

// markRead moves the server's read marker for threadID forward. Failures
// are logged only: the local counter is already zero and the next history
// load marks the thread read again.
func (s *ThreadStore) markRead(ctx context.Context, threadID string) {
	if err := s.backend.MarkRead(ctx, threadID); err != nil {
		s.log.Warn("mark read failed", "thread_id", threadID, "error", err)
	}
}

// touch records a locally sent message as the thread's last message.
func (s *ThreadStore) touch(m Message) {
	s.mu.Lock()
	t, ok := s.threads[m.ThreadID]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.arrived[m.ID] = true
	replacesProvisional := t.LastMessage != nil && m.LocalID != "" && t.LastMessage.ID == m.LocalID
	if t.LastMessage == nil || replacesProvisional || !m.CreatedAt.Before(t.LastMessage.CreatedAt) {
		t.LastMessage = m.Summary()
		s.threads[m.ThreadID] = t
	}
	s.mu.Unlock()
	s.events.emit(Event{Kind: EventThreads, ThreadID: m.ThreadID})
}
