package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
)

// Messenger wires the stores together for one signed-in user. The view
// layer reads state through the stores and reacts to Subscribe events; it
// never mutates the caches directly.
type Messenger struct {
	Threads     *ThreadStore
	Messages    *MessageStore
	Composer    *Composer
	Attachments *Pipeline
	Directory   *Directory

	self   User
	log    *logger.Logger
	events *notifier
}

type options struct {
	log            *logger.Logger
	now            func() time.Time
	newID          func() string
	searchDebounce time.Duration
}

type Option func(*options)

func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func WithSearchDebounce(d time.Duration) Option {
	return func(o *options) { o.searchDebounce = d }
}

func New(backend Backend, self User, opts ...Option) *Messenger {
	o := options{
		log:            logger.Nop(),
		now:            time.Now,
		newID:          uuid.NewString,
		searchDebounce: 300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With("component", "chat", "self", self.ID)
	events := newNotifier()

	messages := newMessageStore(backend, log, events)
	threads := newThreadStore(backend, log, events, self.ID, messages)
	composer := &Composer{
		backend:  backend,
		log:      log,
		events:   events,
		self:     self.ID,
		threads:  threads,
		messages: messages,
		now:      o.now,
		newID:    o.newID,
		outbox:   make(map[string]Message),
	}
	return &Messenger{
		Threads:     threads,
		Messages:    messages,
		Composer:    composer,
		Attachments: &Pipeline{backend: backend, composer: composer, log: log, events: events},
		Directory:   &Directory{backend: backend, log: log, self: self.ID, delay: o.searchDebounce},
		self:        self,
		log:         log,
		events:      events,
	}
}

func (m *Messenger) Self() User { return m.self }

// Subscribe registers fn for change notifications and returns a function
// that removes it. fn runs on the goroutine that made the change.
func (m *Messenger) Subscribe(fn func(Event)) func() {
	return m.events.subscribe(fn)
}

// TotalUnread is the badge count across all threads.
func (m *Messenger) TotalUnread() int { return m.Threads.TotalUnread() }

// Receive applies a message pushed by the server. Unknown threads trigger a
// refresh of the thread list, whose unread counts already include msg. A
// message from someone else landing in the open thread is marked read on
// the server so a later refresh does not count it.
func (m *Messenger) Receive(ctx context.Context, msg Message) error {
	if msg.ID == "" || msg.ThreadID == "" {
		return nil
	}
	known, seen := m.Threads.receive(msg)
	if !known {
		m.log.Debug("message for unknown thread", "thread_id", msg.ThreadID)
		if err := m.Threads.Refresh(ctx); err != nil {
			return err
		}
		m.Threads.noteArrival(msg.ID)
		return nil
	}
	m.Messages.Append(msg)
	if seen {
		m.Threads.markRead(ctx, msg.ThreadID)
	}
	return nil
}

// ReceiveThread applies a thread pushed by the server, such as a group the
// local user was just added to.
func (m *Messenger) ReceiveThread(t Thread) {
	if t.ID == "" || !t.HasParticipant(m.self.ID) {
		return
	}
	m.Threads.upsert(t)
}
