package chat

import "sync"

type EventKind string

const (
	EventThreads  EventKind = "threads"
	EventMessages EventKind = "messages"
	EventUnread   EventKind = "unread"
	EventSend     EventKind = "send"
	EventUpload   EventKind = "upload"
)

// Event tells subscribers which part of the state changed. Subscribers
// read the new state through the store accessors.
type Event struct {
	Kind     EventKind
	ThreadID string
	Message  *Message
	Phase    Phase
}

type notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]func(Event))}
}

func (n *notifier) subscribe(fn func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func (n *notifier) emit(ev Event) {
	if n == nil {
		return
	}
	n.mu.Lock()
	fns := make([]func(Event), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
