package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
)

// Composer turns user input into messages. Every send is applied to the
// stores optimistically before the server answers.
type Composer struct {
	backend  Backend
	log      *logger.Logger
	events   *notifier
	self     string
	threads  *ThreadStore
	messages *MessageStore
	now      func() time.Time
	newID    func() string

	mu     sync.Mutex
	outbox map[string]Message
}

// Send validates the input, shows a provisional message right away and
// then creates it on the server. On failure the provisional message stays
// visible in the failed state and is returned together with the error.
func (c *Composer) Send(ctx context.Context, threadID, content string, messageType MessageType, attachmentRef string) (Message, error) {
	const op = "send"
	if messageType == "" {
		messageType = MessageText
	}
	content = strings.TrimSpace(content)
	attachmentRef = strings.TrimSpace(attachmentRef)
	switch {
	case threadID == "":
		return Message{}, validationError(op, "Pick a conversation first.")
	case messageType == MessageText && content == "":
		return Message{}, validationError(op, "Type a message first.")
	case messageType == MessageText && attachmentRef != "":
		return Message{}, validationError(op, "Text messages can't carry an attachment.")
	case messageType.IsMedia() && attachmentRef == "":
		return Message{}, validationError(op, "The attachment is missing.")
	case messageType != MessageText && !messageType.IsMedia():
		return Message{}, validationError(op, "Unknown message type.")
	}
	if messageType.IsMedia() && content == "" {
		content = DefaultContent(messageType)
	}

	localID := "local-" + c.newID()
	m := Message{
		ID:            localID,
		LocalID:       localID,
		ThreadID:      threadID,
		SenderID:      c.self,
		Content:       content,
		MessageType:   messageType,
		AttachmentRef: attachmentRef,
		CreatedAt:     c.now(),
		State:         StateOptimistic,
	}
	c.messages.Append(m)
	c.threads.touch(m)
	c.remember(m)
	c.events.emit(Event{Kind: EventSend, ThreadID: threadID, Message: &m})

	return c.deliver(ctx, m)
}

// Retry re-sends a failed message, moving it back to optimistic-sent.
func (c *Composer) Retry(ctx context.Context, localID string) (Message, error) {
	c.mu.Lock()
	m, ok := c.outbox[localID]
	if !ok || !m.State.CanTransition(StateOptimistic) {
		c.mu.Unlock()
		return Message{}, validationError("retry", "There is nothing to retry.")
	}
	m.State = StateOptimistic
	m.Err = nil
	c.outbox[localID] = m
	c.mu.Unlock()

	c.messages.setState(localID, StateOptimistic, nil)
	c.events.emit(Event{Kind: EventSend, ThreadID: m.ThreadID, Message: &m})
	return c.deliver(ctx, m)
}

// Outbox returns sends that have not been confirmed, oldest first.
func (c *Composer) Outbox() []Message {
	c.mu.Lock()
	out := make([]Message, 0, len(c.outbox))
	for _, m := range c.outbox {
		out = append(out, m)
	}
	c.mu.Unlock()
	sortMessages(out)
	return out
}

func (c *Composer) deliver(ctx context.Context, m Message) (Message, error) {
	resp, err := c.backend.PostMessage(ctx, m.ThreadID, PostMessageRequest{
		Content:       m.Content,
		MessageType:   m.MessageType,
		AttachmentURL: m.AttachmentRef,
	})
	if err != nil {
		m.State = StateFailed
		m.Err = err
		c.remember(m)
		c.messages.setState(m.LocalID, StateFailed, err)
		c.log.Warn("send failed", "thread_id", m.ThreadID, "local_id", m.LocalID, "error", err)
		c.events.emit(Event{Kind: EventSend, ThreadID: m.ThreadID, Message: &m})
		return m, err
	}

	confirmed := reconcileWith(m, resp)
	c.mu.Lock()
	delete(c.outbox, m.LocalID)
	c.mu.Unlock()
	c.messages.reconcile(m.LocalID, confirmed)
	c.threads.touch(confirmed)
	c.events.emit(Event{Kind: EventSend, ThreadID: m.ThreadID, Message: &confirmed})
	return confirmed, nil
}

func (c *Composer) remember(m Message) {
	c.mu.Lock()
	c.outbox[m.LocalID] = m
	c.mu.Unlock()
}

// reconcileWith merges the server's copy into the provisional message.
// Fields the server left empty keep their optimistic values.
func reconcileWith(provisional, server Message) Message {
	out := provisional
	if server.ID != "" {
		out.ID = server.ID
	}
	if !server.CreatedAt.IsZero() {
		out.CreatedAt = server.CreatedAt
	}
	if server.Content != "" {
		out.Content = server.Content
	}
	if server.SenderID != "" {
		out.SenderID = server.SenderID
	}
	if server.AttachmentRef != "" {
		out.AttachmentRef = server.AttachmentRef
	}
	out.State = StateConfirmed
	out.Err = nil
	return out
}

// DefaultContent is the preview text for attachment messages.
func DefaultContent(t MessageType) string {
	switch t {
	case MessageImage:
		return "Sent an image"
	case MessageVideo:
		return "Sent a video"
	}
	return ""
}
