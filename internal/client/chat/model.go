package chat

import (
	"sort"
	"time"
)

type ThreadType string

const (
	ThreadDirect ThreadType = "direct"
	ThreadGroup  ThreadType = "group"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
)

// IsMedia reports whether messages of this type carry an attachment.
func (t MessageType) IsMedia() bool {
	return t == MessageImage || t == MessageVideo
}

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// MessageSummary is the denormalized last message shown in thread lists.
type MessageSummary struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"senderId"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type Thread struct {
	ID             string          `json:"id"`
	Type           ThreadType      `json:"type"`
	Title          string          `json:"title,omitempty"`
	ParticipantIDs []string        `json:"participantIds"`
	Participants   []User          `json:"participants,omitempty"`
	LastMessage    *MessageSummary `json:"lastMessage,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	// UnreadCount is only read when seeding counters from the server.
	UnreadCount int `json:"unreadCount,omitempty"`
}

// HasParticipant reports whether id is a member of the thread.
func (t Thread) HasParticipant(id string) bool {
	for _, p := range t.ParticipantIDs {
		if p == id {
			return true
		}
	}
	return false
}

// IsDirectBetween reports whether t is the direct thread for exactly {a, b}.
func (t Thread) IsDirectBetween(a, b string) bool {
	if t.Type != ThreadDirect || len(t.ParticipantIDs) != 2 {
		return false
	}
	return t.HasParticipant(a) && t.HasParticipant(b) && a != b
}

// Name returns the label for t as seen by viewer: the title for groups,
// the other participant's display name for direct threads.
func (t Thread) Name(viewer string) string {
	if t.Title != "" {
		return t.Title
	}
	for _, u := range t.Participants {
		if u.ID != viewer && u.DisplayName != "" {
			return u.DisplayName
		}
	}
	if t.Type == ThreadGroup {
		return "Group"
	}
	return "Direct message"
}

// activity is the sort key for thread lists.
func (t Thread) activity() time.Time {
	if t.LastMessage != nil {
		return t.LastMessage.CreatedAt
	}
	return t.CreatedAt
}

// SendState tracks a locally authored message through its send lifecycle.
// Messages loaded from the server have the zero value.
type SendState string

const (
	StateComposing  SendState = "composing"
	StateOptimistic SendState = "optimistic-sent"
	StateConfirmed  SendState = "confirmed"
	StateFailed     SendState = "failed"
)

// CanTransition reports whether a send may move from s to next.
func (s SendState) CanTransition(next SendState) bool {
	switch s {
	case StateComposing:
		return next == StateOptimistic
	case StateOptimistic:
		return next == StateConfirmed || next == StateFailed
	case StateFailed:
		return next == StateOptimistic
	}
	return false
}

type Message struct {
	ID            string      `json:"id"`
	ThreadID      string      `json:"threadId"`
	SenderID      string      `json:"senderId"`
	Content       string      `json:"content"`
	MessageType   MessageType `json:"messageType"`
	AttachmentRef string      `json:"attachmentUrl,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`

	LocalID string    `json:"-"`
	State   SendState `json:"-"`
	Err     error     `json:"-"`
}

// Summary returns the thread-list preview for m.
func (m Message) Summary() *MessageSummary {
	return &MessageSummary{
		ID:          m.ID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		MessageType: m.MessageType,
		CreatedAt:   m.CreatedAt,
	}
}

// Pending reports whether m is still waiting on the server.
func (m Message) Pending() bool { return m.State == StateOptimistic }

// Failed reports whether the last send attempt for m failed.
func (m Message) Failed() bool { return m.State == StateFailed }

// messageLess orders by createdAt, then id.
func messageLess(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return messageLess(msgs[i], msgs[j]) })
}

func sortThreads(threads []Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		ai, aj := threads[i].activity(), threads[j].activity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return threads[i].ID < threads[j].ID
	})
}

func cloneThread(t Thread) Thread {
	t.ParticipantIDs = append([]string(nil), t.ParticipantIDs...)
	t.Participants = append([]User(nil), t.Participants...)
	if t.LastMessage != nil {
		lm := *t.LastMessage
		t.LastMessage = &lm
	}
	return t
}
