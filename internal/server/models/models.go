package models

import "time"

const (
	ThreadDirect = "direct"
	ThreadGroup  = "group"

	MessageText  = "text"
	MessageImage = "image"
	MessageVideo = "video"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username,omitempty"`
	DisplayName  string    `json:"displayName"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// Public strips everything other users should not see.
func (u User) Public() User {
	return User{ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}

type MessageSummary struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Thread struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Title          string          `json:"title,omitempty"`
	ParticipantIDs []string        `json:"participantIds"`
	Participants   []User          `json:"participants,omitempty"`
	LastMessage    *MessageSummary `json:"lastMessage,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UnreadCount    int             `json:"unreadCount"`
}

type Message struct {
	ID            string    `json:"id"`
	ThreadID      string    `json:"threadId"`
	SenderID      string    `json:"senderId"`
	Content       string    `json:"content"`
	MessageType   string    `json:"messageType"`
	AttachmentURL string    `json:"attachmentUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (m Message) Summary() *MessageSummary {
	return &MessageSummary{
		ID:          m.ID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		MessageType: m.MessageType,
		CreatedAt:   m.CreatedAt,
	}
}

// REST payloads

type AuthRequest struct {
	Username    string `json:"username" binding:"required,min=2,max=32"`
	Password    string `json:"password" binding:"required,min=6,max=128"`
	DisplayName string `json:"displayName" binding:"max=64"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type PostMessageRequest struct {
	Content       string `json:"content"`
	MessageType   string `json:"messageType"`
	AttachmentURL string `json:"attachmentUrl,omitempty"`
}

type DirectRequest struct {
	TargetUserID string `json:"targetUserId" binding:"required"`
}

type GroupRequest struct {
	Title     string   `json:"title"`
	MemberIDs []string `json:"memberIds"`
}

type UploadRequest struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

type UploadTarget struct {
	UploadURL  string `json:"uploadURL"`
	ObjectPath string `json:"objectPath"`
	MediaType  string `json:"mediaType"`
}

// Push events

const (
	EventMessageCreated = "message_created"
	EventThreadCreated  = "thread_created"
)

// Event travels over the bus. Recipients never reach clients.
type Event struct {
	Type       string   `json:"type"`
	Recipients []string `json:"recipients"`
	Message    *Message `json:"message,omitempty"`
	Thread     *Thread  `json:"thread,omitempty"`
}

// Push is the frame written to websocket clients.
type Push struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	Thread  *Thread  `json:"thread,omitempty"`
}

func (e Event) Push() Push {
	return Push{Type: e.Type, Message: e.Message, Thread: e.Thread}
}
