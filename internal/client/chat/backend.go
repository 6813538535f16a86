package chat

import (
	"context"
	"io"
)

// PostMessageRequest is the body of POST /threads/{id}/messages.
type PostMessageRequest struct {
	Content       string      `json:"content"`
	MessageType   MessageType `json:"messageType"`
	AttachmentURL string      `json:"attachmentUrl,omitempty"`
}

// UploadRequest is the body of POST /chat/upload-media.
type UploadRequest struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// UploadTarget is a short-lived, write-only destination for one object.
type UploadTarget struct {
	UploadURL  string      `json:"uploadURL"`
	ObjectPath string      `json:"objectPath"`
	MediaType  MessageType `json:"mediaType"`
}

// Backend is the server contract the core talks to. Implementations must
// return *Error values so callers can classify failures.
type Backend interface {
	ListThreads(ctx context.Context) ([]Thread, error)
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
	PostMessage(ctx context.Context, threadID string, req PostMessageRequest) (Message, error)
	MarkRead(ctx context.Context, threadID string) error
	SearchUsers(ctx context.Context, query string) ([]User, error)
	StartDirect(ctx context.Context, targetUserID string) (Thread, error)
	CreateGroup(ctx context.Context, title string, memberIDs []string) (Thread, error)
	RequestUpload(ctx context.Context, req UploadRequest) (UploadTarget, error)
	PutObject(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error
}
