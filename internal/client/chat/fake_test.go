package chat

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// fakeBackend is an in-memory server. Hooks let tests block or fail calls.
type fakeBackend struct {
	mu       sync.Mutex
	self     string
	clock    time.Time
	nextID   int
	users    []User
	threads  map[string]Thread
	messages map[string][]Message
	objects  map[string][]byte

	calls map[string]int

	// listGate, when set for a thread, blocks ListMessages until closed.
	listGate map[string]chan struct{}

	failPost    error
	failRequest error
	failPut     error
	uploadType  MessageType
}

func newFakeBackend(self string) *fakeBackend {
	return &fakeBackend{
		self:     self,
		clock:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		threads:  make(map[string]Thread),
		messages: make(map[string][]Message),
		objects:  make(map[string][]byte),
		calls:    make(map[string]int),
		listGate: make(map[string]chan struct{}),
	}
}

func (f *fakeBackend) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeBackend) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) addThread(t Thread) Thread {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = f.tick()
	}
	f.threads[t.ID] = t
	return t
}

// addMessage stores a message as if another client had sent it.
func (f *fakeBackend) addMessage(threadID, sender, content string) Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := Message{
		ID:          f.id("m"),
		ThreadID:    threadID,
		SenderID:    sender,
		Content:     content,
		MessageType: MessageText,
		CreatedAt:   f.tick(),
	}
	f.messages[threadID] = append(f.messages[threadID], m)
	t := f.threads[threadID]
	t.LastMessage = m.Summary()
	f.threads[threadID] = t
	return m
}

func (f *fakeBackend) ListThreads(ctx context.Context) ([]Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListThreads"]++
	out := make([]Thread, 0, len(f.threads))
	for _, t := range f.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	f.mu.Lock()
	f.calls["ListMessages"]++
	gate := f.listGate[threadID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages[threadID]...), nil
}

func (f *fakeBackend) PostMessage(ctx context.Context, threadID string, req PostMessageRequest) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["PostMessage"]++
	if f.failPost != nil {
		return Message{}, f.failPost
	}
	m := Message{
		ID:            f.id("m"),
		ThreadID:      threadID,
		SenderID:      f.self,
		Content:       req.Content,
		MessageType:   req.MessageType,
		AttachmentRef: req.AttachmentURL,
		CreatedAt:     f.tick(),
	}
	f.messages[threadID] = append(f.messages[threadID], m)
	return m, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["MarkRead"]++
	if t, ok := f.threads[threadID]; ok {
		t.UnreadCount = 0
		f.threads[threadID] = t
	}
	return nil
}

func (f *fakeBackend) SearchUsers(ctx context.Context, query string) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SearchUsers"]++
	var out []User
	for _, u := range f.users {
		if strings.Contains(strings.ToLower(u.DisplayName), strings.ToLower(query)) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeBackend) StartDirect(ctx context.Context, target string) (Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["StartDirect"]++
	for _, t := range f.threads {
		if t.IsDirectBetween(f.self, target) {
			return t, nil
		}
	}
	t := Thread{ID: f.id("t"), Type: ThreadDirect, ParticipantIDs: []string{f.self, target}, CreatedAt: f.tick()}
	f.threads[t.ID] = t
	return t, nil
}

func (f *fakeBackend) CreateGroup(ctx context.Context, title string, members []string) (Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateGroup"]++
	t := Thread{
		ID:             f.id("g"),
		Type:           ThreadGroup,
		Title:          title,
		ParticipantIDs: append([]string{f.self}, members...),
		CreatedAt:      f.tick(),
	}
	f.threads[t.ID] = t
	return t, nil
}

func (f *fakeBackend) RequestUpload(ctx context.Context, req UploadRequest) (UploadTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RequestUpload"]++
	if f.failRequest != nil {
		return UploadTarget{}, f.failRequest
	}
	mt := f.uploadType
	if mt == "" {
		mt = MessageImage
		if strings.HasPrefix(req.ContentType, "video/") {
			mt = MessageVideo
		}
	}
	path := "chat/" + f.self + "/" + f.id("o") + "/" + req.Name
	return UploadTarget{UploadURL: "https://storage.test/" + path, ObjectPath: path, MediaType: mt}, nil
}

func (f *fakeBackend) PutObject(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["PutObject"]++
	if err != nil {
		return err
	}
	if f.failPut != nil {
		return f.failPut
	}
	f.objects[uploadURL] = data
	return nil
}

func fileOf(name, contentType string, size int64) File {
	return File{
		Name:        name,
		Size:        size,
		ContentType: contentType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("bytes")), nil
		},
	}
}

func newTestMessenger(f *fakeBackend) *Messenger {
	clock := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return New(f, User{ID: f.self, DisplayName: "Me"},
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Millisecond)
			return clock
		}),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("%d", n)
		}),
		WithSearchDebounce(10*time.Millisecond),
	)
}
