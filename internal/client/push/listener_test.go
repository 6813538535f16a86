package push

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cloudzz-dev/memberchat/internal/client/chat"
	"github.com/gorilla/websocket"
)

type recorder struct {
	mu       sync.Mutex
	messages []chat.Message
	threads  []chat.Thread
	got      chan struct{}
}

func newRecorder() *recorder { return &recorder{got: make(chan struct{}, 8)} }

func (r *recorder) Receive(ctx context.Context, msg chat.Message) error {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func (r *recorder) ReceiveThread(t chat.Thread) {
	r.mu.Lock()
	r.threads = append(r.threads, t)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push")
	}
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws", false},
		{"https://chat.example.com/", "wss://chat.example.com/ws", false},
		{"https://example.com/api", "wss://example.com/api/ws", false},
		{"ftp://example.com", "", true},
	}
	for _, tt := range tests {
		got, err := SocketURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("SocketURL(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SocketURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestListenerDispatchesEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	tokens := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(Envelope{Type: EventThreadCreated, Thread: &chat.Thread{ID: "t9", Type: chat.ThreadGroup}})
		conn.WriteJSON(Envelope{Type: "typing"})
		conn.WriteJSON(Envelope{Type: EventMessageCreated, Message: &chat.Message{ID: "m1", ThreadID: "t9", Content: "hi"}})
		// Hold the socket open until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	rec := newRecorder()
	ln, err := New(srv.URL, func() string { return "tok 1" }, rec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ln.Run(ctx) }()

	wait(t, rec.got)
	wait(t, rec.got)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.threads) != 1 || rec.threads[0].ID != "t9" {
		t.Errorf("threads = %+v", rec.threads)
	}
	if len(rec.messages) != 1 || rec.messages[0].ID != "m1" {
		t.Errorf("messages = %+v", rec.messages)
	}
	if got := <-tokens; got != "tok 1" {
		t.Errorf("token = %q", got)
	}
}

func TestListenerReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	dials := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()
		if n == 1 {
			conn.Close()
			return
		}
		defer conn.Close()
		conn.WriteJSON(Envelope{Type: EventMessageCreated, Message: &chat.Message{ID: "m2", ThreadID: "t1"}})
		conn.ReadMessage()
	}))
	defer srv.Close()

	rec := newRecorder()
	var statusMu sync.Mutex
	var statuses []Status
	ln, err := New(srv.URL, func() string { return "tok" }, rec,
		WithBackoff(5*time.Millisecond, 20*time.Millisecond),
		WithStatus(func(s Status, _ error) {
			statusMu.Lock()
			statuses = append(statuses, s)
			statusMu.Unlock()
		}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Run(ctx)

	wait(t, rec.got)

	mu.Lock()
	defer mu.Unlock()
	if dials < 2 {
		t.Errorf("dials = %d, want a reconnect", dials)
	}
	statusMu.Lock()
	defer statusMu.Unlock()
	sawDisconnect := false
	for _, s := range statuses {
		if s == Disconnected {
			sawDisconnect = true
		}
	}
	if !sawDisconnect {
		t.Errorf("statuses = %v, want a disconnect", statuses)
	}
}

func TestSessionWithoutTokenIsAuthorization(t *testing.T) {
	ln, err := New("http://127.0.0.1:1", func() string { return "" }, newRecorder())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = ln.session(context.Background())
	if !errors.Is(err, chat.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}
