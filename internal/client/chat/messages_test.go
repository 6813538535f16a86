package chat

import (
	"context"
	"testing"
	"time"
)

func TestStaleHistoryIsDiscarded(t *testing.T) {
	f := newFakeBackend("u1")
	f.addThread(Thread{ID: "a", Type: ThreadDirect, ParticipantIDs: []string{"u1", "u2"}})
	f.addThread(Thread{ID: "b", Type: ThreadDirect, ParticipantIDs: []string{"u1", "u3"}})
	f.addMessage("a", "u2", "from a")
	f.addMessage("b", "u3", "from b")
	gate := make(chan struct{})
	f.listGate["a"] = gate

	m := newTestMessenger(f)
	ctx := context.Background()
	if err := m.Threads.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		msgs, err := m.Threads.Select(ctx, "a")
		if err == nil && msgs != nil {
			t.Errorf("stale selection should report no messages, got %v", msgs)
		}
		done <- err
	}()

	// Wait until the load for a is in flight before switching.
	deadline := time.Now().Add(time.Second)
	for f.count("ListMessages") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("load for a never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := m.Threads.Select(ctx, "b"); err != nil {
		t.Fatalf("select b: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("stale load should not surface an error, got %v", err)
	}

	msgs := m.Messages.Messages()
	if len(msgs) != 1 || msgs[0].Content != "from b" {
		t.Fatalf("expected b's history, got %+v", msgs)
	}
	if m.Messages.ThreadID() != "b" {
		t.Errorf("expected store to show b, got %s", m.Messages.ThreadID())
	}
}

func TestLoadHistoryReportsStaleContext(t *testing.T) {
	f := newFakeBackend("u1")
	gate := make(chan struct{})
	f.listGate["a"] = gate
	m := newTestMessenger(f)

	errc := make(chan error, 1)
	go func() {
		_, err := m.Messages.LoadHistory(context.Background(), "a")
		errc <- err
	}()
	for f.count("ListMessages") == 0 {
		time.Sleep(time.Millisecond)
	}
	m.Messages.reset()
	close(gate)
	if err := <-errc; KindOf(err) != KindStaleContext {
		t.Fatalf("expected stale context, got %v", err)
	}
}

func TestAppendKeepsOrder(t *testing.T) {
	f := newFakeBackend("u1")
	f.addThread(Thread{ID: "a", Type: ThreadDirect, ParticipantIDs: []string{"u1", "u2"}})
	for i := 0; i < 3; i++ {
		f.addMessage("a", "u2", "history")
	}
	m := newTestMessenger(f)
	ctx := context.Background()
	_ = m.Threads.Refresh(ctx)
	if _, err := m.Threads.Select(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	appends := []Message{
		{ID: "x9", ThreadID: "a", CreatedAt: base.Add(10 * time.Second)},
		{ID: "x1", ThreadID: "a", CreatedAt: base.Add(2 * time.Second)},
		{ID: "x5", ThreadID: "a", CreatedAt: base.Add(10 * time.Second)},
		{ID: "x0", ThreadID: "a", CreatedAt: base},
	}
	for _, msg := range appends {
		if !m.Messages.Append(msg) {
			t.Fatalf("append %s rejected", msg.ID)
		}
	}
	if m.Messages.Append(appends[0]) {
		t.Errorf("duplicate id should be ignored")
	}
	if m.Messages.Append(Message{ID: "other", ThreadID: "b", CreatedAt: base}) {
		t.Errorf("message for another thread should be ignored")
	}

	msgs := m.Messages.Messages()
	if len(msgs) != 7 {
		t.Fatalf("expected 7 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if messageLess(msgs[i], msgs[i-1]) {
			t.Fatalf("out of order at %d: %s before %s", i, msgs[i-1].ID, msgs[i].ID)
		}
	}
	// Equal timestamps fall back to id order.
	last := msgs[len(msgs)-2:]
	if last[0].ID != "x5" || last[1].ID != "x9" {
		t.Errorf("expected x5 then x9, got %s then %s", last[0].ID, last[1].ID)
	}
}

func TestHistoryKeepsLocalPendingMessages(t *testing.T) {
	f := newFakeBackend("u1")
	f.addThread(Thread{ID: "a", Type: ThreadDirect, ParticipantIDs: []string{"u1", "u2"}})
	f.addMessage("a", "u2", "old")
	m := newTestMessenger(f)
	_ = m.Threads.Refresh(context.Background())

	gen := m.Messages.begin("a")
	pending := Message{ID: "local-1", LocalID: "local-1", ThreadID: "a", SenderID: "u1", Content: "typing fast", CreatedAt: time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC), State: StateFailed}
	m.Messages.Append(pending)
	if _, err := m.Messages.load(context.Background(), gen, "a"); err != nil {
		t.Fatal(err)
	}
	msgs := m.Messages.Messages()
	if len(msgs) != 2 || msgs[1].ID != "local-1" {
		t.Fatalf("expected history plus local message, got %+v", msgs)
	}
}

func TestHistoryKeepsMessagesPushedDuringLoad(t *testing.T) {
	f := newFakeBackend("u1")
	f.addThread(Thread{ID: "a", Type: ThreadDirect, ParticipantIDs: []string{"u1", "u2"}})
	f.addMessage("a", "u2", "old")
	gate := make(chan struct{})
	f.listGate["a"] = gate

	m := newTestMessenger(f)
	ctx := context.Background()
	if err := m.Threads.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Threads.Select(ctx, "a")
		done <- err
	}()
	deadline := time.Now().Add(time.Second)
	for f.count("ListMessages") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("load for a never started")
		}
		time.Sleep(time.Millisecond)
	}

	// The server snapshot for the load was taken before this push.
	pushed := Message{ID: "x1", ThreadID: "a", SenderID: "u2", Content: "just now", MessageType: MessageText, CreatedAt: time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)}
	if err := m.Receive(ctx, pushed); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Messages.Find("x1"); !ok {
		t.Fatalf("expected pushed message to be shown while loading")
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("select: %v", err)
	}

	msgs := m.Messages.Messages()
	if len(msgs) != 2 || msgs[0].Content != "old" || msgs[1].ID != "x1" {
		t.Fatalf("expected history plus pushed message, got %+v", msgs)
	}
	if n := m.Threads.Unread("a"); n != 0 {
		t.Errorf("pushed message in the open thread should not count, got %d", n)
	}
}
