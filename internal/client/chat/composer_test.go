package chat

import (
	"context"
	"errors"
	"testing"
)

func selectedMessenger(t *testing.T) (*fakeBackend, *Messenger) {
	t.Helper()
	f := newFakeBackend("u1")
	f.addThread(Thread{ID: "a", Type: ThreadDirect, ParticipantIDs: []string{"u1", "u2"}})
	f.addMessage("a", "u2", "hello")
	m := newTestMessenger(f)
	ctx := context.Background()
	if err := m.Threads.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Threads.Select(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	return f, m
}

func TestSendBlankTextIsRejectedLocally(t *testing.T) {
	f, m := selectedMessenger(t)
	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := m.Composer.Send(context.Background(), "a", content, MessageText, "")
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("content %q: expected validation error, got %v", content, err)
		}
	}
	if f.count("PostMessage") != 0 {
		t.Errorf("expected no network call")
	}
	if n := len(m.Messages.Messages()); n != 1 {
		t.Errorf("expected no appended message, have %d", n)
	}
}

func TestSendTextRequiresNoAttachment(t *testing.T) {
	_, m := selectedMessenger(t)
	_, err := m.Composer.Send(context.Background(), "a", "hi", MessageText, "chat/u1/x.png")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = m.Composer.Send(context.Background(), "a", "", MessageImage, "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for media without attachment, got %v", err)
	}
}

func TestSendIsOptimisticThenConfirmed(t *testing.T) {
	f, m := selectedMessenger(t)
	var states []SendState
	unsubscribe := m.Subscribe(func(ev Event) {
		if ev.Kind == EventSend && ev.Message != nil {
			states = append(states, ev.Message.State)
		}
		if ev.Kind == EventSend && ev.Message != nil && ev.Message.State == StateOptimistic {
			// The provisional entry is visible before the server answers.
			if f.count("PostMessage") != 0 {
				t.Errorf("provisional message emitted after the request")
			}
			if _, ok := m.Messages.Find(ev.Message.LocalID); !ok {
				t.Errorf("provisional message not in the store")
			}
		}
	})
	defer unsubscribe()

	msg, err := m.Composer.Send(context.Background(), "a", "  hi there  ", "", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.State != StateConfirmed || msg.ID == msg.LocalID {
		t.Fatalf("expected confirmed message with server id, got %+v", msg)
	}
	if msg.Content != "hi there" {
		t.Errorf("expected trimmed content, got %q", msg.Content)
	}
	want := []SendState{StateOptimistic, StateConfirmed}
	if len(states) != len(want) || states[0] != want[0] || states[1] != want[1] {
		t.Errorf("expected transitions %v, got %v", want, states)
	}

	msgs := m.Messages.Messages()
	if len(msgs) != 2 || msgs[1].ID != msg.ID {
		t.Fatalf("expected reconciled message at the end, got %+v", msgs)
	}
	th, _ := m.Threads.Get("a")
	if th.LastMessage == nil || th.LastMessage.ID != msg.ID {
		t.Errorf("expected thread preview to show the sent message, got %+v", th.LastMessage)
	}
	if len(m.Composer.Outbox()) != 0 {
		t.Errorf("confirmed sends should leave the outbox")
	}
}

func TestSendFailureKeepsFailedMessageAndRetry(t *testing.T) {
	f, m := selectedMessenger(t)
	f.failPost = &Error{Kind: KindNetwork, Op: "post message", Msg: "connection refused"}

	msg, err := m.Composer.Send(context.Background(), "a", "are you there?", MessageText, "")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if msg.State != StateFailed {
		t.Fatalf("expected failed state, got %s", msg.State)
	}
	stored, ok := m.Messages.Find(msg.LocalID)
	if !ok || !stored.Failed() || stored.Content != "are you there?" {
		t.Fatalf("failed message should stay visible, got %+v (found=%v)", stored, ok)
	}

	f.mu.Lock()
	f.failPost = nil
	f.mu.Unlock()
	retried, err := m.Composer.Retry(context.Background(), msg.LocalID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.State != StateConfirmed {
		t.Fatalf("expected confirmed after retry, got %s", retried.State)
	}
	msgs := m.Messages.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected exactly one copy after retry, got %+v", msgs)
	}
	if _, err := m.Composer.Retry(context.Background(), msg.LocalID); !errors.Is(err, ErrValidation) {
		t.Errorf("second retry should be rejected, got %v", err)
	}
}

func TestPushedEchoDoesNotDuplicate(t *testing.T) {
	_, m := selectedMessenger(t)
	sent, err := m.Composer.Send(context.Background(), "a", "echo", MessageText, "")
	if err != nil {
		t.Fatal(err)
	}
	echo := sent
	echo.LocalID, echo.State = "", ""
	if err := m.Receive(context.Background(), echo); err != nil {
		t.Fatal(err)
	}
	if n := len(m.Messages.Messages()); n != 2 {
		t.Fatalf("expected 2 messages, got %d", n)
	}
	if m.TotalUnread() != 0 {
		t.Errorf("own messages must not count as unread")
	}
}

func TestSendStateTransitions(t *testing.T) {
	cases := []struct {
		from, to SendState
		ok       bool
	}{
		{StateComposing, StateOptimistic, true},
		{StateComposing, StateConfirmed, false},
		{StateOptimistic, StateConfirmed, true},
		{StateOptimistic, StateFailed, true},
		{StateFailed, StateOptimistic, true},
		{StateFailed, StateConfirmed, false},
		{StateConfirmed, StateOptimistic, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.ok {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.ok, got)
		}
	}
}
