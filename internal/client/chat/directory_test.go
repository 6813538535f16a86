package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

func directoryFixture() (*fakeBackend, *Messenger) {
	f := newFakeBackend("u1")
	f.users = []User{
		{ID: "u1", DisplayName: "Alice Me"},
		{ID: "u2", DisplayName: "Alan"},
		{ID: "u3", DisplayName: "Alba"},
		{ID: "u4", DisplayName: "Bob"},
	}
	return f, newTestMessenger(f)
}

func TestSearchShortQueryReturnsEmptyWithoutRequest(t *testing.T) {
	f, m := directoryFixture()
	for _, q := range []string{"", "a", " a ", "é"} {
		users, err := m.Directory.Search(context.Background(), q, nil)
		if err != nil {
			t.Fatalf("query %q: %v", q, err)
		}
		if users == nil || len(users) != 0 {
			t.Fatalf("query %q: expected empty list, got %v", q, users)
		}
	}
	if f.count("SearchUsers") != 0 {
		t.Errorf("short queries must not reach the server")
	}
}

func TestSearchExcludesSelfAndSelected(t *testing.T) {
	f, m := directoryFixture()
	users, err := m.Directory.Search(context.Background(), "al", []string{"u3"})
	if err != nil {
		t.Fatal(err)
	}
	if f.count("SearchUsers") != 1 {
		t.Fatalf("expected one request")
	}
	if len(users) != 1 || users[0].ID != "u2" {
		t.Fatalf("expected only Alan, got %v", users)
	}
}

func TestSearchDebouncedKeepsOnlyLatest(t *testing.T) {
	f, m := directoryFixture()
	m.Directory.delay = 200 * time.Millisecond
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := m.Directory.SearchDebounced(ctx, "al", nil)
		first <- err
	}()
	for !m.Directory.Settled(1) {
		time.Sleep(time.Millisecond)
	}
	users, err := m.Directory.SearchDebounced(ctx, "ala", nil)
	if err != nil {
		t.Fatalf("latest query: %v", err)
	}
	if len(users) != 1 || users[0].ID != "u2" {
		t.Errorf("expected Alan, got %v", users)
	}
	if err := <-first; KindOf(err) != KindStaleContext {
		t.Errorf("expected superseded query to be stale, got %v", err)
	}
	if n := f.count("SearchUsers"); n != 1 {
		t.Errorf("expected a single request, got %d", n)
	}
}

func TestDebounceTokens(t *testing.T) {
	_, m := directoryFixture()
	a := m.Directory.Touch()
	if !m.Directory.Settled(a) {
		t.Fatal("latest token should be settled")
	}
	b := m.Directory.Touch()
	if m.Directory.Settled(a) || !m.Directory.Settled(b) {
		t.Fatal("older token should be superseded")
	}
}

func TestNoticeIsSpecific(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{validationError("send", "Type a message first."), "Type a message first."},
		{&Error{Kind: KindAuthorization}, "Your session has expired. Please sign in again."},
		{&Error{Kind: KindStaleContext}, ""},
		{errors.New("boom"), "Something went wrong: boom"},
	}
	for _, c := range cases {
		if got := Notice(c.err); got != c.want {
			t.Errorf("Notice(%v) = %q, want %q", c.err, got, c.want)
		}
	}
	if !Retryable(&Error{Kind: KindServer}) || Retryable(&Error{Kind: KindValidation}) {
		t.Errorf("unexpected retryable classification")
	}
}
