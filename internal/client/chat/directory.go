package chat

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
)

// MinQueryLength is the shortest query that reaches the server.
const MinQueryLength = 2

// Directory searches members to start chats with.
type Directory struct {
	backend Backend
	log     *logger.Logger
	self    string
	delay   time.Duration

	mu  sync.Mutex
	seq uint64
}

// Delay is the debounce interval between the last keystroke and a search.
func (d *Directory) Delay() time.Duration { return d.delay }

// Search returns members matching query, minus the local user and the ids
// in exclude. Queries shorter than MinQueryLength return an empty list
// without a request.
func (d *Directory) Search(ctx context.Context, query string, exclude []string) ([]User, error) {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < MinQueryLength {
		return []User{}, nil
	}
	users, err := d.backend.SearchUsers(ctx, q)
	if err != nil {
		d.log.Warn("member search failed", "error", err)
		return nil, err
	}
	skip := make(map[string]bool, len(exclude)+1)
	skip[d.self] = true
	for _, id := range exclude {
		skip[id] = true
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		if skip[u.ID] {
			continue
		}
		skip[u.ID] = true
		out = append(out, u)
	}
	return out, nil
}

// Touch records a keystroke and returns its debounce token.
func (d *Directory) Touch() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	return d.seq
}

// Settled reports whether no keystroke happened after token was issued.
func (d *Directory) Settled(token uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq == token
}

// SearchDebounced waits for the debounce interval and searches only if no
// newer call arrived meanwhile. A superseded call returns ErrStaleContext.
func (d *Directory) SearchDebounced(ctx context.Context, query string, exclude []string) ([]User, error) {
	token := d.Touch()
	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, &Error{Kind: KindNetwork, Op: "search", Err: ctx.Err()}
	case <-timer.C:
	}
	if !d.Settled(token) {
		return nil, &Error{Kind: KindStaleContext, Op: "search", Msg: "superseded by a newer query"}
	}
	return d.Search(ctx, query, exclude)
}
