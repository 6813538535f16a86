// Package push keeps a websocket open to the chat server and feeds pushed
// messages and threads into the client core.
package push

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cloudzz-dev/memberchat/internal/client/chat"
	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
	"github.com/gorilla/websocket"
)

const (
	EventMessageCreated = "message_created"
	EventThreadCreated  = "thread_created"
)

// Envelope is one server push frame.
type Envelope struct {
	Type    string        `json:"type"`
	Message *chat.Message `json:"message,omitempty"`
	Thread  *chat.Thread  `json:"thread,omitempty"`
}

// Receiver is satisfied by *chat.Messenger.
type Receiver interface {
	Receive(ctx context.Context, msg chat.Message) error
	ReceiveThread(t chat.Thread)
}

type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

type Listener struct {
	url      string
	token    func() string
	receiver Receiver
	log      *logger.Logger
	dialer   *websocket.Dialer
	onStatus func(Status, error)

	minBackoff time.Duration
	maxBackoff time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

type Option func(*Listener)

func WithLogger(l *logger.Logger) Option {
	return func(ln *Listener) { ln.log = l }
}

// WithStatus registers a callback for connection state changes.
func WithStatus(fn func(Status, error)) Option {
	return func(ln *Listener) { ln.onStatus = fn }
}

func WithBackoff(min, max time.Duration) Option {
	return func(ln *Listener) {
		ln.minBackoff = min
		ln.maxBackoff = max
	}
}

// New builds a listener for the server at baseURL (http or https). token
// is read on every dial so a re-login takes effect on reconnect.
func New(baseURL string, token func() string, r Receiver, opts ...Option) (*Listener, error) {
	u, err := SocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	ln := &Listener{
		url:        u,
		token:      token,
		receiver:   r,
		log:        logger.Nop(),
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		onStatus:   func(Status, error) {},
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(ln)
	}
	ln.log = ln.log.With("component", "push")
	return ln, nil
}

// SocketURL maps the REST base URL to the /ws endpoint.
func SocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

// Run connects and reads until ctx ends, reconnecting with capped
// exponential backoff. It always returns ctx.Err().
func (ln *Listener) Run(ctx context.Context) error {
	backoff := ln.minBackoff
	for {
		ln.onStatus(Connecting, nil)
		connected, err := ln.session(ctx)
		if ctx.Err() != nil {
			ln.onStatus(Disconnected, nil)
			return ctx.Err()
		}
		ln.onStatus(Disconnected, err)
		if connected {
			backoff = ln.minBackoff
		}
		ln.log.Warn("push connection lost", "error", err, "retry_in", backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff *= 2
		if backoff > ln.maxBackoff {
			backoff = ln.maxBackoff
		}
	}
}

func (ln *Listener) session(ctx context.Context) (bool, error) {
	token := ln.token()
	if token == "" {
		return false, &chat.Error{Kind: chat.KindAuthorization, Op: "push", Msg: "not signed in"}
	}
	u := ln.url + "?token=" + url.QueryEscape(token)
	conn, resp, err := ln.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return false, &chat.Error{Kind: chat.KindAuthorization, Op: "push", Status: resp.StatusCode, Err: err}
		}
		return false, &chat.Error{Kind: chat.KindNetwork, Op: "push", Err: err}
	}
	ln.setConn(conn)
	defer ln.setConn(nil)
	defer conn.Close()

	ln.onStatus(Connected, nil)
	ln.log.Info("push connected", "url", ln.url)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return true, &chat.Error{Kind: chat.KindNetwork, Op: "push", Err: err}
		}
		ln.dispatch(ctx, env)
	}
}

func (ln *Listener) dispatch(ctx context.Context, env Envelope) {
	switch env.Type {
	case EventMessageCreated:
		if env.Message == nil {
			return
		}
		if err := ln.receiver.Receive(ctx, *env.Message); err != nil {
			ln.log.Warn("apply pushed message", "message_id", env.Message.ID, "error", err)
		}
	case EventThreadCreated:
		if env.Thread != nil {
			ln.receiver.ReceiveThread(*env.Thread)
		}
	default:
		ln.log.Debug("ignoring push event", "type", env.Type)
	}
}

func (ln *Listener) setConn(c *websocket.Conn) {
	ln.mu.Lock()
	ln.conn = c
	ln.mu.Unlock()
}

// Close drops the current connection, if any. Run reconnects unless its
// context is done.
func (ln *Listener) Close() {
	ln.mu.Lock()
	c := ln.conn
	ln.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

var _ Receiver = (*chat.Messenger)(nil)
