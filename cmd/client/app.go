package main

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/memberchat/internal/client/api"
	"github.com/cloudzz-dev/memberchat/internal/client/chat"
	"github.com/cloudzz-dev/memberchat/internal/client/push"
	"github.com/cloudzz-dev/memberchat/internal/client/session"
	"github.com/cloudzz-dev/memberchat/internal/client/widget"
	"github.com/cloudzz-dev/memberchat/internal/config"
	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
)

// app owns the pieces that outlive a single sign-in: the REST client, the
// push listener and the program used to report connection state.
type app struct {
	cfg      config.ClientConfig
	log      *logger.Logger
	client   *api.Client
	sessions *session.Store
	ctx      context.Context

	mu       sync.Mutex
	program  *tea.Program
	pending  *chat.Messenger
	stopPush context.CancelFunc
}

// resume reuses a saved session when the server still accepts its token.
func (a *app) resume(ctx context.Context) *chat.Messenger {
	if a.sessions == nil {
		return nil
	}
	s := a.sessions.Load()
	if !s.Valid(a.cfg.ServerURL) {
		return nil
	}
	a.client.SetToken(s.Token)
	me, err := a.client.Me(ctx)
	if err != nil {
		a.log.Info("saved session rejected", "error", err)
		a.client.SetToken("")
		if chat.KindOf(err) == chat.KindAuthorization {
			_ = a.sessions.Clear()
		}
		return nil
	}
	return a.start(me)
}

// connect is called by the widget after a successful login or register.
func (a *app) connect(ctx context.Context, auth api.AuthResponse) (*chat.Messenger, error) {
	a.client.SetToken(auth.Token)
	if a.sessions != nil {
		if err := a.sessions.Save(sessionFor(a.cfg.ServerURL, auth)); err != nil {
			a.log.Warn("could not save session", "error", err)
		}
	}
	return a.start(auth.User), nil
}

// sessionFor builds the record persisted after sign-in. Username is the
// login handle the server echoed back, never the display name.
func sessionFor(serverURL string, auth api.AuthResponse) session.Session {
	return session.Session{
		ServerURL:   serverURL,
		Username:    auth.User.Username,
		UserID:      auth.User.ID,
		DisplayName: auth.User.DisplayName,
		Token:       auth.Token,
	}
}

func (a *app) start(self chat.User) *chat.Messenger {
	ms := chat.New(a.client, self,
		chat.WithLogger(a.log),
		chat.WithSearchDebounce(a.cfg.SearchDebounce),
	)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.program == nil {
		a.pending = ms
		return ms
	}
	a.listen(ms)
	return ms
}

// setProgram starts the push listener for a resumed session once there is
// a program to report connection state to.
func (a *app) setProgram(p *tea.Program) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.program = p
	if a.pending != nil {
		a.listen(a.pending)
		a.pending = nil
	}
}

func (a *app) listen(ms *chat.Messenger) {
	if a.stopPush != nil {
		a.stopPush()
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.stopPush = cancel

	p := a.program
	ln, err := push.New(a.cfg.ServerURL, a.client.Token, ms,
		push.WithLogger(a.log),
		push.WithStatus(func(s push.Status, err error) {
			text := ""
			if s != push.Connected {
				text = "Live updates " + s.String()
			}
			if err != nil && chat.KindOf(err) == chat.KindAuthorization {
				text = "Live updates stopped: sign in again"
			}
			p.Send(widget.StatusMsg{Text: text})
		}),
	)
	if err != nil {
		a.log.Error("push disabled", "error", err)
		cancel()
		return
	}
	go ln.Run(ctx)
}
