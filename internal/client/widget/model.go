// Package widget is the terminal chat widget: a bubbletea model that drives
// the messaging core and renders its state.
package widget

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/memberchat/internal/client/api"
	"github.com/cloudzz-dev/memberchat/internal/client/chat"
	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
)

type viewState int

const (
	viewAuth viewState = iota
	viewThreads
	viewChat
	viewDirect
	viewGroup
)

const noticeTTL = 4 * time.Second

// Authenticator signs a user in against the chat server.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (api.AuthResponse, error)
	Register(ctx context.Context, username, password, displayName string) (api.AuthResponse, error)
}

// Connector turns a successful sign-in into a running messenger.
type Connector func(ctx context.Context, auth api.AuthResponse) (*chat.Messenger, error)

type Config struct {
	Auth    Authenticator
	Connect Connector
	Log     *logger.Logger
	// Messenger resumes a saved session and skips the login view.
	Messenger *chat.Messenger
}

type Model struct {
	ctx    context.Context
	cfg    Config
	log    *logger.Logger
	chat   *chat.Messenger
	events chan chat.Event

	// Auth
	authAction    string
	usernameInput textinput.Model
	passwordInput textinput.Model
	authFocused   int
	authBusy      bool

	// Thread list
	cursor int

	// Chat
	current      string
	messageInput textinput.Model
	chatViewport viewport.Model
	shown        int
	upload       chat.Phase

	// Direct search and group creation
	searchInput  textinput.Model
	titleInput   textinput.Model
	groupFocus   int
	results      []chat.User
	resultCursor int
	members      []chat.User

	notice    string
	noticeSeq int
	status    string

	view   viewState
	width  int
	height int
}

func New(ctx context.Context, cfg Config) Model {
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}

	usernameInput := textinput.New()
	usernameInput.Placeholder = "Username"
	usernameInput.Focus()
	usernameInput.CharLimit = 32
	usernameInput.Width = 30

	passwordInput := textinput.New()
	passwordInput.Placeholder = "Password"
	passwordInput.EchoMode = textinput.EchoPassword
	passwordInput.CharLimit = 64
	passwordInput.Width = 30

	messageInput := textinput.New()
	messageInput.Placeholder = "Type a message, or /attach <path>"
	messageInput.CharLimit = 2000
	messageInput.Width = 50

	searchInput := textinput.New()
	searchInput.Placeholder = "Search people..."
	searchInput.CharLimit = 64
	searchInput.Width = 30

	titleInput := textinput.New()
	titleInput.Placeholder = "Group name"
	titleInput.CharLimit = 80
	titleInput.Width = 30

	m := Model{
		ctx:           ctx,
		cfg:           cfg,
		log:           cfg.Log.With("component", "widget"),
		authAction:    "login",
		usernameInput: usernameInput,
		passwordInput: passwordInput,
		messageInput:  messageInput,
		searchInput:   searchInput,
		titleInput:    titleInput,
		chatViewport:  viewport.New(80, 20),
		view:          viewAuth,
	}
	if cfg.Messenger != nil {
		m.attach(cfg.Messenger)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.chat != nil {
		return tea.Batch(textinput.Blink, waitForEvent(m.events), m.refresh())
	}
	return textinput.Blink
}

// StatusMsg carries push connection state from outside the program.
type StatusMsg struct{ Text string }

type authResultMsg struct {
	messenger *chat.Messenger
	err       error
}

type changedMsg chat.Event

type refreshedMsg struct{ err error }

type selectedMsg struct {
	threadID string
	err      error
}

type sentMsg struct{ err error }

type uploadedMsg struct {
	threadID string
	result   chat.UploadResult
}

type searchTickMsg struct{ token uint64 }

type searchResultMsg struct {
	token uint64
	users []chat.User
	err   error
}

type openedMsg struct {
	thread chat.Thread
	err    error
}

type noticeExpiredMsg struct{ seq int }

func (m *Model) attach(ms *chat.Messenger) {
	m.chat = ms
	events := make(chan chat.Event, 64)
	m.events = events
	ms.Subscribe(func(ev chat.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	m.view = viewThreads
	m.usernameInput.Blur()
	m.passwordInput.Blur()
}

func waitForEvent(ch <-chan chat.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return changedMsg(ev)
	}
}

func (m *Model) setNotice(text string) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	seq := m.noticeSeq
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeExpiredMsg{seq: seq} })
}

func (m *Model) fail(err error) tea.Cmd {
	if err == nil {
		return nil
	}
	notice := chat.Notice(err)
	if notice == "" {
		return nil
	}
	m.log.Debug("notice", "error", err)
	return m.setNotice(notice)
}
