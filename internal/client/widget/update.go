package widget

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/memberchat/internal/client/chat"
)

const attachCommand = "/attach "

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.view {
		case viewAuth:
			cmd = m.updateAuth(msg)
		case viewThreads:
			cmd = m.updateThreads(msg)
		case viewChat:
			cmd = m.updateChat(msg)
		case viewDirect:
			cmd = m.updateDirect(msg)
		case viewGroup:
			cmd = m.updateGroup(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chatViewport.Width = msg.Width - 4
		m.chatViewport.Height = msg.Height - 9
		m.messageInput.Width = msg.Width - 6
		m.shown = -1

	case StatusMsg:
		m.status = msg.Text

	case authResultMsg:
		m.authBusy = false
		if msg.err != nil {
			cmd = m.setNotice(authNotice(msg.err))
			break
		}
		m.attach(msg.messenger)
		cmd = tea.Batch(waitForEvent(m.events), m.refresh())

	case changedMsg:
		if msg.Kind == chat.EventUpload && msg.ThreadID == m.current {
			m.upload = msg.Phase
		}
		m.clampCursor()
		cmd = waitForEvent(m.events)

	case refreshedMsg:
		m.clampCursor()
		cmd = m.fail(msg.err)

	case selectedMsg:
		if msg.threadID == m.current {
			cmd = m.fail(msg.err)
		}

	case sentMsg:
		cmd = m.fail(msg.err)

	case uploadedMsg:
		if msg.threadID == m.current {
			m.upload = ""
		}
		cmd = m.fail(msg.result.Err)

	case searchTickMsg:
		if m.chat != nil && m.chat.Directory.Settled(msg.token) {
			cmd = m.search(msg.token)
		}

	case searchResultMsg:
		if m.chat == nil || !m.chat.Directory.Settled(msg.token) {
			break
		}
		if msg.err != nil {
			cmd = m.fail(msg.err)
			break
		}
		m.results = msg.users
		m.resultCursor = 0

	case openedMsg:
		if msg.err != nil {
			cmd = m.fail(msg.err)
			break
		}
		cmd = m.open(msg.thread.ID)

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}

	default:
		if m.view == viewChat {
			m.chatViewport, cmd = m.chatViewport.Update(msg)
		}
	}

	if m.view == viewChat {
		m.syncViewport()
	}
	return m, cmd
}

func (m *Model) updateAuth(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab", "shift+tab":
		if m.authFocused == 0 {
			m.authFocused = 1
			m.usernameInput.Blur()
			return m.passwordInput.Focus()
		}
		m.authFocused = 0
		m.passwordInput.Blur()
		return m.usernameInput.Focus()

	case "ctrl+r":
		if m.authAction == "login" {
			m.authAction = "register"
		} else {
			m.authAction = "login"
		}
		return nil

	case "enter":
		username := strings.TrimSpace(m.usernameInput.Value())
		password := m.passwordInput.Value()
		if username == "" || password == "" || m.authBusy {
			return nil
		}
		m.authBusy = true
		return m.authenticate(m.authAction, username, password)
	}

	var cmd tea.Cmd
	if m.authFocused == 0 {
		m.usernameInput, cmd = m.usernameInput.Update(msg)
	} else {
		m.passwordInput, cmd = m.passwordInput.Update(msg)
	}
	return cmd
}

func (m *Model) updateThreads(msg tea.KeyMsg) tea.Cmd {
	threads := m.chat.Threads.List()
	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(threads)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(threads) {
			return m.open(threads[m.cursor].ID)
		}
	case "n":
		return m.enterSearch(viewDirect)
	case "g":
		return m.enterSearch(viewGroup)
	case "r":
		return m.refresh()
	}
	return nil
}

func (m *Model) updateChat(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.leaveChat()
		return nil
	case "enter":
		return m.submit()
	case "ctrl+r":
		return m.retryLast()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.chatViewport, cmd = m.chatViewport.Update(msg)
		return cmd
	}
	var cmd tea.Cmd
	m.messageInput, cmd = m.messageInput.Update(msg)
	return cmd
}

func (m *Model) updateDirect(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.leaveSearch()
		return nil
	case "up":
		if m.resultCursor > 0 {
			m.resultCursor--
		}
		return nil
	case "down":
		if m.resultCursor < len(m.results)-1 {
			m.resultCursor++
		}
		return nil
	case "enter":
		if m.resultCursor < len(m.results) {
			return m.startDirect(m.results[m.resultCursor])
		}
		return nil
	}
	return m.typeQuery(msg)
}

func (m *Model) updateGroup(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.leaveSearch()
		return nil
	case "tab", "shift+tab":
		if m.groupFocus == 0 {
			m.groupFocus = 1
			m.titleInput.Blur()
			return m.searchInput.Focus()
		}
		m.groupFocus = 0
		m.searchInput.Blur()
		return m.titleInput.Focus()
	case "ctrl+s":
		return m.createGroup()
	}

	if m.groupFocus == 0 {
		var cmd tea.Cmd
		m.titleInput, cmd = m.titleInput.Update(msg)
		return cmd
	}

	switch msg.String() {
	case "up":
		if m.resultCursor > 0 {
			m.resultCursor--
		}
		return nil
	case "down":
		if m.resultCursor < len(m.results)-1 {
			m.resultCursor++
		}
		return nil
	case "enter":
		if m.resultCursor < len(m.results) {
			m.members = append(m.members, m.results[m.resultCursor])
			m.results = nil
			m.resultCursor = 0
			m.searchInput.Reset()
			m.chat.Directory.Touch()
		}
		return nil
	case "backspace":
		if m.searchInput.Value() == "" && len(m.members) > 0 {
			m.members = m.members[:len(m.members)-1]
			return nil
		}
	}
	return m.typeQuery(msg)
}

// typeQuery feeds a key to the search box and schedules a debounced search
// when the query changed.
func (m *Model) typeQuery(msg tea.KeyMsg) tea.Cmd {
	before := m.searchInput.Value()
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	if m.searchInput.Value() == before {
		return cmd
	}
	token := m.chat.Directory.Touch()
	return tea.Batch(cmd, debounce(m.chat.Directory.Delay(), token))
}

func (m *Model) enterSearch(v viewState) tea.Cmd {
	m.view = v
	m.results = nil
	m.resultCursor = 0
	m.members = nil
	m.searchInput.Reset()
	m.titleInput.Reset()
	m.chat.Directory.Touch()
	if v == viewGroup {
		m.groupFocus = 0
		m.searchInput.Blur()
		return m.titleInput.Focus()
	}
	return m.searchInput.Focus()
}

func (m *Model) leaveSearch() {
	m.view = viewThreads
	m.searchInput.Blur()
	m.titleInput.Blur()
	m.results = nil
	m.chat.Directory.Touch()
}

func (m *Model) open(threadID string) tea.Cmd {
	m.view = viewChat
	m.current = threadID
	m.upload = ""
	m.shown = -1
	m.messageInput.Reset()
	m.searchInput.Blur()
	m.titleInput.Blur()
	return tea.Batch(m.messageInput.Focus(), m.selectThread(threadID))
}

func (m *Model) leaveChat() {
	m.chat.Threads.ClearSelection()
	m.view = viewThreads
	m.current = ""
	m.upload = ""
	m.messageInput.Blur()
	m.clampCursor()
}

// submit clears the input before anything else so the composer is ready
// for the next message whatever the outcome.
func (m *Model) submit() tea.Cmd {
	text := m.messageInput.Value()
	m.messageInput.Reset()

	trimmed := strings.TrimSpace(text)
	if trimmed == strings.TrimSpace(attachCommand) || strings.HasPrefix(trimmed, attachCommand) {
		path := strings.TrimSpace(strings.TrimPrefix(trimmed, strings.TrimSpace(attachCommand)))
		if path == "" {
			return m.setNotice("Usage: /attach <path>")
		}
		return m.attachFile(m.current, path)
	}
	return m.send(m.current, text)
}

func (m *Model) retryLast() tea.Cmd {
	msgs := m.chat.Messages.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Failed() {
			return m.retry(msgs[i].LocalID)
		}
	}
	return m.setNotice("Nothing to retry.")
}

func (m *Model) createGroup() tea.Cmd {
	return m.newGroup(m.titleInput.Value(), m.memberIDs())
}

func (m *Model) clampCursor() {
	if m.chat == nil {
		return
	}
	n := len(m.chat.Threads.List())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) memberIDs() []string {
	ids := make([]string, 0, len(m.members))
	for _, u := range m.members {
		ids = append(ids, u.ID)
	}
	return ids
}

func authNotice(err error) string {
	var e *chat.Error
	if errors.As(err, &e) && e.Kind == chat.KindAuthorization {
		if e.Msg != "" && e.Msg != "Unauthorized" {
			return e.Msg
		}
		return "Invalid username or password."
	}
	return chat.Notice(err)
}
