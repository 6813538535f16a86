package widget

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/memberchat/internal/client/api"
	"github.com/cloudzz-dev/memberchat/internal/client/chat"
)

func (m *Model) authenticate(action, username, password string) tea.Cmd {
	ctx, cfg := m.ctx, m.cfg
	return func() tea.Msg {
		var (
			resp api.AuthResponse
			err  error
		)
		if action == "register" {
			resp, err = cfg.Auth.Register(ctx, username, password, username)
		} else {
			resp, err = cfg.Auth.Login(ctx, username, password)
		}
		if err != nil {
			return authResultMsg{err: err}
		}
		ms, err := cfg.Connect(ctx, resp)
		return authResultMsg{messenger: ms, err: err}
	}
}

func (m *Model) refresh() tea.Cmd {
	ctx, threads := m.ctx, m.chat.Threads
	return func() tea.Msg {
		return refreshedMsg{err: threads.Refresh(ctx)}
	}
}

func (m *Model) selectThread(threadID string) tea.Cmd {
	ctx, threads := m.ctx, m.chat.Threads
	return func() tea.Msg {
		_, err := threads.Select(ctx, threadID)
		return selectedMsg{threadID: threadID, err: err}
	}
}

func (m *Model) send(threadID, text string) tea.Cmd {
	ctx, composer := m.ctx, m.chat.Composer
	return func() tea.Msg {
		_, err := composer.Send(ctx, threadID, text, chat.MessageText, "")
		return sentMsg{err: err}
	}
}

func (m *Model) retry(localID string) tea.Cmd {
	ctx, composer := m.ctx, m.chat.Composer
	return func() tea.Msg {
		_, err := composer.Retry(ctx, localID)
		return sentMsg{err: err}
	}
}

func (m *Model) attachFile(threadID, path string) tea.Cmd {
	ctx, pipeline := m.ctx, m.chat.Attachments
	return func() tea.Msg {
		f, err := chat.OpenFile(path)
		if err != nil {
			return uploadedMsg{threadID: threadID, result: chat.UploadResult{FailedPhase: chat.PhaseValidating, Err: err}}
		}
		return uploadedMsg{threadID: threadID, result: pipeline.Upload(ctx, threadID, f)}
	}
}

func (m *Model) search(token uint64) tea.Cmd {
	ctx, dir := m.ctx, m.chat.Directory
	query := m.searchInput.Value()
	var exclude []string
	if m.view == viewGroup {
		exclude = m.memberIDs()
	}
	return func() tea.Msg {
		users, err := dir.Search(ctx, query, exclude)
		return searchResultMsg{token: token, users: users, err: err}
	}
}

func (m *Model) startDirect(u chat.User) tea.Cmd {
	ctx, threads := m.ctx, m.chat.Threads
	return func() tea.Msg {
		t, err := threads.StartDirect(ctx, u)
		return openedMsg{thread: t, err: err}
	}
}

func (m *Model) newGroup(title string, memberIDs []string) tea.Cmd {
	ctx, threads := m.ctx, m.chat.Threads
	return func() tea.Msg {
		t, err := threads.CreateGroup(ctx, title, memberIDs)
		return openedMsg{thread: t, err: err}
	}
}

func debounce(d time.Duration, token uint64) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return searchTickMsg{token: token} })
}
