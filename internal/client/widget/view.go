package widget

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/cloudzz-dev/memberchat/internal/client/chat"
)

func (m Model) View() string {
	var body string
	switch m.view {
	case viewAuth:
		body = m.authView()
	case viewThreads:
		body = m.threadsView()
	case viewChat:
		body = m.chatView()
	case viewDirect:
		body = m.directView()
	case viewGroup:
		body = m.groupView()
	}
	return body + m.footer()
}

func (m Model) footer() string {
	var s strings.Builder
	if m.notice != "" {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render("  " + m.notice))
	}
	if m.status != "" && m.view != viewAuth {
		s.WriteString("\n")
		s.WriteString(statusStyle.Render("  " + m.status))
	}
	return s.String()
}

func (m Model) authView() string {
	var s strings.Builder

	s.WriteString("\n\n")
	s.WriteString(titleStyle.Render("MEMBERCHAT"))
	s.WriteString("\n\n")

	if m.authAction == "login" {
		s.WriteString(selectedStyle.Render("  → Login"))
		s.WriteString(mutedStyle.Render("   Register\n"))
	} else {
		s.WriteString(mutedStyle.Render("  Login   "))
		s.WriteString(selectedStyle.Render("→ Register\n"))
	}
	s.WriteString(helpStyle.Render("  (Ctrl+R to switch)\n\n"))

	s.WriteString("  Username:\n")
	s.WriteString("  " + m.usernameInput.View() + "\n\n")
	s.WriteString("  Password:\n")
	s.WriteString("  " + m.passwordInput.View() + "\n\n")

	if m.authBusy {
		s.WriteString(mutedStyle.Render("  Signing in...\n\n"))
	}
	s.WriteString(helpStyle.Render("  Tab to switch fields • Enter to submit • Ctrl+C to quit"))
	return s.String()
}

func (m Model) threadsView() string {
	var s strings.Builder
	self := m.chat.Self()

	header := titleStyle.Render("MEMBERCHAT - " + self.DisplayName)
	if total := m.chat.TotalUnread(); total > 0 {
		header += " " + badgeStyle.Render(fmt.Sprint(total))
	}
	s.WriteString(header)
	s.WriteString("\n\n")

	threads := m.chat.Threads.List()
	if len(threads) == 0 {
		s.WriteString(mutedStyle.Render("  No conversations yet.\n"))
		s.WriteString(mutedStyle.Render("  Press 'n' to message someone or 'g' to start a group.\n"))
	}
	for i, t := range threads {
		prefix := "  "
		style := lipgloss.NewStyle()
		if i == m.cursor {
			prefix = "→ "
			style = selectedStyle
		}
		icon := "💬"
		if t.Type == chat.ThreadGroup {
			icon = "👥"
		}
		line := fmt.Sprintf("%s%s %s", prefix, icon, t.Name(self.ID))
		if n := m.chat.Threads.Unread(t.ID); n > 0 {
			line += fmt.Sprintf(" (%d)", n)
		}
		s.WriteString(style.Render(line))
		if t.LastMessage != nil {
			s.WriteString(mutedStyle.Render("  " + preview(t.LastMessage.Content, 40)))
		}
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  ↑/↓ navigate • Enter to open • n direct • g group • r refresh • q to quit"))
	return s.String()
}

func (m Model) chatView() string {
	var s strings.Builder

	name := "Conversation"
	if t, ok := m.chat.Threads.Get(m.current); ok {
		name = t.Name(m.chat.Self().ID)
	}
	width := m.width - 2
	if width < 10 {
		width = 10
	}

	s.WriteString(titleStyle.Render(name))
	s.WriteString("\n")
	s.WriteString(strings.Repeat("─", width))
	s.WriteString("\n")
	s.WriteString(m.chatViewport.View())
	s.WriteString("\n")
	s.WriteString(strings.Repeat("─", width))
	s.WriteString("\n")
	if m.upload != "" {
		s.WriteString(statusStyle.Render("Uploading attachment: " + string(m.upload)))
		s.WriteString("\n")
	}
	s.WriteString(m.messageInput.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("Enter to send • /attach <path> • Ctrl+R retry failed • Esc to go back"))
	return s.String()
}

func (m Model) directView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("New Message"))
	s.WriteString("\n\n")
	s.WriteString("  To:\n")
	s.WriteString("  " + m.searchInput.View() + "\n\n")
	s.WriteString(m.resultsView())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  Type at least 2 characters • ↑/↓ choose • Enter to open • Esc to cancel"))
	return s.String()
}

func (m Model) groupView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("New Group"))
	s.WriteString("\n\n")
	s.WriteString("  Name:\n")
	s.WriteString("  " + m.titleInput.View() + "\n\n")
	s.WriteString("  Add people:\n")
	s.WriteString("  " + m.searchInput.View() + "\n\n")

	if len(m.members) > 0 {
		s.WriteString("  Members:\n")
		for _, u := range m.members {
			s.WriteString(fmt.Sprintf("    • %s\n", u.DisplayName))
		}
		s.WriteString("\n")
	}
	s.WriteString(m.resultsView())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  Tab to switch fields • Enter to add • Ctrl+S to create • Esc to cancel"))
	return s.String()
}

func (m Model) resultsView() string {
	if len(m.results) == 0 {
		if len([]rune(strings.TrimSpace(m.searchInput.Value()))) >= chat.MinQueryLength {
			return mutedStyle.Render("  No matches.\n")
		}
		return ""
	}
	var s strings.Builder
	for i, u := range m.results {
		prefix := "  "
		style := lipgloss.NewStyle()
		if i == m.resultCursor {
			prefix = "→ "
			style = selectedStyle
		}
		s.WriteString(style.Render(prefix+u.DisplayName) + "\n")
	}
	return s.String()
}

// syncViewport re-renders the message list and follows the tail when the
// number of messages changed.
func (m *Model) syncViewport() {
	msgs := m.chat.Messages.Messages()
	if m.chat.Messages.ThreadID() != m.current {
		msgs = nil
	}
	m.chatViewport.SetContent(m.renderMessages(msgs))
	if len(msgs) != m.shown {
		m.shown = len(msgs)
		m.chatViewport.GotoBottom()
	}
}

func (m Model) renderMessages(msgs []chat.Message) string {
	if len(msgs) == 0 {
		return mutedStyle.Render("No messages yet. Say hi!")
	}
	self := m.chat.Self().ID
	t, _ := m.chat.Threads.Get(m.current)

	var content strings.Builder
	for _, msg := range msgs {
		style := otherMessageStyle
		if msg.SenderID == self {
			style = ownMessageStyle
		}
		body := msg.Content
		if msg.MessageType.IsMedia() {
			body = fmt.Sprintf("[%s] %s", msg.MessageType, msg.Content)
		}
		line := fmt.Sprintf("%s %s: %s",
			mutedStyle.Render(msg.CreatedAt.Local().Format("15:04")),
			style.Render(senderName(t, msg.SenderID, self)),
			body,
		)
		switch {
		case msg.Pending():
			line += " " + pendingStyle.Render("sending…")
		case msg.Failed():
			line += " " + failedStyle.Render("failed to send")
		}
		content.WriteString(line + "\n")
	}
	return content.String()
}

func senderName(t chat.Thread, id, self string) string {
	if id == self {
		return "You"
	}
	for _, u := range t.Participants {
		if u.ID == id && u.DisplayName != "" {
			return u.DisplayName
		}
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
