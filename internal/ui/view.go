package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"partychat/internal/chat"
	"partychat/internal/model"
)

const sidebarWidth = 28

var (
	sidebarStyle = lipgloss.NewStyle().
			Width(sidebarWidth).
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true)

	selectedConvStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	unreadBadgeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	previewStyle      = lipgloss.NewStyle().Faint(true)

	ownMsgStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	partnerMsgStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	metaStyle       = lipgloss.NewStyle().Faint(true)
	failedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	statusStyle = lipgloss.NewStyle().Faint(true)
)

func (m Model) timelineWidth() int {
	w := m.width - sidebarWidth - 2
	if w < 20 {
		w = 20
	}
	return w
}

func (m Model) timelineHeight() int {
	h := m.height - 4 // input + status + borders
	if h < 5 {
		h = 5
	}
	return h
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	sidebar := m.renderSidebar()
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.renderInput(),
		m.renderStatus(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebarStyle.Render(sidebar), main)
}

func (m Model) renderSidebar() string {
	convs := m.orch.Conversations()
	if len(convs) == 0 {
		return "No conversations yet.\nPress r to refresh."
	}

	var b strings.Builder
	b.WriteString("Conversations\n\n")
	for i, conv := range convs {
		line := conv.Partner(m.orch.Self())
		if conv.UnreadCount > 0 {
			line += " " + unreadBadgeStyle.Render(fmt.Sprintf("(%d)", conv.UnreadCount))
		}
		if i == m.convCursor {
			line = selectedConvStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
		if conv.LastMessagePreview != "" {
			b.WriteString(previewStyle.Render("  "+truncate(conv.LastMessagePreview, sidebarWidth-4)) + "\n")
		}
	}
	return b.String()
}

func (m Model) renderTimeline() string {
	active := m.orch.Active()
	if active == "" {
		return "Select a conversation to start chatting."
	}

	msgs := m.orch.Timeline(active)
	if len(msgs) == 0 {
		if m.orch.State() == chat.StateLoading {
			return m.spinner.View() + " loading history..."
		}
		return "No messages yet. Say hi!"
	}

	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg model.Message) string {
	style := partnerMsgStyle
	who := msg.SenderID
	if msg.SenderID == m.orch.Self() {
		style = ownMsgStyle
		who = "you"
	}

	body := msg.Content
	switch msg.Type {
	case model.TypeImage:
		body = fmt.Sprintf("[image: %s]", msg.FileName)
	case model.TypeFile:
		body = fmt.Sprintf("[file: %s, %d bytes]", msg.FileName, msg.FileSize)
	}

	meta := msg.CreatedAt.Format("15:04")
	switch msg.Status {
	case model.StatusSending:
		meta += " · sending"
	case model.StatusFailed:
		return failedStyle.Render(fmt.Sprintf("%s %s · failed", who, body))
	case model.StatusRead:
		meta += " · read"
	}

	return style.Render(who+": "+body) + " " + metaStyle.Render(meta)
}

func (m Model) renderInput() string {
	return m.input.View()
}

func (m Model) renderStatus() string {
	if m.status != "" {
		return statusStyle.Render(m.status)
	}
	if m.orch.State() == chat.StateLoading {
		return statusStyle.Render(m.spinner.View() + " loading...")
	}
	return statusStyle.Render("tab: switch focus · enter: select/send · esc: quit")
}

func truncate(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
