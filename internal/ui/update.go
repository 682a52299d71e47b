package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"partychat/internal/chat"
)

// coreUpdateMsg wraps an orchestrator notification.
type coreUpdateMsg struct {
	update chat.Update
}

// sendDoneMsg reports the outcome of a send command. The timeline itself is
// refreshed through the update stream; this only feeds the status line.
type sendDoneMsg struct {
	err error
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(m.timelineWidth(), m.timelineHeight())
			m.ready = true
		} else {
			m.viewport.Width = m.timelineWidth()
			m.viewport.Height = m.timelineHeight()
		}
		m.refreshTimeline()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case coreUpdateMsg:
		switch msg.update.Kind {
		case chat.TimelineUpdated:
			if msg.update.ConversationID == m.orch.Active() {
				m.refreshTimeline()
			}
		case chat.HistoryFailed:
			m.status = "could not load history, select again to retry"
		case chat.SendFailed:
			m.status = "send failed, message kept as failed"
		}
		return m, waitForUpdate(m.orch.Updates())

	case sendDoneMsg:
		if msg.err == nil {
			m.status = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "tab":
		if m.focus == focusConversations {
			m.focus = focusInput
			m.input.Focus()
		} else {
			m.focus = focusConversations
			m.input.Blur()
		}
		return m, nil
	}

	if m.focus == focusConversations {
		return m.handleConversationKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m Model) handleConversationKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	convs := m.orch.Conversations()
	switch msg.String() {
	case "up", "k":
		if m.convCursor > 0 {
			m.convCursor--
		}
	case "down", "j":
		if m.convCursor < len(convs)-1 {
			m.convCursor++
		}
	case "enter":
		if m.convCursor < len(convs) {
			m.orch.Select(m.ctx, convs[m.convCursor].ID)
			m.focus = focusInput
			m.input.Focus()
			m.refreshTimeline()
		}
	case "r":
		ctx := m.ctx
		orch := m.orch
		return m, func() tea.Msg {
			orch.Refresh(ctx)
			return nil
		}
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "enter" {
		content := m.input.Value()
		active := m.orch.Active()
		if content == "" || active == "" {
			return m, nil
		}
		m.input.Reset()

		ctx := m.ctx
		orch := m.orch
		return m, func() tea.Msg {
			_, err := orch.Send(ctx, active, content, nil)
			return sendDoneMsg{err: err}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refreshTimeline() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTimeline())
	m.viewport.GotoBottom()
}
