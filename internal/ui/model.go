// Package ui is the terminal front-end: a conversation list with unread
// badges, the timeline of the active conversation and a message input,
// driven entirely by the orchestrator's state.
package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"partychat/internal/chat"
)

type focusArea int

const (
	focusConversations focusArea = iota
	focusInput
)

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	orch *chat.Orchestrator
	ctx  context.Context

	width  int
	height int
	ready  bool

	focus      focusArea
	convCursor int

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	status string
}

func NewModel(ctx context.Context, orch *chat.Orchestrator) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		orch:    orch,
		ctx:     ctx,
		focus:   focusConversations,
		input:   input,
		spinner: sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.orch.Updates()))
}

// waitForUpdate blocks on the orchestrator's notification stream and feeds it
// into the update loop.
func waitForUpdate(ch <-chan chat.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return nil
		}
		return coreUpdateMsg{update: u}
	}
}
