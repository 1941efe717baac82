// Package tui renders a notes session in the terminal with bubbletea. The
// model never mutates the note list itself: every action goes through the
// view-model, and the screen is redrawn from a fresh snapshot whenever the
// view-model reports a change.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/viewmodel"
)

const defaultOpTimeout = 15 * time.Second

type focusArea int

const (
	focusInput focusArea = iota
	focusList
)

// changedMsg reports that the view-model state changed.
type changedMsg struct{}

// opDoneMsg reports that a backend operation finished. Failures are already
// reflected in the view-model's notice.
type opDoneMsg struct {
	op  string
	err error
}

// Option configures a Model.
type Option func(*Model)

// WithOpTimeout bounds each backend operation started from the UI.
func WithOpTimeout(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Model is the bubbletea model of the notes screen.
type Model struct {
	vm      *viewmodel.ViewModel
	user    string
	timeout time.Duration

	input textinput.Model
	help  help.Model
	keys  keyMap

	state  viewmodel.State
	cursor int
	focus  focusArea
	width  int
}

// New creates the screen for an already constructed view-model. user is
// shown in the greeting.
func New(vm *viewmodel.ViewModel, user string, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Note"
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Width = 48
	ti.Focus()

	m := Model{
		vm:      vm,
		user:    user,
		timeout: defaultOpTimeout,
		input:   ti,
		help:    help.New(),
		keys:    defaultKeyMap(),
		state:   vm.Snapshot(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init loads the note list and starts listening for changes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.initialize(), waitForChange(m.vm))
}

func waitForChange(vm *viewmodel.ViewModel) tea.Cmd {
	return func() tea.Msg {
		<-vm.Changes()
		return changedMsg{}
	}
}

func (m Model) run(op string, fn func(context.Context) error) tea.Cmd {
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) initialize() tea.Cmd {
	return m.run("initialize", m.vm.Initialize)
}

func (m Model) submit() tea.Cmd {
	return m.run("submit", m.vm.Submit)
}

func (m Model) remove(id string) tea.Cmd {
	return m.run("remove", func(ctx context.Context) error {
		return m.vm.Remove(ctx, id)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case changedMsg:
		m.refresh()
		return m, waitForChange(m.vm)

	case opDoneMsg:
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateInput(msg)
}

// refresh takes a new snapshot and brings the widgets in line with it.
func (m *Model) refresh() {
	m.state = m.vm.Snapshot()
	if m.input.Value() != m.state.DraftText {
		m.input.SetValue(m.state.DraftText)
		m.input.CursorEnd()
	}
	if m.cursor >= len(m.state.Notes) {
		m.cursor = len(m.state.Notes) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Reload):
		return m, m.initialize()

	case key.Matches(msg, m.keys.Dismiss):
		if m.state.Notice != "" {
			m.vm.DismissNotice()
		} else if m.state.Editing() {
			m.vm.CancelEdit()
		}
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Focus):
		m.toggleFocus()
		return m, nil
	}

	if m.focus == focusInput {
		if key.Matches(msg, m.keys.Submit) {
			return m, m.submit()
		}
		return m.updateInput(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.state.Notes)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Edit):
		if note, ok := m.selected(); ok {
			m.vm.StartEdit(note)
			m.refresh()
			m.toggleFocus()
		}
	case key.Matches(msg, m.keys.Delete):
		if note, ok := m.selected(); ok {
			return m, m.remove(note.ID)
		}
	}
	return m, nil
}

func (m Model) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.vm.OnDraftChange(after)
		m.state.DraftText = after
	}
	return m, cmd
}

func (m *Model) toggleFocus() {
	if m.focus == focusInput {
		m.focus = focusList
		m.input.Blur()
		return
	}
	m.focus = focusInput
	m.input.Focus()
}

func (m Model) selected() (note models.Note, ok bool) {
	if m.cursor < 0 || m.cursor >= len(m.state.Notes) {
		return note, false
	}
	return m.state.Notes[m.cursor], true
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	status := offlineStyle.Render("○ offline")
	if m.state.Live {
		status = liveStyle.Render("● live")
	}
	b.WriteString(titleStyle.Render("Notes") + "  " + status + "\n")
	b.WriteString(greetingStyle.Render(fmt.Sprintf("Hello, %s", m.user)) + "\n\n")

	if m.state.Notice != "" {
		b.WriteString(noticeStyle.Render(m.state.Notice+"  (esc to dismiss)") + "\n\n")
	}

	label := "Add"
	if m.state.Editing() {
		label = "Update"
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, m.input.View(), buttonStyle.Render(label)) + "\n\n")

	if len(m.state.Notes) == 0 {
		b.WriteString(emptyStyle.Render("No notes yet.") + "\n")
	}
	for i, n := range m.state.Notes {
		text := n.Note
		if text == "" {
			text = "(empty)"
		}
		if n.ID == m.state.EditingID {
			text += editingStyle.Render("  (editing)")
		}
		if m.focus == focusList && i == m.cursor {
			b.WriteString(selectedStyle.Render("▸ "+text) + "\n")
			continue
		}
		b.WriteString(rowStyle.Render(text) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}
