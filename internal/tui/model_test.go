package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/backend"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/viewmodel"
)

type stubAPI struct {
	mu    sync.Mutex
	notes []models.Note
	next  int
	fail  error
}

func (s *stubAPI) ListNotes(context.Context) ([]models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Note(nil), s.notes...), nil
}

func (s *stubAPI) CreateNote(_ context.Context, text string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return models.Note{}, s.fail
	}
	s.next++
	n := models.Note{ID: fmt.Sprintf("n%d", s.next), Note: text}
	s.notes = append([]models.Note{n}, s.notes...)
	return n, nil
}

func (s *stubAPI) UpdateNote(_ context.Context, n models.Note) (models.Note, error) {
	return n, nil
}

func (s *stubAPI) DeleteNote(_ context.Context, id string) (string, error) {
	return id, nil
}

func (s *stubAPI) Subscribe(context.Context) (backend.Subscription, error) {
	return &stubSub{ch: make(chan models.Change)}, nil
}

type stubSub struct {
	once sync.Once
	ch   chan models.Change
}

func (s *stubSub) Changes() <-chan models.Change { return s.ch }
func (s *stubSub) Err() error                    { return nil }
func (s *stubSub) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

func newModel(t *testing.T, api *stubAPI) Model {
	t.Helper()
	vm := viewmodel.New(api)
	t.Cleanup(func() { vm.Close() })
	require.NoError(t, vm.Initialize(context.Background()))
	m := New(vm, "alice")
	m.refresh()
	return m
}

func press(t *testing.T, m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func runCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	return next.(Model)
}

var (
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyTab   = tea.KeyMsg{Type: tea.KeyTab}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewShowsGreetingAndAddLabel(t *testing.T) {
	m := newModel(t, &stubAPI{})
	view := m.View()
	assert.Contains(t, view, "Hello, alice")
	assert.Contains(t, view, "Add")
	assert.NotContains(t, view, "Update")
	assert.Contains(t, view, "No notes yet.")
}

func TestTypingAndSubmitAddsNote(t *testing.T) {
	m := newModel(t, &stubAPI{})

	m, _ = press(t, m, runes("Buy milk"))
	assert.Equal(t, "Buy milk", m.vm.Snapshot().DraftText)

	m, cmd := press(t, m, keyEnter)
	m = runCmd(t, m, cmd)

	assert.Equal(t, "", m.input.Value())
	assert.Contains(t, m.View(), "Buy milk")
	require.Len(t, m.vm.Snapshot().Notes, 1)
}

func TestEditFlowSwitchesLabel(t *testing.T) {
	m := newModel(t, &stubAPI{notes: []models.Note{{ID: "a", Note: "first"}, {ID: "b", Note: "second"}}})

	m, _ = press(t, m, keyTab)
	m, _ = press(t, m, keyDown)
	m, _ = press(t, m, runes("e"))

	snap := m.vm.Snapshot()
	assert.Equal(t, "b", snap.EditingID)
	assert.Equal(t, "second", m.input.Value())
	assert.Equal(t, focusInput, m.focus)
	assert.Contains(t, m.View(), "Update")

	m, _ = press(t, m, keyEsc)
	assert.False(t, m.vm.Snapshot().Editing())
	assert.Contains(t, m.View(), "Add")
}

func TestDeleteSelected(t *testing.T) {
	m := newModel(t, &stubAPI{notes: []models.Note{{ID: "a", Note: "first"}, {ID: "b", Note: "second"}}})

	m, _ = press(t, m, keyTab)
	m, cmd := press(t, m, runes("d"))
	m = runCmd(t, m, cmd)

	assert.Equal(t, []models.Note{{ID: "b", Note: "second"}}, m.vm.Snapshot().Notes)
	assert.NotContains(t, m.View(), "first")
}

func TestNoticeIsShownAndDismissed(t *testing.T) {
	api := &stubAPI{fail: fmt.Errorf("%w: down", apperr.ErrTransport)}
	m := newModel(t, api)

	m, _ = press(t, m, runes("x"))
	m, cmd := press(t, m, keyEnter)
	m = runCmd(t, m, cmd)

	assert.Contains(t, m.View(), "Could not add note")
	assert.Equal(t, "x", m.input.Value(), "draft survives a failed submit")

	m, _ = press(t, m, keyEsc)
	assert.Empty(t, m.vm.Snapshot().Notice)
	assert.False(t, strings.Contains(m.View(), "Could not add note"))
}

func TestQuit(t *testing.T) {
	m := newModel(t, &stubAPI{})
	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
