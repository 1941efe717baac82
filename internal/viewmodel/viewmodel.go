// Package viewmodel keeps a session's note list consistent with the notes
// service under interleaved user actions and pushed subscription changes.
package viewmodel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/starford/notetaker/internal/backend"
	"github.com/starford/notetaker/internal/models"
)

// ErrClosed is returned by operations on a closed view-model.
var ErrClosed = errors.New("viewmodel: closed")

// Option configures a ViewModel.
type Option func(*ViewModel)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(vm *ViewModel) {
		vm.logger = logger
	}
}

type command struct {
	fn      func(*State)
	mutates bool
}

// feed is one live subscription and the goroutine pumping it into the loop.
type feed struct {
	sub      backend.Subscription
	done     chan struct{}
	detached atomic.Bool
}

// ViewModel owns a State.
//
// Concurrency model: a single internal event loop (goroutine) owns the state.
// User actions, mutation results and subscription changes are all delivered
// to it as commands, so they never run concurrently and always see the latest
// state. Backend calls happen on the caller's goroutine, outside the loop.
type ViewModel struct {
	api    backend.API
	logger *slog.Logger

	cmdCh   chan command
	changed chan struct{}

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool

	// mu serializes subscription lifecycle (Initialize and Close).
	mu   sync.Mutex
	feed *feed
}

// New creates a view-model over api. Call Initialize to load and subscribe,
// and Close when the session ends.
func New(api backend.API, opts ...Option) *ViewModel {
	vm := &ViewModel{
		api:     api,
		logger:  slog.Default(),
		cmdCh:   make(chan command),
		changed: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(vm)
	}

	go vm.run()
	return vm
}

func (vm *ViewModel) run() {
	defer close(vm.stopped)

	state := State{Notes: []models.Note{}}

	for {
		select {
		case <-vm.stopCh:
			return
		case cmd := <-vm.cmdCh:
			cmd.fn(&state)
			if cmd.mutates {
				select {
				case vm.changed <- struct{}{}:
				default:
					// A notification is already pending.
				}
			}
		}
	}
}

// exec runs fn on the event loop and waits for it. It reports false if the
// view-model is closed.
func (vm *ViewModel) exec(fn func(*State), mutates bool) bool {
	if vm.closed.Load() {
		return false
	}
	done := make(chan struct{})
	cmd := command{
		fn: func(s *State) {
			fn(s)
			close(done)
		},
		mutates: mutates,
	}
	select {
	case vm.cmdCh <- cmd:
	case <-vm.stopped:
		return false
	}
	<-done
	return true
}

func (vm *ViewModel) read(fn func(*State)) bool  { return vm.exec(fn, false) }
func (vm *ViewModel) write(fn func(*State)) bool { return vm.exec(fn, true) }

// Changes signals after every state mutation. Signals coalesce: a receiver
// should take a fresh Snapshot each time.
func (vm *ViewModel) Changes() <-chan struct{} {
	return vm.changed
}

// Snapshot returns a copy of the current state.
func (vm *ViewModel) Snapshot() State {
	var out State
	if !vm.read(func(s *State) { out = s.clone() }) {
		return State{Notes: []models.Note{}}
	}
	return out
}

// Initialize subscribes to the change feed and replaces the note list with a
// full fetch. A previous subscription is released first, so calling it again
// reloads without leaking handlers.
func (vm *ViewModel) Initialize(ctx context.Context) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.closed.Load() {
		return ErrClosed
	}
	vm.detachLocked()

	// Subscribe before fetching so nothing written after the fetch is missed.
	// Changes buffered meanwhile are applied on top of the fetched list.
	sub, err := vm.api.Subscribe(ctx)
	if err != nil {
		vm.write(func(s *State) { s.Live = false })
		return vm.fail("connect to live updates", err)
	}

	notes, err := vm.api.ListNotes(ctx)
	if err != nil {
		if closeErr := sub.Close(); closeErr != nil {
			vm.logger.Warn("unsubscribe failed", slog.String("error", closeErr.Error()))
		}
		vm.write(func(s *State) { s.Live = false })
		return vm.fail("load notes", err)
	}

	vm.write(func(s *State) {
		s.replace(notes)
		s.Live = true
	})

	f := &feed{sub: sub, done: make(chan struct{})}
	vm.feed = f
	go vm.pump(f)

	vm.logger.Info("note list initialized", slog.Int("notes", len(notes)))
	return nil
}

// pump forwards subscription changes into the loop until the feed ends.
func (vm *ViewModel) pump(f *feed) {
	defer close(f.done)

	for c := range f.sub.Changes() {
		if f.detached.Load() {
			continue
		}
		vm.write(func(s *State) { s.Apply(c) })
	}

	if f.detached.Load() {
		return
	}
	if err := f.sub.Err(); err != nil {
		vm.logger.Warn("subscription ended", slog.String("error", err.Error()))
	} else {
		vm.logger.Warn("subscription ended")
	}
	vm.write(func(s *State) {
		s.Live = false
		s.Notice = noticeDisconnected
	})
}

// detachLocked releases the current subscription and waits for its pump.
func (vm *ViewModel) detachLocked() {
	f := vm.feed
	if f == nil {
		return
	}
	vm.feed = nil
	f.detached.Store(true)
	if err := f.sub.Close(); err != nil {
		vm.logger.Warn("unsubscribe failed", slog.String("error", err.Error()))
	}
	<-f.done
}

// Close releases the subscription and stops the event loop. Changes pushed
// afterwards are dropped.
func (vm *ViewModel) Close() error {
	vm.mu.Lock()
	vm.detachLocked()
	vm.mu.Unlock()

	if vm.closed.CompareAndSwap(false, true) {
		close(vm.stopCh)
	}
	<-vm.stopped
	return nil
}

// OnDraftChange sets the draft text. Blank text is accepted.
func (vm *ViewModel) OnDraftChange(text string) {
	vm.write(func(s *State) { s.DraftText = text })
}

// StartEdit switches to update mode for note.
func (vm *ViewModel) StartEdit(note models.Note) {
	vm.write(func(s *State) {
		s.DraftText = note.Note
		s.EditingID = note.ID
	})
}

// CancelEdit leaves update mode and clears the draft.
func (vm *ViewModel) CancelEdit() {
	vm.write(func(s *State) {
		s.DraftText = ""
		s.EditingID = ""
	})
}

// DismissNotice clears the error notice.
func (vm *ViewModel) DismissNotice() {
	vm.write(func(s *State) { s.Notice = "" })
}

// Submit creates a note from the draft, or updates the note being edited.
// On success the draft and edit cursor are cleared unless they changed while
// the call was in flight. On failure they are left as they were.
func (vm *ViewModel) Submit(ctx context.Context) error {
	var draft, editing string
	if !vm.read(func(s *State) { draft, editing = s.DraftText, s.EditingID }) {
		return ErrClosed
	}

	if editing != "" {
		note, err := vm.api.UpdateNote(ctx, models.Note{ID: editing, Note: draft})
		if err != nil {
			return vm.fail("update note", err)
		}
		vm.write(func(s *State) {
			s.Apply(models.Change{Kind: models.Updated, Note: note})
			// The user may have moved on while the call was in flight.
			if s.EditingID == editing && s.DraftText == draft {
				s.DraftText = ""
				s.EditingID = ""
			}
		})
		vm.logger.Debug("note updated", slog.String("id", note.ID))
		return nil
	}

	note, err := vm.api.CreateNote(ctx, draft)
	if err != nil {
		return vm.fail("add note", err)
	}
	vm.write(func(s *State) {
		s.Apply(models.Change{Kind: models.Created, Note: note})
		if s.EditingID == "" && s.DraftText == draft {
			s.DraftText = ""
		}
	})
	vm.logger.Debug("note created", slog.String("id", note.ID))
	return nil
}

// Remove deletes the note with the given id. An id that is not in the local
// list is a no-op.
func (vm *ViewModel) Remove(ctx context.Context, id string) error {
	var present bool
	if !vm.read(func(s *State) { present = s.indexOf(id) >= 0 }) {
		return ErrClosed
	}
	// Only ids this session has seen are deleted remotely, so a stale local
	// list can never remove a note it does not show.
	if !present {
		return nil
	}

	if _, err := vm.api.DeleteNote(ctx, id); err != nil {
		return vm.fail("delete note", err)
	}
	vm.write(func(s *State) {
		s.Apply(models.Change{Kind: models.Deleted, Note: models.Note{ID: id}})
	})
	vm.logger.Debug("note deleted", slog.String("id", id))
	return nil
}

// OnRemoteCreate handles an onCreateNote push.
func (vm *ViewModel) OnRemoteCreate(note models.Note) {
	vm.write(func(s *State) { s.Apply(models.Change{Kind: models.Created, Note: note}) })
}

// OnRemoteUpdate handles an onUpdateNote push.
func (vm *ViewModel) OnRemoteUpdate(note models.Note) {
	vm.write(func(s *State) { s.Apply(models.Change{Kind: models.Updated, Note: note}) })
}

// OnRemoteDelete handles an onDeleteNote push.
func (vm *ViewModel) OnRemoteDelete(id string) {
	vm.write(func(s *State) { s.Apply(models.Change{Kind: models.Deleted, Note: models.Note{ID: id}}) })
}

func (vm *ViewModel) fail(action string, err error) error {
	vm.logger.Error(action+" failed", slog.String("error", err.Error()))
	msg := noticeFor(action, err)
	vm.write(func(s *State) { s.Notice = msg })
	return err
}
