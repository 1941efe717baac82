package viewmodel

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/backend"
	"github.com/starford/notetaker/internal/models"
)

// fakeAPI is an in-memory notes service. It never echoes on its own; tests
// push subscription changes explicitly so they control the interleaving.
type fakeAPI struct {
	mu      sync.Mutex
	notes   []models.Note
	nextID  int
	calls   []string
	subs    []*fakeSub
	failErr error
	subErr  error

	gate    chan struct{}
	entered chan struct{}
}

func newFakeAPI(notes ...models.Note) *fakeAPI {
	return &fakeAPI{notes: notes}
}

func (f *fakeAPI) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failErr
}

func (f *fakeAPI) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

// hold makes the next create or update block until release is called.
// entered fires once a call is blocked.
func (f *fakeAPI) hold() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	gate := f.gate
	return f.entered, func() { close(gate) }
}

func (f *fakeAPI) wait() {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate == nil {
		return
	}
	select {
	case entered <- struct{}{}:
	default:
	}
	<-gate
}

func (f *fakeAPI) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) ListNotes(context.Context) ([]models.Note, error) {
	if err := f.record("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Note(nil), f.notes...), nil
}

func (f *fakeAPI) CreateNote(_ context.Context, text string) (models.Note, error) {
	if err := f.record("create " + text); err != nil {
		return models.Note{}, err
	}
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n := models.Note{ID: fmt.Sprintf("n%d", f.nextID), Note: text}
	f.notes = append([]models.Note{n}, f.notes...)
	return n, nil
}

func (f *fakeAPI) UpdateNote(_ context.Context, note models.Note) (models.Note, error) {
	if err := f.record("update " + note.ID + " " + note.Note); err != nil {
		return models.Note{}, err
	}
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notes {
		if f.notes[i].ID == note.ID {
			f.notes[i] = note
			return note, nil
		}
	}
	return models.Note{}, fmt.Errorf("update %s: %w: %w", note.ID, apperr.ErrValidation, apperr.ErrNotFound)
}

func (f *fakeAPI) DeleteNote(_ context.Context, id string) (string, error) {
	if err := f.record("delete " + id); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notes {
		if f.notes[i].ID == id {
			f.notes = append(f.notes[:i], f.notes[i+1:]...)
			return id, nil
		}
	}
	return "", fmt.Errorf("delete %s: %w: %w", id, apperr.ErrValidation, apperr.ErrNotFound)
}

func (f *fakeAPI) Subscribe(context.Context) (backend.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "subscribe")
	if f.subErr != nil {
		return nil, f.subErr
	}
	s := &fakeSub{ch: make(chan models.Change, 64)}
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeAPI) sub(i int) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

type fakeSub struct {
	mu     sync.Mutex
	ch     chan models.Change
	closed bool
	err    error
}

func (s *fakeSub) Changes() <-chan models.Change { return s.ch }

func (s *fakeSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// push delivers a change as the service would. Pushes after close are dropped.
func (s *fakeSub) push(c models.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.ch <- c
	}
}

// drop ends the feed from the service side.
func (s *fakeSub) drop(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.err = err
		close(s.ch)
	}
}
