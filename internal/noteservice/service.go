// Package noteservice implements the note resolvers of the local backend:
// validate, persist, then publish the change to every session of the owner.
package noteservice

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/oklog/ulid/v2"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/pubsub"
	"github.com/starford/notetaker/internal/store"
	"github.com/starford/notetaker/internal/wire"
)

// DefaultMaxNoteLength bounds a note's text, in runes.
const DefaultMaxNoteLength = 10000

// Option configures a Service.
type Option func(*Service)

// WithMaxNoteLength overrides DefaultMaxNoteLength.
func WithMaxNoteLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service coordinates storage and change fan-out.
type Service struct {
	store  store.NoteStore
	hub    *pubsub.Hub
	maxLen int
	now    func() time.Time

	idMu    sync.Mutex
	entropy io.Reader
}

// NewService creates a new note service.
func NewService(st store.NoteStore, hub *pubsub.Hub, opts ...Option) *Service {
	s := &Service{
		store:   st,
		hub:     hub,
		maxLen:  DefaultMaxNoteLength,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListNotes returns every note of owner, newest first.
func (s *Service) ListNotes(ctx context.Context, owner string) ([]models.Note, error) {
	rows, err := s.store.ListNotes(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]models.Note, len(rows))
	for i, r := range rows {
		out[i] = toNote(r)
	}
	return out, nil
}

// CreateNote stores a new note under a fresh id.
func (s *Service) CreateNote(ctx context.Context, owner string, in wire.CreateNoteInput) (models.Note, error) {
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.Note, validation.RuneLength(0, s.maxLen)),
	); err != nil {
		return models.Note{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	now := s.now()
	id, err := s.newID(now)
	if err != nil {
		return models.Note{}, err
	}
	row := store.NoteRow{ID: id, Owner: owner, Note: in.Note, CreatedAt: now, UpdatedAt: now}
	if err := s.store.InsertNote(ctx, row); err != nil {
		return models.Note{}, err
	}

	note := toNote(row)
	s.publish(owner, models.Created, note)
	return note, nil
}

// UpdateNote replaces the text of an existing note.
func (s *Service) UpdateNote(ctx context.Context, owner string, in wire.UpdateNoteInput) (models.Note, error) {
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.ID, validation.Required),
		validation.Field(&in.Note, validation.RuneLength(0, s.maxLen)),
	); err != nil {
		return models.Note{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	row, err := s.store.UpdateNote(ctx, owner, in.ID, in.Note, s.now())
	if err != nil {
		return models.Note{}, err
	}

	note := toNote(*row)
	s.publish(owner, models.Updated, note)
	return note, nil
}

// DeleteNote removes a note and returns the removed record.
func (s *Service) DeleteNote(ctx context.Context, owner string, in wire.DeleteNoteInput) (models.Note, error) {
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.ID, validation.Required),
	); err != nil {
		return models.Note{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	row, err := s.store.DeleteNote(ctx, owner, in.ID)
	if err != nil {
		return models.Note{}, err
	}

	note := toNote(*row)
	s.publish(owner, models.Deleted, note)
	return note, nil
}

func (s *Service) publish(owner string, kind models.ChangeKind, note models.Note) {
	if s.hub != nil {
		s.hub.Publish(owner, models.Change{Kind: kind, Note: note})
	}
}

// newID returns a ULID; ids from one service sort by creation.
func (s *Service) newID(at time.Time) (string, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), s.entropy)
	if err != nil {
		return "", fmt.Errorf("noteservice: new id: %w", err)
	}
	return id.String(), nil
}

func toNote(r store.NoteRow) models.Note {
	return models.Note{ID: r.ID, Note: r.Note}
}
