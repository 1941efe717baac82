// Package backend defines the boundary to the managed notes service.
package backend

import (
	"context"

	"github.com/starford/notetaker/internal/models"
)

// API is the query/mutation/subscription surface of the notes service.
type API interface {
	// ListNotes returns every note visible to the session.
	ListNotes(ctx context.Context) ([]models.Note, error)
	// CreateNote stores a new note and returns it with its assigned id.
	CreateNote(ctx context.Context, text string) (models.Note, error)
	// UpdateNote replaces the text of an existing note.
	UpdateNote(ctx context.Context, note models.Note) (models.Note, error)
	// DeleteNote removes a note and returns its id.
	DeleteNote(ctx context.Context, id string) (string, error)
	// Subscribe opens the create/update/delete feed. ctx bounds connection
	// setup only; the subscription lives until Close.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is a live change feed.
type Subscription interface {
	// Changes delivers pushed changes. It is closed when the feed ends.
	Changes() <-chan models.Change
	// Err reports why the feed ended. It is nil while the feed is live and
	// after an explicit Close.
	Err() error
	// Close unsubscribes and releases the transport. Safe to call twice.
	Close() error
}
