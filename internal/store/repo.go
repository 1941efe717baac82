package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/notetaker/internal/apperr"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	ID        string
	Owner     string
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NoteStore defines the persistence operations the note service needs.
// Consumers should depend on this interface rather than the concrete *DB type.
type NoteStore interface {
	InsertNote(ctx context.Context, n NoteRow) error
	UpdateNote(ctx context.Context, owner, id, note string, at time.Time) (*NoteRow, error)
	DeleteNote(ctx context.Context, owner, id string) (*NoteRow, error)
	GetNote(ctx context.Context, owner, id string) (*NoteRow, error)
	ListNotes(ctx context.Context, owner string) ([]NoteRow, error)
	Close() error
}

// Verify *DB satisfies NoteStore at compile time.
var _ NoteStore = (*DB)(nil)

// InsertNote stores a new note.
func (db *DB) InsertNote(ctx context.Context, n NoteRow) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO notes (id, owner, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, n.ID, n.Owner, n.Note, n.CreatedAt.UTC(), n.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert note: %w", err)
	}
	return nil
}

// UpdateNote replaces the text of an owner's note.
func (db *DB) UpdateNote(ctx context.Context, owner, id, note string, at time.Time) (*NoteRow, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE notes SET note = ?, updated_at = ?
		WHERE owner = ? AND id = ?
	`, note, at.UTC(), owner, id)
	if err != nil {
		return nil, fmt.Errorf("store: update note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("store: update note %s: %w", id, apperr.ErrNotFound)
	}
	return db.GetNote(ctx, owner, id)
}

// DeleteNote removes an owner's note and returns the removed row.
func (db *DB) DeleteNote(ctx context.Context, owner, id string) (*NoteRow, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	row, err := scanNote(tx.QueryRowContext(ctx, `
		SELECT id, owner, note, created_at, updated_at FROM notes
		WHERE owner = ? AND id = ?
	`, owner, id))
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE owner = ? AND id = ?`, owner, id); err != nil {
		return nil, fmt.Errorf("store: delete note: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return row, nil
}

// GetNote returns one of owner's notes.
func (db *DB) GetNote(ctx context.Context, owner, id string) (*NoteRow, error) {
	return scanNote(db.conn.QueryRowContext(ctx, `
		SELECT id, owner, note, created_at, updated_at FROM notes
		WHERE owner = ? AND id = ?
	`, owner, id))
}

// ListNotes returns all of owner's notes, newest first.
func (db *DB) ListNotes(ctx context.Context, owner string) ([]NoteRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, owner, note, created_at, updated_at FROM notes
		WHERE owner = ?
		ORDER BY created_at DESC, id DESC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	out := []NoteRow{}
	for rows.Next() {
		var r NoteRow
		if err := rows.Scan(&r.ID, &r.Owner, &r.Note, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanNote(row *sql.Row) (*NoteRow, error) {
	var r NoteRow
	if err := row.Scan(&r.ID, &r.Owner, &r.Note, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan note: %w", err)
	}
	return &r, nil
}
