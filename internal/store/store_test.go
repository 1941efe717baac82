package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/notetaker/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "notetaker-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insert(t *testing.T, db *DB, owner, id, note string, at time.Time) {
	t.Helper()
	if err := db.InsertNote(context.Background(), NoteRow{ID: id, Owner: owner, Note: note, CreatedAt: at, UpdatedAt: at}); err != nil {
		t.Fatalf("InsertNote: %v", err)
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
}

func TestInsertAndGet(t *testing.T) {
	db := testDB(t)
	insert(t, db, "alice", "n1", "hello", time.Now())

	got, err := db.GetNote(context.Background(), "alice", "n1")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Note != "hello" || got.Owner != "alice" {
		t.Errorf("row = %+v", got)
	}
}

func TestInsertDuplicateID(t *testing.T) {
	db := testDB(t)
	insert(t, db, "alice", "n1", "a", time.Now())
	err := db.InsertNote(context.Background(), NoteRow{ID: "n1", Owner: "alice", Note: "b", CreatedAt: time.Now(), UpdatedAt: time.Now()})
	if err == nil {
		t.Fatal("expected primary key violation")
	}
}

func TestListNewestFirstPerOwner(t *testing.T) {
	db := testDB(t)
	base := time.Now().Add(-time.Hour)
	insert(t, db, "alice", "n1", "first", base)
	insert(t, db, "alice", "n2", "second", base.Add(time.Minute))
	insert(t, db, "bob", "n3", "not yours", base.Add(2*time.Minute))

	rows, err := db.ListNotes(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len = %d, want 2", len(rows))
	}
	if rows[0].ID != "n2" || rows[1].ID != "n1" {
		t.Errorf("order = %s, %s; want n2, n1", rows[0].ID, rows[1].ID)
	}
}

func TestListEmpty(t *testing.T) {
	db := testDB(t)
	rows, err := db.ListNotes(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("rows = %v, want empty non-nil", rows)
	}
}

func TestUpdate(t *testing.T) {
	db := testDB(t)
	insert(t, db, "alice", "n1", "v1", time.Now())

	row, err := db.UpdateNote(context.Background(), "alice", "n1", "v2", time.Now())
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if row.Note != "v2" {
		t.Errorf("note = %q, want v2", row.Note)
	}
}

func TestUpdate_NotFoundOrForeign(t *testing.T) {
	db := testDB(t)
	insert(t, db, "bob", "n1", "bob's", time.Now())

	for _, tc := range []struct{ owner, id string }{{"alice", "ghost"}, {"alice", "n1"}} {
		_, err := db.UpdateNote(context.Background(), tc.owner, tc.id, "x", time.Now())
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("update %s/%s err = %v, want ErrNotFound", tc.owner, tc.id, err)
		}
	}
}

func TestDelete(t *testing.T) {
	db := testDB(t)
	insert(t, db, "alice", "n1", "bye", time.Now())

	row, err := db.DeleteNote(context.Background(), "alice", "n1")
	if err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if row.ID != "n1" || row.Note != "bye" {
		t.Errorf("deleted row = %+v", row)
	}
	if _, err := db.GetNote(context.Background(), "alice", "n1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get after delete err = %v", err)
	}
	if _, err := db.DeleteNote(context.Background(), "alice", "n1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
