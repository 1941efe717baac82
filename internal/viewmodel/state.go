package viewmodel

import (
	"slices"

	"github.com/starford/notetaker/internal/models"
)

// State is the note list view state. Only the view-model's event loop mutates
// it; everyone else sees copies returned by Snapshot.
type State struct {
	// Notes is newest-created first.
	Notes []models.Note
	// DraftText mirrors the input field.
	DraftText string
	// EditingID is the id of the note being edited; empty means create mode.
	EditingID string
	// Notice is the last user-visible failure, empty when there is none.
	Notice string
	// Live reports whether the subscription feed is connected.
	Live bool

	// ids seen deleted this session; a deleted id never comes back.
	tombstones map[string]struct{}
}

// Editing reports whether a submit will update rather than create.
func (s State) Editing() bool {
	return s.EditingID != ""
}

// Find returns the note with the given id.
func (s State) Find(id string) (models.Note, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Notes[i], true
	}
	return models.Note{}, false
}

// Apply folds one change into the list. It is idempotent: applying the same
// change twice leaves the state as the first application did, and a change
// that arrives from both a mutation result and its subscription echo is
// applied once.
func (s *State) Apply(c models.Change) {
	id := c.Note.ID
	if id == "" {
		return
	}
	switch c.Kind {
	case models.Created:
		if s.deleted(id) || s.indexOf(id) >= 0 {
			return
		}
		s.Notes = append([]models.Note{c.Note}, s.Notes...)
	case models.Updated:
		if i := s.indexOf(id); i >= 0 {
			s.Notes[i] = c.Note
		}
	case models.Deleted:
		if s.tombstones == nil {
			s.tombstones = make(map[string]struct{})
		}
		s.tombstones[id] = struct{}{}
		if i := s.indexOf(id); i >= 0 {
			s.Notes = slices.Delete(s.Notes, i, i+1)
		}
		if s.EditingID == id {
			s.EditingID = ""
		}
	}
}

// replace swaps in a freshly fetched list, dropping duplicates and anything
// already seen deleted.
func (s *State) replace(notes []models.Note) {
	out := make([]models.Note, 0, len(notes))
	seen := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		if n.ID == "" || s.deleted(n.ID) {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	s.Notes = out
	if s.EditingID != "" {
		if _, ok := seen[s.EditingID]; !ok {
			s.EditingID = ""
		}
	}
}

func (s State) clone() State {
	out := s
	out.Notes = slices.Clone(s.Notes)
	if out.Notes == nil {
		out.Notes = []models.Note{}
	}
	out.tombstones = nil
	return out
}

func (s State) indexOf(id string) int {
	return slices.IndexFunc(s.Notes, func(n models.Note) bool { return n.ID == id })
}

func (s State) deleted(id string) bool {
	_, ok := s.tombstones[id]
	return ok
}
