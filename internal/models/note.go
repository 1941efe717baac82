// Package models defines the domain types shared by the client and the local backend.
package models

// Note is a single note record. ID is assigned by the backend and is empty
// until the first successful create.
type Note struct {
	ID   string `json:"id"`
	Note string `json:"note"`
}

// ChangeKind tags a Change.
type ChangeKind int

const (
	Created ChangeKind = iota + 1
	Updated
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is one create/update/delete of a note, whether it came back from a
// mutation or was pushed by a subscription.
type Change struct {
	Kind ChangeKind
	Note Note
}
