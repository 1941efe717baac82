// Package wire holds the JSON shapes exchanged with the notes GraphQL service,
// over HTTP for queries and mutations and over a graphql-transport-ws
// websocket for subscriptions.
package wire

import (
	"encoding/json"

	"github.com/starford/notetaker/internal/models"
)

// Operation names. The local backend dispatches on these.
const (
	OpListNotes    = "ListNotes"
	OpCreateNote   = "CreateNote"
	OpUpdateNote   = "UpdateNote"
	OpDeleteNote   = "DeleteNote"
	OpOnCreateNote = "OnCreateNote"
	OpOnUpdateNote = "OnUpdateNote"
	OpOnDeleteNote = "OnDeleteNote"
)

// Error types carried in GraphQL error entries.
const (
	ErrorTypeUnauthorized = "Unauthorized"
	ErrorTypeValidation   = "ValidationError"
	ErrorTypeNotFound     = "NotFound"
	ErrorTypeInternal     = "InternalFailure"
	ErrorTypeBadRequest   = "BadRequest"
)

// Request is a GraphQL-over-HTTP request body.
type Request struct {
	Query         string          `json:"query"`
	OperationName string          `json:"operationName"`
	Variables     json.RawMessage `json:"variables,omitempty"`
}

// Response is a GraphQL response body.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []Error         `json:"errors,omitempty"`
}

// Error is one entry of a GraphQL errors list.
type Error struct {
	Message   string `json:"message"`
	ErrorType string `json:"errorType,omitempty"`
}

func (e Error) Error() string {
	if e.ErrorType == "" {
		return e.Message
	}
	return e.ErrorType + ": " + e.Message
}

// CreateNoteInput is the input of createNote.
type CreateNoteInput struct {
	Note string `json:"note"`
}

// UpdateNoteInput is the input of updateNote.
type UpdateNoteInput struct {
	ID   string `json:"id"`
	Note string `json:"note"`
}

// DeleteNoteInput is the input of deleteNote.
type DeleteNoteInput struct {
	ID string `json:"id"`
}

// InputVariables wraps a mutation input the way the schema expects it.
type InputVariables[T any] struct {
	Input T `json:"input"`
}

// NoteConnection is the listNotes result.
type NoteConnection struct {
	Items []models.Note `json:"items"`
}

// Result field names, keyed by operation.
var resultFields = map[string]string{
	OpListNotes:    "listNotes",
	OpCreateNote:   "createNote",
	OpUpdateNote:   "updateNote",
	OpDeleteNote:   "deleteNote",
	OpOnCreateNote: "onCreateNote",
	OpOnUpdateNote: "onUpdateNote",
	OpOnDeleteNote: "onDeleteNote",
}

// ResultField returns the data field an operation's result is stored under.
func ResultField(op string) string {
	return resultFields[op]
}

// SubscriptionKinds maps each subscription operation to the change it reports.
var SubscriptionKinds = map[string]models.ChangeKind{
	OpOnCreateNote: models.Created,
	OpOnUpdateNote: models.Updated,
	OpOnDeleteNote: models.Deleted,
}

// SubscriptionOp returns the subscription operation that reports kind.
func SubscriptionOp(kind models.ChangeKind) string {
	for op, k := range SubscriptionKinds {
		if k == kind {
			return op
		}
	}
	return ""
}
