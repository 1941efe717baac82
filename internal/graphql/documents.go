package graphql

import "github.com/starford/notetaker/internal/wire"

// Documents sent to the service. Every selection is `id note`, which is all
// the note list renders.
const (
	listNotesQuery = `query ListNotes {
  listNotes { items { id note } }
}`
	createNoteMutation = `mutation CreateNote($input: CreateNoteInput!) {
  createNote(input: $input) { id note }
}`
	updateNoteMutation = `mutation UpdateNote($input: UpdateNoteInput!) {
  updateNote(input: $input) { id note }
}`
	deleteNoteMutation = `mutation DeleteNote($input: DeleteNoteInput!) {
  deleteNote(input: $input) { id note }
}`
)

// subscriptions lists the documents of the change feed, in subscribe order.
var subscriptions = []struct {
	op    string
	query string
}{
	{wire.OpOnCreateNote, `subscription OnCreateNote { onCreateNote { id note } }`},
	{wire.OpOnUpdateNote, `subscription OnUpdateNote { onUpdateNote { id note } }`},
	{wire.OpOnDeleteNote, `subscription OnDeleteNote { onDeleteNote { id note } }`},
}
