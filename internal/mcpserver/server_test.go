package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/notetaker/internal/api"
	"github.com/starford/notetaker/internal/graphql"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	b := testutil.NewBackend(t, api.AuthModeDisabled)
	return New(graphql.New(b.GraphQLURL, b.RealtimeURL), "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "update_note":
		result, err = srv.updateNote(ctx, req)
	case "delete_note":
		result, err = srv.deleteNote(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func resultNote(t *testing.T, r *mcp.CallToolResult) models.Note {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	var n models.Note
	if err := json.Unmarshal([]byte(resultText(r)), &n); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	return n
}

func TestCreateUpdateDelete(t *testing.T) {
	srv := testServer(t)

	created := resultNote(t, callTool(t, srv, "create_note", map[string]interface{}{"note": "hello"}))
	if created.ID == "" || created.Note != "hello" {
		t.Fatalf("created = %+v", created)
	}

	updated := resultNote(t, callTool(t, srv, "update_note", map[string]interface{}{
		"id":   created.ID,
		"note": "hello again",
	}))
	if updated.Note != "hello again" {
		t.Errorf("updated = %+v", updated)
	}

	r := callTool(t, srv, "delete_note", map[string]interface{}{"id": created.ID})
	if text := resultText(r); text != "deleted: "+created.ID {
		t.Errorf("delete result = %q", text)
	}
}

func TestListNotes(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_note", map[string]interface{}{"note": "a"})
	callTool(t, srv, "create_note", map[string]interface{}{"note": "b"})

	r := callTool(t, srv, "list_notes", map[string]interface{}{})
	var notes []models.Note
	if err := json.Unmarshal([]byte(resultText(r)), &notes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(notes) != 2 || notes[0].Note != "b" {
		t.Errorf("notes = %+v, want b then a", notes)
	}
}

func TestMissingArguments(t *testing.T) {
	srv := testServer(t)
	for _, name := range []string{"create_note", "update_note", "delete_note"} {
		if r := callTool(t, srv, name, map[string]interface{}{}); !r.IsError {
			t.Errorf("%s without arguments should fail", name)
		}
	}
}

func TestDeleteMissingNote(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "delete_note", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Fatal("expected error for missing note")
	}
	if !strings.Contains(resultText(r), "not found") {
		t.Errorf("error = %q", resultText(r))
	}
}

func TestNotesResource(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_note", map[string]interface{}{"note": "as resource"})

	contents, err := srv.readNotesResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, "as resource") {
		t.Errorf("resource = %q", text)
	}
}
