// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the notes service as tools for LLM integration via stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notetaker/internal/backend"
	"github.com/starford/notetaker/internal/models"
)

const notesResourceURI = "notes://all"

// Server wraps the MCP server with the note tools.
type Server struct {
	mcp *server.MCPServer
	api backend.API
}

// New creates a new MCP server with all note tools registered.
func New(api backend.API, version string) *Server {
	s := &Server{api: api}

	s.mcp = server.NewMCPServer(
		"notetaker",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all notes of the signed-in user, newest first, as JSON objects with id and note."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. The service assigns the id; the created note is returned."),
		mcp.WithString("note", mcp.Required(), mcp.Description("Text of the note (may be empty)")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the text of an existing note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Id of the note, as returned by list_notes")),
		mcp.WithString("note", mcp.Required(), mcp.Description("New text of the note")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Id of the note to delete")),
	), s.deleteNote)

	s.mcp.AddResource(
		mcp.NewResource(notesResourceURI, "Notes",
			mcp.WithResourceDescription("Every note of the signed-in user as a JSON array."),
			mcp.WithMIMEType("application/json"),
		),
		s.readNotesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.api.ListNotes(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(notes)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("note")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.api.CreateNote(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(note)
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("note")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.api.UpdateNote(ctx, models.Note{ID: id, Note: text})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(note)
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	deleted, err := s.api.DeleteNote(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", deleted)), nil
}

func (s *Server) readNotesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	notes, err := s.api.ListNotes(ctx)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(notes)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      notesResourceURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
