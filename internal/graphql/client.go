// Package graphql is the client of the managed notes service: queries and
// mutations over GraphQL-over-HTTP, and the change feed over a
// graphql-transport-ws websocket.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/backend"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/session"
	"github.com/starford/notetaker/internal/wire"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultKeepAlive = 30 * time.Second
	maxResponseBytes = 4 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for queries and mutations.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds each request and the subscription handshake.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTokenSource sets where the bearer token comes from.
func WithTokenSource(ts session.TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDialer sets the websocket dialer used for subscriptions.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithKeepAlive sets the interval between client pings on the change feed.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.keepAlive = d
		}
	}
}

// Client implements backend.API.
type Client struct {
	endpoint    string
	realtimeURL string
	httpClient  *http.Client
	timeout     time.Duration
	tokens      session.TokenSource
	logger      *slog.Logger
	dialer      *websocket.Dialer
	keepAlive   time.Duration
}

var _ backend.API = (*Client)(nil)

// New creates a client for the GraphQL endpoint and its realtime endpoint.
func New(endpoint, realtimeURL string, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		realtimeURL: realtimeURL,
		timeout:     defaultTimeout,
		tokens:      session.Static(""),
		logger:      slog.Default(),
		keepAlive:   defaultKeepAlive,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: c.timeout,
		}
	}
	return c
}

// ListNotes fetches every note of the signed-in user.
func (c *Client) ListNotes(ctx context.Context) ([]models.Note, error) {
	var conn wire.NoteConnection
	if err := c.do(ctx, wire.OpListNotes, listNotesQuery, nil, &conn); err != nil {
		return nil, err
	}
	if conn.Items == nil {
		return []models.Note{}, nil
	}
	return conn.Items, nil
}

// CreateNote creates a note; the service assigns its id.
func (c *Client) CreateNote(ctx context.Context, text string) (models.Note, error) {
	var note models.Note
	vars := wire.InputVariables[wire.CreateNoteInput]{Input: wire.CreateNoteInput{Note: text}}
	if err := c.do(ctx, wire.OpCreateNote, createNoteMutation, vars, &note); err != nil {
		return models.Note{}, err
	}
	return note, nil
}

// UpdateNote replaces the text of note.ID.
func (c *Client) UpdateNote(ctx context.Context, note models.Note) (models.Note, error) {
	var out models.Note
	vars := wire.InputVariables[wire.UpdateNoteInput]{Input: wire.UpdateNoteInput{ID: note.ID, Note: note.Note}}
	if err := c.do(ctx, wire.OpUpdateNote, updateNoteMutation, vars, &out); err != nil {
		return models.Note{}, err
	}
	return out, nil
}

// DeleteNote deletes the note and returns its id.
func (c *Client) DeleteNote(ctx context.Context, id string) (string, error) {
	var out models.Note
	vars := wire.InputVariables[wire.DeleteNoteInput]{Input: wire.DeleteNoteInput{ID: id}}
	if err := c.do(ctx, wire.OpDeleteNote, deleteNoteMutation, vars, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// do runs one operation and decodes its result field into out.
func (c *Client) do(ctx context.Context, op, query string, vars, out any) error {
	req := wire.Request{Query: query, OperationName: op}
	if vars != nil {
		raw, err := json.Marshal(vars)
		if err != nil {
			return fmt.Errorf("%s: encode variables: %w", op, err)
		}
		req.Variables = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", apperr.ErrTransport, op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if auth := session.Bearer(c.tokens.Token()); auth != "" {
		httpReq.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", apperr.ErrTransport, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %s: read response: %v", apperr.ErrTransport, op, err)
	}

	var gqlResp wire.Response
	decodeErr := json.Unmarshal(raw, &gqlResp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: %s", apperr.ErrUnauthorized, op, describe(resp.Status, gqlResp.Errors))
	case len(gqlResp.Errors) > 0:
		return responseError(op, gqlResp.Errors)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s: %s", apperr.ErrTransport, op, resp.Status)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: %s: %s", apperr.ErrValidation, op, resp.Status)
	case decodeErr != nil:
		return fmt.Errorf("%w: %s: decode response: %v", apperr.ErrTransport, op, decodeErr)
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(gqlResp.Data, &data); err != nil {
		return fmt.Errorf("%w: %s: decode data: %v", apperr.ErrTransport, op, err)
	}
	field, ok := data[wire.ResultField(op)]
	if !ok || string(field) == "null" {
		return fmt.Errorf("%s: %w: %w: no result", op, apperr.ErrValidation, apperr.ErrNotFound)
	}
	if err := json.Unmarshal(field, out); err != nil {
		return fmt.Errorf("%w: %s: decode result: %v", apperr.ErrTransport, op, err)
	}
	return nil
}

// responseError maps a GraphQL errors list onto the app sentinels. The first
// error decides the category.
func responseError(op string, errs []wire.Error) error {
	msg := describe("", errs)
	switch errs[0].ErrorType {
	case wire.ErrorTypeUnauthorized, "UnauthorizedException":
		return fmt.Errorf("%w: %s: %s", apperr.ErrUnauthorized, op, msg)
	case wire.ErrorTypeNotFound:
		return fmt.Errorf("%s: %w: %w: %s", op, apperr.ErrValidation, apperr.ErrNotFound, msg)
	case wire.ErrorTypeValidation, wire.ErrorTypeBadRequest:
		return fmt.Errorf("%w: %s: %s", apperr.ErrValidation, op, msg)
	default:
		return fmt.Errorf("%w: %s: %s", apperr.ErrTransport, op, msg)
	}
}

func describe(fallback string, errs []wire.Error) string {
	if len(errs) == 0 {
		return fallback
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}
