package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/noteservice"
	"github.com/starford/notetaker/internal/wire"
)

const maxRequestBytes = 1 << 20

// Handler serves GraphQL queries and mutations.
type Handler struct {
	svc    *noteservice.Service
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// GraphQL handles POST /graphql. Operations are dispatched on operationName;
// the query document itself is not parsed.
func (h *Handler) GraphQL(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req wire.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, wire.Error{
			Message:   "invalid JSON body",
			ErrorType: wire.ErrorTypeBadRequest,
		})
		return
	}

	owner := OwnerFrom(r.Context())
	result, err := h.resolve(r.Context(), owner, req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("resolver failed",
				slog.String("operation", req.OperationName),
				slog.String("error", err.Error()))
		}
		writeErrors(w, status, errorBody(err))
		return
	}

	data, err := json.Marshal(map[string]any{wire.ResultField(req.OperationName): result})
	if err != nil {
		writeErrors(w, http.StatusInternalServerError, errorBody(err))
		return
	}
	writeJSON(w, http.StatusOK, wire.Response{Data: data})
}

func (h *Handler) resolve(ctx context.Context, owner string, req wire.Request) (any, error) {
	switch req.OperationName {
	case wire.OpListNotes:
		notes, err := h.svc.ListNotes(ctx, owner)
		if err != nil {
			return nil, err
		}
		return wire.NoteConnection{Items: notes}, nil

	case wire.OpCreateNote:
		in, err := decodeInput[wire.CreateNoteInput](req.Variables)
		if err != nil {
			return nil, err
		}
		return h.svc.CreateNote(ctx, owner, in)

	case wire.OpUpdateNote:
		in, err := decodeInput[wire.UpdateNoteInput](req.Variables)
		if err != nil {
			return nil, err
		}
		return h.svc.UpdateNote(ctx, owner, in)

	case wire.OpDeleteNote:
		in, err := decodeInput[wire.DeleteNoteInput](req.Variables)
		if err != nil {
			return nil, err
		}
		return h.svc.DeleteNote(ctx, owner, in)

	default:
		return nil, fmt.Errorf("%w: unknown operation %q", apperr.ErrValidation, req.OperationName)
	}
}

func decodeInput[T any](raw json.RawMessage) (T, error) {
	var v wire.InputVariables[T]
	if len(raw) == 0 {
		return v.Input, fmt.Errorf("%w: missing variables", apperr.ErrValidation)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v.Input, fmt.Errorf("%w: invalid variables: %v", apperr.ErrValidation, err)
	}
	return v.Input, nil
}
