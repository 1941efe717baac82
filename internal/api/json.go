package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/wire"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

func writeErrors(w http.ResponseWriter, status int, errs ...wire.Error) {
	writeJSON(w, status, wire.Response{Errors: errs})
}

// errorBody converts err into a GraphQL error entry.
func errorBody(err error) wire.Error {
	return wire.Error{Message: err.Error(), ErrorType: errorType(err)}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		return wire.ErrorTypeUnauthorized
	case errors.Is(err, apperr.ErrNotFound):
		return wire.ErrorTypeNotFound
	case errors.Is(err, apperr.ErrValidation):
		return wire.ErrorTypeValidation
	default:
		return wire.ErrorTypeInternal
	}
}

// statusFor picks the HTTP status of a failed operation. Resolver errors are
// reported in the body with 200, as GraphQL servers do; only auth and
// internal failures change the status.
func statusFor(err error) int {
	switch errorType(err) {
	case wire.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case wire.ErrorTypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
