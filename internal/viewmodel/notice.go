package viewmodel

import (
	"errors"
	"fmt"

	"github.com/starford/notetaker/internal/apperr"
)

const noticeDisconnected = "Live updates disconnected. Reload to resync."

func noticeFor(action string, err error) string {
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		return fmt.Sprintf("Could not %s: not authorized, sign in again.", action)
	case errors.Is(err, apperr.ErrNotFound):
		return fmt.Sprintf("Could not %s: the note no longer exists.", action)
	case errors.Is(err, apperr.ErrValidation):
		return fmt.Sprintf("Could not %s: the notes service rejected it.", action)
	case errors.Is(err, apperr.ErrTransport):
		return fmt.Sprintf("Could not %s: the notes service is unreachable.", action)
	default:
		return fmt.Sprintf("Could not %s: %v", action, err)
	}
}
