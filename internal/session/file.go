package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// FileSource is a TokenSource backed by a file that an external sign-in flow
// rewrites whenever the session is refreshed.
type FileSource struct {
	path  string
	token atomic.Pointer[string]
}

// NewFileSource reads the token file once. The file must exist.
func NewFileSource(path string) (*FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("session: resolve token file: %w", err)
	}
	f := &FileSource{path: abs}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Token returns the most recently loaded token.
func (f *FileSource) Token() string {
	if p := f.token.Load(); p != nil {
		return *p
	}
	return ""
}

// Reload re-reads the token file.
func (f *FileSource) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("session: read token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	f.token.Store(&tok)
	return nil
}

// Watch reloads the token whenever the file changes, until ctx is cancelled.
// The parent directory is watched so that atomic replace-by-rename is seen.
// onChange, if non-nil, is called after each successful reload.
func (f *FileSource) Watch(ctx context.Context, logger *slog.Logger, onChange func(token string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("session: watch token dir: %w", err)
	}
	logger.Info("token watcher: started", slog.String("path", f.path))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(reloadDebounce)
			fire = timer.C
		} else {
			timer.Reset(reloadDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("token watcher: stopped")
			return nil

		case <-fire:
			if err := f.Reload(); err != nil {
				logger.Warn("token watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			logger.Debug("token watcher: reloaded", slog.String("path", f.path))
			if onChange != nil {
				onChange(f.Token())
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("token watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
