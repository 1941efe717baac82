// Package testutil provides shared test helpers: a temporary database and a
// complete local notes backend served by httptest.
package testutil

import (
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/notetaker/internal/api"
	"github.com/starford/notetaker/internal/noteservice"
	"github.com/starford/notetaker/internal/pubsub"
	"github.com/starford/notetaker/internal/session"
	"github.com/starford/notetaker/internal/store"
)

// Secret signs the tokens of a jwt-mode test backend.
var Secret = []byte("notetaker-test-secret")

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notetaker-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Backend is a running local backend.
type Backend struct {
	Server      *httptest.Server
	Hub         *pubsub.Hub
	Service     *noteservice.Service
	GraphQLURL  string
	RealtimeURL string
}

// NewBackend starts a backend with the given auth mode (api.AuthModeDisabled
// or api.AuthModeJWT, the latter verifying against Secret).
func NewBackend(t *testing.T, authMode string) *Backend {
	t.Helper()
	db := TestDB(t)

	hub := pubsub.NewHub(64, nil)
	t.Cleanup(hub.Close)

	svc := noteservice.NewService(db, hub)
	auth := api.NewAuthenticator(authMode, Secret)
	router := api.NewRouter(api.NewHandler(svc, nil), api.NewRealtime(hub, auth, nil), auth)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &Backend{
		Server:      srv,
		Hub:         hub,
		Service:     svc,
		GraphQLURL:  srv.URL + api.GraphQLPath,
		RealtimeURL: "ws" + strings.TrimPrefix(srv.URL, "http") + api.RealtimePath,
	}
}

// Token mints a token for user that a jwt-mode Backend accepts.
func Token(t *testing.T, user string) string {
	t.Helper()
	tok, err := session.Mint(Secret, user, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// Eventually polls cond until it holds or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
