package graphql

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notetaker/internal/api"
	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/backend"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/testutil"
)

func nextChange(t *testing.T, sub backend.Subscription) models.Change {
	t.Helper()
	select {
	case c, ok := <-sub.Changes():
		require.True(t, ok, "feed closed: %v", sub.Err())
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change")
		return models.Change{}
	}
}

func waitClosed(t *testing.T, sub backend.Subscription) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Changes():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("feed not closed")
		}
	}
}

func TestSubscriptionEchoesOwnChanges(t *testing.T) {
	b := testutil.NewBackend(t, api.AuthModeDisabled)
	c := newClient(b, "")
	ctx := context.Background()

	sub, err := c.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	n, err := c.CreateNote(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, models.Change{Kind: models.Created, Note: n}, nextChange(t, sub))

	u, err := c.UpdateNote(ctx, models.Note{ID: n.ID, Note: "second"})
	require.NoError(t, err)
	assert.Equal(t, models.Change{Kind: models.Updated, Note: u}, nextChange(t, sub))

	_, err = c.DeleteNote(ctx, n.ID)
	require.NoError(t, err)
	got := nextChange(t, sub)
	assert.Equal(t, models.Deleted, got.Kind)
	assert.Equal(t, n.ID, got.Note.ID)
}

func TestSubscriptionIsScopedToUser(t *testing.T) {
	b := testutil.NewBackend(t, api.AuthModeJWT)
	alice := newClient(b, testutil.Token(t, "alice"))
	bob := newClient(b, testutil.Token(t, "bob"))
	ctx := context.Background()

	sub, err := alice.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	_, err = bob.CreateNote(ctx, "bob's")
	require.NoError(t, err)
	mine, err := alice.CreateNote(ctx, "alice's")
	require.NoError(t, err)

	assert.Equal(t, mine, nextChange(t, sub).Note)
}

func TestCloseEndsFeedCleanly(t *testing.T) {
	b := testutil.NewBackend(t, api.AuthModeDisabled)
	c := newClient(b, "")

	sub, err := c.Subscribe(context.Background())
	require.NoError(t, err)
	testutil.Eventually(t, 2*time.Second, func() bool { return b.Hub.ClientCount() == 1 })

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "Close is idempotent")
	waitClosed(t, sub)
	assert.NoError(t, sub.Err())

	testutil.Eventually(t, 2*time.Second, func() bool { return b.Hub.ClientCount() == 0 })
}

func TestServiceShutdownEndsFeedWithError(t *testing.T) {
	b := testutil.NewBackend(t, api.AuthModeDisabled)
	c := newClient(b, "")

	sub, err := c.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	b.Hub.Close()
	waitClosed(t, sub)
	assert.ErrorIs(t, sub.Err(), apperr.ErrTransport)
}

func TestSubscribeHonoursContext(t *testing.T) {
	b := testutil.NewBackend(t, api.AuthModeDisabled)
	c := newClient(b, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Subscribe(ctx)
	assert.ErrorIs(t, err, apperr.ErrTransport)
}

func TestSubscriptionOutlivesSetupContext(t *testing.T) {
	b := testutil.NewBackend(t, api.AuthModeDisabled)
	c := newClient(b, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	sub, err := c.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()
	cancel()

	n, err := c.CreateNote(context.Background(), "after cancel")
	require.NoError(t, err)
	assert.Equal(t, n, nextChange(t, sub).Note)
}

func TestKeepAliveHoldsIdleFeed(t *testing.T) {
	b := testutil.NewBackend(t, api.AuthModeDisabled)
	c := New(b.GraphQLURL, b.RealtimeURL,
		WithHTTPClient(b.Server.Client()),
		WithDialer(&websocket.Dialer{HandshakeTimeout: 2 * time.Second}),
		WithKeepAlive(100*time.Millisecond),
		WithTimeout(5*time.Second),
	)
	ctx := context.Background()

	sub, err := c.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	// Several idle windows pass with only pings on the wire.
	time.Sleep(600 * time.Millisecond)
	require.NoError(t, sub.Err())

	n, err := c.CreateNote(ctx, "still here")
	require.NoError(t, err)
	assert.Equal(t, models.Change{Kind: models.Created, Note: n}, nextChange(t, sub))
}
