package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/backend"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/session"
	"github.com/starford/notetaker/internal/wire"
)

const changeBuffer = 64

// Close codes the service uses to reject credentials.
const (
	closeUnauthorized = 4401
	closeForbidden    = 4403
)

// Subscribe opens the change feed: one websocket carrying onCreateNote,
// onUpdateNote and onDeleteNote. ctx bounds the handshake only. Subscribe
// returns once the service has confirmed all three, so any change committed
// afterwards is delivered.
func (c *Client) Subscribe(ctx context.Context) (backend.Subscription, error) {
	header := http.Header{}
	token := session.Bearer(c.tokens.Token())
	if token != "" {
		header.Set("Authorization", token)
	}

	dialer := *c.dialer
	dialer.Subprotocols = []string{wire.Subprotocol}
	conn, resp, err := dialer.DialContext(ctx, c.realtimeURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: subscribe: %s", apperr.ErrUnauthorized, resp.Status)
		}
		return nil, fmt.Errorf("%w: subscribe: %v", apperr.ErrTransport, err)
	}

	s := &subscription{
		conn:    conn,
		changes: make(chan models.Change, changeBuffer),
		ids:     make(map[string]models.ChangeKind),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  c.logger,
		idle:    2 * c.keepAlive,
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)
	stopWatch := context.AfterFunc(ctx, func() { _ = conn.Close() })

	pending, err := s.handshake(token)
	if !stopWatch() {
		err = fmt.Errorf("%w: subscribe: %v", apperr.ErrTransport, ctx.Err())
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetWriteDeadline(time.Time{})
	s.extendRead()

	go s.readLoop(pending)
	go s.keepAlive(c.keepAlive)

	c.logger.Debug("subscribed to note changes", slog.String("url", c.realtimeURL))
	return s, nil
}

// subscription is a live change feed.
type subscription struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	changes chan models.Change
	ids     map[string]models.ChangeKind // written only during handshake
	logger  *slog.Logger
	idle    time.Duration

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool

	mu  sync.Mutex
	err error
}

func (s *subscription) Changes() <-chan models.Change {
	return s.changes
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close completes the three subscriptions and closes the socket. It waits
// for the read loop, after which Changes is closed.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		close(s.stop)
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		s.writeMu.Unlock()
		for id := range s.ids {
			_ = s.send(wire.Message{Type: wire.MsgComplete, ID: id})
		}
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *subscription) send(msg wire.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// handshake runs connection_init/ack, subscribes, and waits for a pong to
// the ping sent after the subscribes. The service handles a connection's
// messages in order, so the pong proves all three are registered. Changes
// that arrive before the pong are returned for delivery.
func (s *subscription) handshake(authorization string) ([]models.Change, error) {
	init, err := json.Marshal(wire.InitPayload{Authorization: authorization})
	if err != nil {
		return nil, err
	}
	if err := s.send(wire.Message{Type: wire.MsgConnectionInit, Payload: init}); err != nil {
		return nil, fmt.Errorf("%w: subscribe: send init: %v", apperr.ErrTransport, err)
	}
	if _, err := s.await(wire.MsgConnectionAck); err != nil {
		return nil, err
	}

	for _, sub := range subscriptions {
		id := uuid.NewString()
		s.ids[id] = wire.SubscriptionKinds[sub.op]
		payload, err := json.Marshal(wire.Request{Query: sub.query, OperationName: sub.op})
		if err != nil {
			return nil, err
		}
		if err := s.send(wire.Message{Type: wire.MsgSubscribe, ID: id, Payload: payload}); err != nil {
			return nil, fmt.Errorf("%w: subscribe %s: %v", apperr.ErrTransport, sub.op, err)
		}
	}

	if err := s.send(wire.Message{Type: wire.MsgPing}); err != nil {
		return nil, fmt.Errorf("%w: subscribe: send ping: %v", apperr.ErrTransport, err)
	}
	return s.await(wire.MsgPong)
}

// await reads until a message of type want arrives.
func (s *subscription) await(want string) ([]models.Change, error) {
	var pending []models.Change
	for {
		var msg wire.Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			return nil, readError("subscribe", err)
		}
		switch msg.Type {
		case want:
			return pending, nil
		case wire.MsgPing:
			if err := s.send(wire.Message{Type: wire.MsgPong}); err != nil {
				return nil, fmt.Errorf("%w: subscribe: send pong: %v", apperr.ErrTransport, err)
			}
		case wire.MsgNext:
			if c, ok := s.decodeNext(msg); ok {
				pending = append(pending, c)
			}
		case wire.MsgError:
			return nil, fmt.Errorf("%w: subscribe rejected: %s", apperr.ErrValidation, string(msg.Payload))
		}
	}
}

func (s *subscription) readLoop(pending []models.Change) {
	defer close(s.changes)
	defer close(s.done)

	for _, c := range pending {
		if !s.deliver(c) {
			return
		}
	}

	for {
		var msg wire.Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !s.closing.Load() {
				s.setErr(readError("subscription", err))
			}
			return
		}
		s.extendRead()

		switch msg.Type {
		case wire.MsgNext:
			if c, ok := s.decodeNext(msg); ok && !s.deliver(c) {
				return
			}
		case wire.MsgPing:
			if err := s.send(wire.Message{Type: wire.MsgPong}); err != nil && !s.closing.Load() {
				s.setErr(fmt.Errorf("%w: subscription: send pong: %v", apperr.ErrTransport, err))
				return
			}
		case wire.MsgPong:
		case wire.MsgError:
			s.setErr(fmt.Errorf("%w: subscription %s failed: %s", apperr.ErrTransport, msg.ID, string(msg.Payload)))
			_ = s.conn.Close()
			return
		case wire.MsgComplete:
			s.setErr(fmt.Errorf("%w: subscription %s completed by service", apperr.ErrTransport, msg.ID))
			_ = s.conn.Close()
			return
		}
	}
}

func (s *subscription) deliver(c models.Change) bool {
	select {
	case s.changes <- c:
		return true
	case <-s.stop:
		return false
	}
}

// extendRead pushes the read deadline out; a feed silent for longer than
// two keepalive periods is considered dead.
func (s *subscription) extendRead() {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.idle))
}

func (s *subscription) keepAlive(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-s.done:
			return
		case <-t.C:
			if err := s.send(wire.Message{Type: wire.MsgPing}); err != nil {
				return
			}
		}
	}
}

func (s *subscription) decodeNext(msg wire.Message) (models.Change, bool) {
	kind, ok := s.ids[msg.ID]
	if !ok {
		return models.Change{}, false
	}

	var resp wire.Response
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		s.logger.Warn("undecodable change", slog.String("error", err.Error()))
		return models.Change{}, false
	}
	if len(resp.Errors) > 0 {
		s.logger.Warn("change carried errors", slog.String("error", describe("", resp.Errors)))
		return models.Change{}, false
	}

	var data map[string]models.Note
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		s.logger.Warn("undecodable change", slog.String("error", err.Error()))
		return models.Change{}, false
	}
	note, ok := data[wire.ResultField(wire.SubscriptionOp(kind))]
	if !ok || note.ID == "" {
		return models.Change{}, false
	}
	return models.Change{Kind: kind, Note: note}, true
}

func (s *subscription) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func readError(what string, err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && (ce.Code == closeUnauthorized || ce.Code == closeForbidden) {
		return fmt.Errorf("%w: %s: %s", apperr.ErrUnauthorized, what, ce.Text)
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrTransport, what, err)
}
