package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/pubsub"
	"github.com/starford/notetaker/internal/wire"
)

// graphql-transport-ws close codes.
const (
	closeBadRequest     = 4400
	closeUnauthorized   = 4401
	closeInitTimeout    = 4408
	closeSubscriberDup  = 4409
	closeTooManyInits   = 4429
	defaultInitTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// Realtime serves subscriptions over graphql-transport-ws. Each connection
// gets one hub subscriber; every active subscribe id on the connection that
// matches a change's kind receives it as a next frame.
type Realtime struct {
	hub         *pubsub.Hub
	auth        Authenticator
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	initTimeout time.Duration
}

// NewRealtime creates the realtime endpoint handler.
func NewRealtime(hub *pubsub.Hub, auth Authenticator, logger *slog.Logger) *Realtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Realtime{
		hub:    hub,
		auth:   auth,
		logger: logger,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{wire.Subprotocol},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
		initTimeout: defaultInitTimeout,
	}
}

// rtConn is one websocket connection. gorilla allows one concurrent writer,
// so all writes go through send.
type rtConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]string // subscribe id -> operation

	readDone atomic.Bool
}

func (c *rtConn) send(msg wire.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	return c.ws.WriteJSON(msg)
}

func (c *rtConn) close(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(defaultWriteTimeout))
	_ = c.ws.Close()
}

// ServeHTTP is the realtime endpoint handler (GET /graphql/realtime).
func (rt *Realtime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		rt.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn := &rtConn{ws: ws, subs: make(map[string]string)}
	defer ws.Close()

	if ws.Subprotocol() != wire.Subprotocol {
		conn.close(closeBadRequest, "unsupported subprotocol")
		return
	}

	owner, err := rt.handshake(conn, r.Header.Get("Authorization"))
	if err != nil {
		rt.logger.Info("realtime handshake rejected", slog.String("error", err.Error()))
		return
	}

	sub := rt.hub.Subscribe(owner)

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		rt.forward(conn, sub)
	}()

	rt.logger.Debug("realtime connection opened", slog.String("owner", owner))
	rt.readLoop(conn)
	conn.readDone.Store(true)
	rt.hub.Unsubscribe(sub)
	<-forwarded
	rt.logger.Debug("realtime connection closed", slog.String("owner", owner))
}

// handshake waits for connection_init, authenticates it and acknowledges.
// The init payload's authorization wins over the upgrade request header.
func (rt *Realtime) handshake(conn *rtConn, header string) (string, error) {
	_ = conn.ws.SetReadDeadline(time.Now().Add(rt.initTimeout))
	var msg wire.Message
	if err := conn.ws.ReadJSON(&msg); err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			conn.close(closeInitTimeout, "Connection initialisation timeout")
		}
		return "", fmt.Errorf("read connection_init: %w", err)
	}
	_ = conn.ws.SetReadDeadline(time.Time{})

	if msg.Type != wire.MsgConnectionInit {
		conn.close(closeUnauthorized, "Unauthorized")
		return "", fmt.Errorf("expected %s, got %q", wire.MsgConnectionInit, msg.Type)
	}

	var init wire.InitPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &init); err != nil {
			conn.close(closeBadRequest, "invalid connection_init payload")
			return "", fmt.Errorf("decode connection_init: %w", err)
		}
	}
	authorization := init.Authorization
	if authorization == "" {
		authorization = header
	}

	owner, err := rt.auth.Owner(authorization)
	if err != nil {
		conn.close(closeUnauthorized, "Unauthorized")
		return "", err
	}
	if err := conn.send(wire.Message{Type: wire.MsgConnectionAck}); err != nil {
		return "", fmt.Errorf("send connection_ack: %w", err)
	}
	return owner, nil
}

func (rt *Realtime) readLoop(conn *rtConn) {
	for {
		var msg wire.Message
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				rt.logger.Debug("realtime read ended", slog.String("error", err.Error()))
			}
			return
		}

		switch msg.Type {
		case wire.MsgPing:
			if err := conn.send(wire.Message{Type: wire.MsgPong}); err != nil {
				return
			}
		case wire.MsgPong:
		case wire.MsgSubscribe:
			if !rt.subscribe(conn, msg) {
				return
			}
		case wire.MsgComplete:
			conn.mu.Lock()
			delete(conn.subs, msg.ID)
			conn.mu.Unlock()
		case wire.MsgConnectionInit:
			conn.close(closeTooManyInits, "Too many initialisation requests")
			return
		default:
			conn.close(closeBadRequest, fmt.Sprintf("unexpected message type %q", msg.Type))
			return
		}
	}
}

// subscribe registers a subscribe message. It reports false if the
// connection was closed.
func (rt *Realtime) subscribe(conn *rtConn, msg wire.Message) bool {
	if msg.ID == "" {
		conn.close(closeBadRequest, "subscribe without id")
		return false
	}

	var req wire.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		conn.close(closeBadRequest, "invalid subscribe payload")
		return false
	}
	if _, ok := wire.SubscriptionKinds[req.OperationName]; !ok {
		payload, _ := json.Marshal([]wire.Error{{
			Message:   fmt.Sprintf("unknown subscription %q", req.OperationName),
			ErrorType: wire.ErrorTypeValidation,
		}})
		return conn.send(wire.Message{Type: wire.MsgError, ID: msg.ID, Payload: payload}) == nil
	}

	conn.mu.Lock()
	_, dup := conn.subs[msg.ID]
	if !dup {
		conn.subs[msg.ID] = req.OperationName
	}
	conn.mu.Unlock()

	if dup {
		conn.close(closeSubscriberDup, fmt.Sprintf("Subscriber for %s already exists", msg.ID))
		return false
	}
	return true
}

// forward relays hub changes until the subscriber is removed. If the hub
// shuts down first, the connection is closed so the client notices.
func (rt *Realtime) forward(conn *rtConn, sub *pubsub.Subscriber) {
	for change := range sub.C() {
		if err := rt.deliver(conn, change); err != nil {
			rt.logger.Debug("realtime write failed",
				slog.String("owner", sub.Owner()),
				slog.String("error", err.Error()),
			)
			_ = conn.ws.Close()
			// Drain so the hub never sees this subscriber as lagging.
			for range sub.C() {
			}
			return
		}
	}
	if !conn.readDone.Load() {
		conn.close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (rt *Realtime) deliver(conn *rtConn, change models.Change) error {
	op := wire.SubscriptionOp(change.Kind)

	conn.mu.Lock()
	var ids []string
	for id, subOp := range conn.subs {
		if subOp == op {
			ids = append(ids, id)
		}
	}
	conn.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	data, err := json.Marshal(map[string]models.Note{wire.ResultField(op): change.Note})
	if err != nil {
		return err
	}
	payload, err := json.Marshal(wire.Response{Data: data})
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := conn.send(wire.Message{Type: wire.MsgNext, ID: id, Payload: payload}); err != nil {
			return err
		}
	}
	return nil
}
