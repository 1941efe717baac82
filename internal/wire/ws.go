package wire

import "encoding/json"

// Subprotocol is the websocket subprotocol spoken on the realtime endpoint.
const Subprotocol = "graphql-transport-ws"

// Realtime message types.
const (
	MsgConnectionInit = "connection_init"
	MsgConnectionAck  = "connection_ack"
	MsgPing           = "ping"
	MsgPong           = "pong"
	MsgSubscribe      = "subscribe"
	MsgNext           = "next"
	MsgError          = "error"
	MsgComplete       = "complete"
)

// Message is one realtime frame.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// InitPayload carries the session credentials on connection_init.
type InitPayload struct {
	Authorization string `json:"authorization,omitempty"`
}
