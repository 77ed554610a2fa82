package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// Envelope is the wire frame in both directions: {"event": ..., "data": ...}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Conn is one client socket. It satisfies service.Conn so the registry and
// delivery can write to it from any goroutine.
type Conn struct {
	id           string
	userID       string
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		id:           uuid.NewString(),
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

func (c *Conn) ID() string { return c.id }

// UserID is empty until the connection authenticates
func (c *Conn) UserID() string { return c.userID }

// Send writes one event. Writes are serialized by the websocket library.
func (c *Conn) Send(ctx context.Context, event string, payload interface{}) error {
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, c.ws, outbound{Event: event, Data: payload})
}
