/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package transport implements the WebSocket upgrade endpoint and the
// read/write pump pair (spec §6's framing addendum): one goroutine
// pair per connection, gorilla/websocket's ReadJSON/WriteJSON framing
// a Frame{Type, Payload, Timestamp, StateVersion}, generalized from
// the teacher's single hardcoded ClientMessage union into a
// Type-dispatched json.RawMessage payload the supervisor decodes
// per-command.
//
// Grounded on Seednode-partybox's Client{conn, send chan
// any}/readPump/writePump (celebrity.go), with the bounded send queue
// replaced by eventbus.Socket so the overflow/idempotent-retention
// policy (C4) governs every connection uniformly.
package transport

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/partyquiz/engine/internal/eventbus"
)

// Frame is the wire shape for every inbound and outbound message.
type Frame struct {
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    int64           `json:"timestamp"`
	StateVersion *int64          `json:"stateVersion,omitempty"`
}

const (
	readLimit      = 64 * 1024
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	writeWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CommandHandler decodes and applies one inbound frame; identical
// signature regardless of command type, dispatch happens inside the
// supervisor by frame.Type.
type CommandHandler func(socketID string, frame Frame)

// DisconnectHandler is called once the read pump exits, regardless of
// cause (client close, read error, or the socket being marked
// offline by C4's sustained-overflow policy).
type DisconnectHandler func(socketID string)

// Conn pairs a live websocket connection with its eventbus.Socket
// outbound queue and runs the read/write pump pair.
type Conn struct {
	ws     *websocket.Conn
	socket *eventbus.Socket

	OnCommand    CommandHandler
	OnDisconnect DisconnectHandler
	Verbose      bool
}

// Upgrade promotes an HTTP request to a websocket connection and
// returns a Conn ready for Serve.
func Upgrade(w http.ResponseWriter, r *http.Request, socket *eventbus.Socket) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logf(true, "upgrade failed for socket %s: %v", socket.ID, err)
		return nil, err
	}
	ws.SetReadLimit(readLimit)
	return &Conn{ws: ws, socket: socket}, nil
}

// Serve runs the write pump in its own goroutine and blocks in the
// read pump until the connection closes. Call from the HTTP handler
// goroutine that produced Upgrade's Conn.
func (c *Conn) Serve() {
	done := make(chan struct{})
	go c.writePump(done)
	c.readPump()
	close(done)
}

func (c *Conn) readPump() {
	defer func() {
		c.socket.Close()
		_ = c.ws.Close()
		if c.OnDisconnect != nil {
			c.OnDisconnect(c.socket.ID)
		}
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logf(c.Verbose, "read error on socket %s: %v", c.socket.ID, err)
			}
			return
		}
		if c.OnCommand != nil {
			c.OnCommand(c.socket.ID, frame)
		}
	}
}

func (c *Conn) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		env, ok := nextOrDone(c.socket, done)
		if !ok {
			if env.closed {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			return
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteJSON(envelopeToFrame(env.env)); err != nil {
			logf(c.Verbose, "write error on socket %s: %v", c.socket.ID, err)
			return
		}
	}
}

type nextResult struct {
	env    eventbus.Envelope
	closed bool
}

// nextOrDone blocks on socket.Next() but also observes done, since
// Socket.Next has no context/cancellation of its own (it blocks on a
// sync.Cond). We run Next in a small helper goroutine per call rather
// than adding a second public API to eventbus; the cost is one extra
// goroutine only while a write pump is waiting for data, torn down as
// soon as either side resolves.
func nextOrDone(s *eventbus.Socket, done <-chan struct{}) (nextResult, bool) {
	type pair struct {
		env eventbus.Envelope
		ok  bool
	}
	ch := make(chan pair, 1)
	go func() {
		env, ok := s.Next()
		ch <- pair{env, ok}
	}()

	select {
	case p := <-ch:
		if !p.ok {
			return nextResult{closed: true}, false
		}
		return nextResult{env: p.env}, true
	case <-done:
		return nextResult{}, false
	}
}

func envelopeToFrame(env eventbus.Envelope) Frame {
	sv := env.StateVersion
	return Frame{
		Type:         env.Type,
		Payload:      env.Payload,
		Timestamp:    env.Timestamp,
		StateVersion: &sv,
	}
}

// logf mirrors the teacher's errors.go helper: a verbose-gated log
// line with a bracketed component tag (no timestamp of its own).
func logf(verbose bool, format string, args ...any) {
	if !verbose {
		return
	}
	log.Printf("[TRANSPORT] "+format, args...)
}
