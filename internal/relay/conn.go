// ABOUTME: Per-socket connection wrapper with a serialized write pump.
// ABOUTME: Frames queue on a buffered channel; a stalled peer drops frames.

package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// sendBufferSize bounds the outbound queue per connection. A peer that
// stops reading loses frames past this point rather than stalling the relay.
const sendBufferSize = 256

// ErrConnClosed indicates a send on a connection whose pump has stopped.
var ErrConnClosed = errors.New("connection closed")

// Conn wraps a websocket connection with a single-writer pump so that
// concurrent session events and forwards never interleave frames.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	return &Conn{
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send marshals msg and queues it for the write pump. Frames are delivered
// in queue order; when the queue is full the frame is dropped, never
// blocking the caller.
func (c *Conn) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("send queue full, dropping frame", "remote", c.ws.RemoteAddr().String())
		return nil
	}
}

// writePump drains the send queue onto the socket until the connection
// closes or a write fails.
func (c *Conn) writePump() {
	for {
		select {
		case data := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// close stops the pump and closes the socket. Idempotent.
func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
