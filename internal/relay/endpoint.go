// ABOUTME: WebSocket endpoint accepting agent and viewer connections.
// ABOUTME: One read loop per socket; close triggers the detach transition.

package relay

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// maxFrameSize bounds a single inbound frame. Console events and commands
// are small; anything past this is not a protocol frame.
const maxFrameSize = 1 << 20

// Endpoint upgrades inbound HTTP requests to websocket connections and
// feeds each frame to the router. Roles are not distinguished at the
// transport level; the first role-announcement frame decides.
type Endpoint struct {
	router   *Router
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEndpoint creates the websocket endpoint. The upgrader accepts any
// origin: the broker carries no authentication by design and injected
// agents connect from arbitrary pages.
func NewEndpoint(router *Router, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoint{
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "endpoint"),
	}
}

// ServeHTTP upgrades the request and runs the connection's read loop until
// the socket closes.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newConn(ws, e.logger)
	e.logger.Debug("connection opened", "remote", r.RemoteAddr)

	go conn.writePump()
	e.readLoop(conn)
}

func (e *Endpoint) readLoop(conn *Conn) {
	defer func() {
		e.router.Disconnect(conn)
		conn.close()
		e.logger.Debug("connection closed", "remote", conn.ws.RemoteAddr().String())
	}()

	// An oversize frame errors the read and poisons the socket, so the
	// connection ends and the detach transition runs as for any close.
	conn.ws.SetReadLimit(maxFrameSize)

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				e.logger.Warn("oversize frame, closing connection", "remote", conn.ws.RemoteAddr().String())
			}
			return
		}
		e.router.HandleFrame(conn, data)
	}
}
