// ABOUTME: Protocol state machine: dispatches inbound frames by type tag and
// ABOUTME: applies the forwarding rules between agent and viewer of a session.

package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/pagetap/pagetap/internal/protocol"
	"github.com/pagetap/pagetap/internal/session"
)

// Router applies the relay's forwarding rules. It holds no per-command
// state: execute_command and command_result pass through verbatim, and a
// frame routed toward an absent peer is dropped without any signal back to
// the sender. A malformed frame from one side must never take down the
// relay for the other side, so every failure here is a logged drop.
type Router struct {
	registry *session.Registry
	logger   *slog.Logger
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *session.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		logger:   logger.With("component", "router"),
	}
}

// HandleFrame dispatches one inbound frame from conn. The connection stays
// open regardless of the frame's fate.
func (r *Router) HandleFrame(conn session.Sender, data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		r.logger.Debug("dropping malformed frame", "error", err)
		return
	}

	switch env.Type {
	case protocol.TypeClientConnect:
		r.handleClientConnect(conn, data)
	case protocol.TypeViewerConnect:
		r.registry.AttachViewer(env.SessionID, conn)
	case protocol.TypeConsoleLog:
		r.handleConsoleLog(data)
	case protocol.TypeExecuteCommand:
		r.handleExecuteCommand(data)
	case protocol.TypeCommandResult:
		r.handleCommandResult(data)
	default:
		r.logger.Debug("dropping frame with unknown type", "type", env.Type)
	}
}

func (r *Router) handleClientConnect(conn session.Sender, data []byte) {
	var msg protocol.ClientConnect
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Debug("dropping malformed client_connect", "error", err)
		return
	}
	r.registry.AttachAgent(msg.SessionID, conn, protocol.ClientInfo{
		URL:       msg.URL,
		UserAgent: msg.UserAgent,
	})
}

func (r *Router) handleConsoleLog(data []byte) {
	var msg protocol.ConsoleLog
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Debug("dropping malformed console_log", "error", err)
		return
	}

	ev := msg.Event()
	viewer := r.registry.AppendLog(msg.SessionID, ev)
	if viewer == nil {
		return
	}
	r.forward(viewer, protocol.NewLogFrom(msg.SessionID, ev), msg.SessionID)
}

func (r *Router) handleExecuteCommand(data []byte) {
	var msg protocol.ExecuteCommand
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Debug("dropping malformed execute_command", "error", err)
		return
	}

	agent := r.registry.AgentFor(msg.SessionID)
	if agent == nil {
		r.logger.Debug("no agent for execute_command", "session_id", msg.SessionID)
		return
	}
	msg.Type = protocol.TypeExecuteCommand
	r.forward(agent, msg, msg.SessionID)
}

func (r *Router) handleCommandResult(data []byte) {
	var msg protocol.CommandResult
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Debug("dropping malformed command_result", "error", err)
		return
	}

	viewer := r.registry.ViewerFor(msg.SessionID)
	if viewer == nil {
		r.logger.Debug("no viewer for command_result", "session_id", msg.SessionID)
		return
	}
	msg.Type = protocol.TypeCommandResult
	r.forward(viewer, msg, msg.SessionID)
}

// Disconnect runs the detach transition for a closed connection.
func (r *Router) Disconnect(conn session.Sender) {
	r.registry.Detach(conn)
}

func (r *Router) forward(to session.Sender, msg any, sessionID string) {
	if err := to.Send(msg); err != nil {
		r.logger.Warn("forward failed", "session_id", sessionID, "error", err)
	}
}
