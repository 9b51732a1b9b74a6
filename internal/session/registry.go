// ABOUTME: Tracks which agent and viewer connections belong to each debug session.
// ABOUTME: Owns session creation, attach/detach transitions, and synchronous teardown.

package session

import (
	"log/slog"
	"sync"

	"github.com/pagetap/pagetap/internal/protocol"
)

// Sender is the outbound half of a connection. The registry references
// senders but never closes them; socket lifetime belongs to the transport.
type Sender interface {
	Send(msg any) error
}

// Session pairs at most one agent and one viewer under an opaque identifier
// and retains the agent's console backlog.
type Session struct {
	ID         string
	agent      Sender
	viewer     Sender
	logs       *LogBuffer
	clientInfo *protocol.ClientInfo
}

// Info is a read-only summary of a session for the HTTP API.
type Info struct {
	ID             string               `json:"id"`
	AgentOnline    bool                 `json:"agentOnline"`
	ViewerAttached bool                 `json:"viewerAttached"`
	LogCount       int                  `json:"logCount"`
	ClientInfo     *protocol.ClientInfo `json:"clientInfo,omitempty"`
}

// Registry maps session identifiers to live session records. All mutation is
// serialized behind a single lock; session counts are expected to stay low.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logCap   int
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. logCap bounds each session's
// backlog; pass 0 for the default.
func NewRegistry(logCap int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logCap:   logCap,
		logger:   logger.With("component", "session-registry"),
	}
}

// getOrCreate returns the record for id, creating an empty one on first
// sight. Caller must hold r.mu.
func (r *Registry) getOrCreate(id string) *Session {
	s, ok := r.sessions[id]
	if !ok {
		s = &Session{ID: id, logs: NewLogBuffer(r.logCap)}
		r.sessions[id] = s
		r.logger.Debug("session created", "session_id", id)
	}
	return s
}

// AttachAgent sets the agent slot and records the reported page identity.
// A previous agent reference is overwritten without closing its socket; the
// superseded connection lingers until it closes on its own. An attached
// viewer is notified synchronously that the agent is online.
func (r *Registry) AttachAgent(id string, conn Sender, info protocol.ClientInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreate(id)
	s.agent = conn
	s.clientInfo = &info

	r.logger.Info("agent attached", "session_id", id, "url", info.URL)

	if s.viewer != nil {
		r.send(s.viewer, protocol.NewClientStatus(id, protocol.StatusOnline, s.clientInfo), id)
	}
}

// AttachViewer sets the viewer slot, replaying the full backlog and the
// current agent status to the new viewer before any live forwards.
func (r *Registry) AttachViewer(id string, conn Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreate(id)
	s.viewer = conn

	r.logger.Info("viewer attached", "session_id", id, "backlog", s.logs.Len())

	r.send(conn, protocol.NewLogsHistory(id, s.logs.Snapshot()), id)

	status := protocol.StatusOffline
	if s.agent != nil {
		status = protocol.StatusOnline
	}
	r.send(conn, protocol.NewClientStatus(id, status, s.clientInfo), id)
}

// AppendLog buffers a console event for the session and returns the viewer
// to forward it to, or nil when no viewer is attached or the session is
// unknown.
func (r *Registry) AppendLog(id string, ev protocol.LogEvent) Sender {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	s.logs.Append(ev)
	return s.viewer
}

// AgentFor returns the session's live agent connection, or nil.
func (r *Registry) AgentFor(id string) Sender {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s.agent
	}
	return nil
}

// ViewerFor returns the session's live viewer connection, or nil.
func (r *Registry) ViewerFor(id string) Sender {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s.viewer
	}
	return nil
}

// Detach clears whichever slot references conn across all sessions. When the
// agent slot is cleared and a viewer remains, the viewer receives an offline
// status. A session left with neither side is deleted immediately.
func (r *Registry) Detach(conn Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		switch {
		case s.agent == conn:
			s.agent = nil
			r.logger.Info("agent detached", "session_id", id)
			if s.viewer != nil {
				r.send(s.viewer, protocol.NewClientStatus(id, protocol.StatusOffline, nil), id)
			}
		case s.viewer == conn:
			s.viewer = nil
			r.logger.Info("viewer detached", "session_id", id)
		default:
			continue
		}

		if s.agent == nil && s.viewer == nil {
			delete(r.sessions, id)
			r.logger.Debug("session removed", "session_id", id)
		}
	}
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List returns summaries of all live sessions.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, Info{
			ID:             s.ID,
			AgentOnline:    s.agent != nil,
			ViewerAttached: s.viewer != nil,
			LogCount:       s.logs.Len(),
			ClientInfo:     s.clientInfo,
		})
	}
	return out
}

// send delivers a frame to a peer, logging failures without unwinding the
// caller; a broken peer must never affect the other side of the session.
func (r *Registry) send(to Sender, msg any, sessionID string) {
	if err := to.Send(msg); err != nil {
		r.logger.Warn("send failed", "session_id", sessionID, "error", err)
	}
}
