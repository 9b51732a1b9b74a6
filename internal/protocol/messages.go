// ABOUTME: Wire message types exchanged between pages, viewers, and the broker.
// ABOUTME: Every frame is a JSON object tagged by a mandatory "type" field.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type tags. Inbound tags arrive from agents and viewers; outbound
// tags are only ever produced by the broker.
const (
	// Inbound
	TypeClientConnect  = "client_connect"
	TypeViewerConnect  = "viewer_connect"
	TypeConsoleLog     = "console_log"
	TypeExecuteCommand = "execute_command"
	TypeCommandResult  = "command_result"

	// Outbound
	TypeClientStatus = "client_status"
	TypeLogsHistory  = "logs_history"
	TypeNewLog       = "new_log"
)

// Agent presence values carried by client_status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Console levels reported by the agent runtime.
const (
	LevelLog   = "log"
	LevelError = "error"
	LevelWarn  = "warn"
	LevelInfo  = "info"
)

// ErrMissingType indicates a frame parsed as JSON but carried no type tag.
var ErrMissingType = errors.New("message has no type field")

// Envelope is the minimal decode of any inbound frame: the type tag plus the
// session scope. The full payload is re-decoded per kind by the router.
type Envelope struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// DecodeEnvelope parses the type/session header of a raw frame.
// A frame that is not a JSON object or lacks a type tag is an error; callers
// drop such frames without closing the connection.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding frame: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// ClientInfo is the page identity reported by the agent on connect.
type ClientInfo struct {
	URL       string `json:"url"`
	UserAgent string `json:"userAgent"`
}

// ClientConnect announces an agent for a session.
type ClientConnect struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	UserAgent string `json:"userAgent"`
}

// ViewerConnect announces a viewer for a session.
type ViewerConnect struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// LogEvent is a single console event. Timestamp is the agent's ISO-8601
// string and passes through the broker untouched.
type LogEvent struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url,omitempty"`
}

// ConsoleLog is the inbound frame carrying one LogEvent.
type ConsoleLog struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url,omitempty"`
}

// Event extracts the buffered representation of the frame.
func (c ConsoleLog) Event() LogEvent {
	return LogEvent{
		Level:     c.Level,
		Message:   c.Message,
		Timestamp: c.Timestamp,
		URL:       c.URL,
	}
}

// NewLog is the live forward of a console_log to an attached viewer. It
// carries the original event fields under the new_log tag.
type NewLog struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url,omitempty"`
}

// ExecuteCommand asks the agent to evaluate an expression in the page.
// The broker forwards it verbatim and keeps no record of the commandId.
type ExecuteCommand struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	CommandID string `json:"commandId"`
	Command   string `json:"command"`
}

// CommandResult carries an evaluation outcome back to the viewer.
type CommandResult struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	CommandID string `json:"commandId"`
	Result    string `json:"result"`
	Success   bool   `json:"success"`
}

// ClientStatus notifies a viewer of agent presence changes.
type ClientStatus struct {
	Type       string      `json:"type"`
	SessionID  string      `json:"sessionId"`
	Status     string      `json:"status"`
	ClientInfo *ClientInfo `json:"clientInfo,omitempty"`
}

// LogsHistory replays the buffered backlog to a newly attached viewer.
// Logs is never null on the wire, even when the buffer is empty.
type LogsHistory struct {
	Type      string     `json:"type"`
	SessionID string     `json:"sessionId"`
	Logs      []LogEvent `json:"logs"`
}

// NewClientStatus builds a client_status frame. info may be nil when the
// agent has never reported.
func NewClientStatus(sessionID, status string, info *ClientInfo) ClientStatus {
	return ClientStatus{
		Type:       TypeClientStatus,
		SessionID:  sessionID,
		Status:     status,
		ClientInfo: info,
	}
}

// NewLogsHistory builds a logs_history frame from a buffer snapshot.
func NewLogsHistory(sessionID string, logs []LogEvent) LogsHistory {
	if logs == nil {
		logs = []LogEvent{}
	}
	return LogsHistory{
		Type:      TypeLogsHistory,
		SessionID: sessionID,
		Logs:      logs,
	}
}

// NewLogFrom wraps a buffered event for live forwarding.
func NewLogFrom(sessionID string, ev LogEvent) NewLog {
	return NewLog{
		Type:      TypeNewLog,
		SessionID: sessionID,
		Level:     ev.Level,
		Message:   ev.Message,
		Timestamp: ev.Timestamp,
		URL:       ev.URL,
	}
}
