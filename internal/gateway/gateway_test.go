// ABOUTME: End-to-end tests for the gateway over real WebSocket connections.
// ABOUTME: Covers the agent/viewer relay flow and the HTTP endpoints.

package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetap/pagetap/internal/config"
	"github.com/pagetap/pagetap/internal/protocol"
)

func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw, err := New(cfg, logger)
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	return gw, srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	return ws
}

func writeFrame(t *testing.T, ws *websocket.Conn, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

// waitForAgent blocks until the registry shows the session's agent online.
// Agent and viewer frames travel on separate sockets, so a viewer attach
// issued right after the agent announce would otherwise race it.
func waitForAgent(t *testing.T, gw *Gateway, sessionID string) {
	t.Helper()

	require.Eventually(t, func() bool {
		for _, info := range gw.Registry().List() {
			if info.ID == sessionID && info.AgentOnline {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

// readFrame reads the next text frame, failing the test if none arrives
// within two seconds.
func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestRelayFlow(t *testing.T) {
	gw, srv := newTestGateway(t)

	agent := dialWS(t, srv)
	viewer := dialWS(t, srv)

	// Agent announces itself for the session.
	writeFrame(t, agent, protocol.ClientConnect{
		Type:      protocol.TypeClientConnect,
		SessionID: "sess-e2e",
		URL:       "https://example.com/checkout",
		UserAgent: "TestBrowser/1.0",
	})
	waitForAgent(t, gw, "sess-e2e")

	// Viewer attaches and receives history then status.
	writeFrame(t, viewer, protocol.ViewerConnect{
		Type:      protocol.TypeViewerConnect,
		SessionID: "sess-e2e",
	})

	history := readFrame(t, viewer)
	assert.Equal(t, protocol.TypeLogsHistory, history["type"])
	assert.Equal(t, "sess-e2e", history["sessionId"])
	logs, ok := history["logs"].([]any)
	require.True(t, ok, "logs must be an array, got %T", history["logs"])
	assert.Empty(t, logs)

	status := readFrame(t, viewer)
	assert.Equal(t, protocol.TypeClientStatus, status["type"])
	assert.Equal(t, protocol.StatusOnline, status["status"])
	info, ok := status["clientInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/checkout", info["url"])

	// Agent reports a console event; viewer gets new_log.
	writeFrame(t, agent, protocol.ConsoleLog{
		Type:      protocol.TypeConsoleLog,
		SessionID: "sess-e2e",
		Level:     protocol.LevelError,
		Message:   "payment failed",
		Timestamp: "2026-01-15T10:30:00.000Z",
		URL:       "https://example.com/checkout",
	})

	newLog := readFrame(t, viewer)
	assert.Equal(t, protocol.TypeNewLog, newLog["type"])
	assert.Equal(t, protocol.LevelError, newLog["level"])
	assert.Equal(t, "payment failed", newLog["message"])
	assert.Equal(t, "2026-01-15T10:30:00.000Z", newLog["timestamp"])

	// Viewer issues a command; agent receives it verbatim.
	writeFrame(t, viewer, protocol.ExecuteCommand{
		Type:      protocol.TypeExecuteCommand,
		SessionID: "sess-e2e",
		CommandID: "cmd-1",
		Command:   "document.title",
	})

	cmd := readFrame(t, agent)
	assert.Equal(t, protocol.TypeExecuteCommand, cmd["type"])
	assert.Equal(t, "cmd-1", cmd["commandId"])
	assert.Equal(t, "document.title", cmd["command"])

	// Agent replies; viewer receives the result verbatim.
	writeFrame(t, agent, protocol.CommandResult{
		Type:      protocol.TypeCommandResult,
		SessionID: "sess-e2e",
		CommandID: "cmd-1",
		Result:    "Checkout - Example",
		Success:   true,
	})

	result := readFrame(t, viewer)
	assert.Equal(t, protocol.TypeCommandResult, result["type"])
	assert.Equal(t, "cmd-1", result["commandId"])
	assert.Equal(t, "Checkout - Example", result["result"])
	assert.Equal(t, true, result["success"])
}

func TestViewerBeforeAgent(t *testing.T) {
	_, srv := newTestGateway(t)

	viewer := dialWS(t, srv)
	writeFrame(t, viewer, protocol.ViewerConnect{
		Type:      protocol.TypeViewerConnect,
		SessionID: "sess-early",
	})

	history := readFrame(t, viewer)
	assert.Equal(t, protocol.TypeLogsHistory, history["type"])

	status := readFrame(t, viewer)
	assert.Equal(t, protocol.TypeClientStatus, status["type"])
	assert.Equal(t, protocol.StatusOffline, status["status"])

	// Agent arrival flips the status to online.
	agent := dialWS(t, srv)
	writeFrame(t, agent, protocol.ClientConnect{
		Type:      protocol.TypeClientConnect,
		SessionID: "sess-early",
		URL:       "https://example.com",
		UserAgent: "TestBrowser/1.0",
	})

	online := readFrame(t, viewer)
	assert.Equal(t, protocol.TypeClientStatus, online["type"])
	assert.Equal(t, protocol.StatusOnline, online["status"])
}

func TestLateViewerReceivesBacklog(t *testing.T) {
	_, srv := newTestGateway(t)

	agent := dialWS(t, srv)
	writeFrame(t, agent, protocol.ClientConnect{
		Type:      protocol.TypeClientConnect,
		SessionID: "sess-backlog",
		URL:       "https://example.com",
		UserAgent: "TestBrowser/1.0",
	})

	for i := 0; i < 3; i++ {
		writeFrame(t, agent, protocol.ConsoleLog{
			Type:      protocol.TypeConsoleLog,
			SessionID: "sess-backlog",
			Level:     protocol.LevelLog,
			Message:   "startup",
			Timestamp: "2026-01-15T10:30:00.000Z",
		})
	}

	// The agent's frames race the viewer attach; wait until all three are
	// buffered before attaching.
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/sessions")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Sessions []struct {
				LogCount int `json:"logCount"`
			} `json:"sessions"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		return len(body.Sessions) == 1 && body.Sessions[0].LogCount == 3
	}, 2*time.Second, 10*time.Millisecond)

	viewer := dialWS(t, srv)
	writeFrame(t, viewer, protocol.ViewerConnect{
		Type:      protocol.TypeViewerConnect,
		SessionID: "sess-backlog",
	})

	history := readFrame(t, viewer)
	logs, ok := history["logs"].([]any)
	require.True(t, ok)
	assert.Len(t, logs, 3)
}

func TestAgentDisconnectNotifiesViewer(t *testing.T) {
	gw, srv := newTestGateway(t)

	agent := dialWS(t, srv)
	writeFrame(t, agent, protocol.ClientConnect{
		Type:      protocol.TypeClientConnect,
		SessionID: "sess-drop",
		URL:       "https://example.com",
		UserAgent: "TestBrowser/1.0",
	})
	waitForAgent(t, gw, "sess-drop")

	viewer := dialWS(t, srv)
	writeFrame(t, viewer, protocol.ViewerConnect{
		Type:      protocol.TypeViewerConnect,
		SessionID: "sess-drop",
	})
	readFrame(t, viewer) // logs_history
	readFrame(t, viewer) // client_status online

	require.NoError(t, agent.Close())

	offline := readFrame(t, viewer)
	assert.Equal(t, protocol.TypeClientStatus, offline["type"])
	assert.Equal(t, protocol.StatusOffline, offline["status"])
}

func TestMalformedFramesIgnored(t *testing.T) {
	gw, srv := newTestGateway(t)

	agent := dialWS(t, srv)
	writeFrame(t, agent, protocol.ClientConnect{
		Type:      protocol.TypeClientConnect,
		SessionID: "sess-garbage",
		URL:       "https://example.com",
		UserAgent: "TestBrowser/1.0",
	})
	waitForAgent(t, gw, "sess-garbage")

	require.NoError(t, agent.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, agent.WriteMessage(websocket.TextMessage, []byte(`{"no":"type"}`)))
	require.NoError(t, agent.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus_kind"}`)))

	// The connection survives and the session still relays.
	viewer := dialWS(t, srv)
	writeFrame(t, viewer, protocol.ViewerConnect{
		Type:      protocol.TypeViewerConnect,
		SessionID: "sess-garbage",
	})

	history := readFrame(t, viewer)
	assert.Equal(t, protocol.TypeLogsHistory, history["type"])
	status := readFrame(t, viewer)
	assert.Equal(t, protocol.StatusOnline, status["status"])
}

func TestOversizeFrameDetachesConnection(t *testing.T) {
	gw, srv := newTestGateway(t)

	agent := dialWS(t, srv)
	writeFrame(t, agent, protocol.ClientConnect{
		Type:      protocol.TypeClientConnect,
		SessionID: "sess-oversize",
		URL:       "https://example.com",
		UserAgent: "TestBrowser/1.0",
	})
	waitForAgent(t, gw, "sess-oversize")

	// Well past the broker's frame limit. The broker drops the connection,
	// which runs the detach transition and deletes the now-empty session.
	huge := make([]byte, 2<<20)
	for i := range huge {
		huge[i] = 'a'
	}
	_ = agent.WriteMessage(websocket.TextMessage, huge)

	require.Eventually(t, func() bool {
		return gw.Registry().Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthEndpoints(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Not ready with no sessions.
	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	agent := dialWS(t, srv)
	writeFrame(t, agent, protocol.ClientConnect{
		Type:      protocol.TypeClientConnect,
		SessionID: "sess-health",
		URL:       "https://example.com",
		UserAgent: "TestBrowser/1.0",
	})

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/health/ready")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
}

func TestListSessions(t *testing.T) {
	gw, srv := newTestGateway(t)

	agent := dialWS(t, srv)
	writeFrame(t, agent, protocol.ClientConnect{
		Type:      protocol.TypeClientConnect,
		SessionID: "sess-list",
		URL:       "https://example.com/page",
		UserAgent: "TestBrowser/1.0",
	})

	require.Eventually(t, func() bool {
		return gw.Registry().Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/api/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Sessions []struct {
			ID          string `json:"id"`
			AgentOnline bool   `json:"agentOnline"`
		} `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "sess-list", body.Sessions[0].ID)
	assert.True(t, body.Sessions[0].AgentOnline)

	resp2, err := http.Post(srv.URL+"/api/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestAgentScriptServed(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/agent.js?session=sess-script")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sess-script")
	assert.Contains(t, string(body), "/agent-full.js")
}
