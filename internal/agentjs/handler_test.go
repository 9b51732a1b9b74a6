// ABOUTME: Tests for script endpoint templating: session propagation, URL
// ABOUTME: derivation, and uuid fallback when no session is supplied.

package agentjs

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveScript(t *testing.T, h *Handler, target string) (string, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	rec := httptest.NewRecorder()

	switch req.URL.Path {
	case "/agent.js":
		h.handleLoader(rec, req)
	case "/agent-full.js":
		h.handleAgent(rec, req)
	default:
		t.Fatalf("unexpected path %s", req.URL.Path)
	}

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body), rec
}

func TestLoaderScript(t *testing.T) {
	h := NewHandler("", nil)

	t.Run("embeds session and full-script URL", func(t *testing.T) {
		body, rec := serveScript(t, h, "http://broker.test/agent.js?session=s1")

		assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
		assert.Contains(t, body, "http://broker.test/agent-full.js?session=s1")
		assert.Contains(t, body, "document.createElement")
	})

	t.Run("generates a uuid when session is absent", func(t *testing.T) {
		body, _ := serveScript(t, h, "http://broker.test/agent.js")

		// Extract the session query value and check it parses as a uuid.
		const marker = "agent-full.js?session="
		idx := strings.Index(body, marker)
		require.GreaterOrEqual(t, idx, 0)
		rest := body[idx+len(marker):]
		end := strings.Index(rest, `"`)
		require.Greater(t, end, 0)

		_, err := uuid.Parse(rest[:end])
		assert.NoError(t, err)
	})
}

func TestAgentScript(t *testing.T) {
	t.Run("embeds session and ws URL from request host", func(t *testing.T) {
		h := NewHandler("", nil)
		body, rec := serveScript(t, h, "http://broker.test:8080/agent-full.js?session=s9")

		assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
		assert.Contains(t, body, "const SESSION_ID = 's9'")
		assert.Contains(t, body, "const WS_URL = 'ws://broker.test:8080/ws'")
		assert.Contains(t, body, "client_connect")
		assert.Contains(t, body, "setInterval(connect, 3000)")
	})

	t.Run("prefers configured public URL", func(t *testing.T) {
		h := NewHandler("https://debug.example.com", nil)
		body, _ := serveScript(t, h, "http://localhost:8080/agent-full.js?session=s9")

		assert.Contains(t, body, "const WS_URL = 'wss://debug.example.com/ws'")
	})

	t.Run("plain public URL keeps plaintext ws", func(t *testing.T) {
		h := NewHandler("http://debug.internal:3001", nil)
		body, _ := serveScript(t, h, "http://localhost:8080/agent-full.js?session=s9")

		assert.Contains(t, body, "const WS_URL = 'ws://debug.internal:3001/ws'")
	})
}

func TestToWSScheme(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://debug.example.com", "wss://debug.example.com"},
		{"http://debug.internal:3001", "ws://debug.internal:3001"},
		{"debug.example.com", "ws://debug.example.com"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, toWSScheme(tt.in), "input %q", tt.in)
	}
}

func TestAgentScriptCapturesAllConsoleLevels(t *testing.T) {
	h := NewHandler("", nil)
	body, _ := serveScript(t, h, "http://x/agent-full.js?session=s")

	for _, level := range []string{"log", "error", "warn", "info"} {
		assert.Contains(t, body, "console."+level+" = function")
	}
	assert.Contains(t, body, "addEventListener('error'")
	assert.Contains(t, body, "addEventListener('unhandledrejection'")
}

