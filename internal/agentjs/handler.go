// ABOUTME: Serves the injectable agent bootstrap: a one-line loader plus the
// ABOUTME: full runtime script, both templated with a session identifier.

// Package agentjs delivers the agent runtime that executes inside the
// debugged page. The script evaluates whatever expressions a viewer sends,
// with full page privileges and no restriction; the broker offers no
// sandbox. Do not point it at pages you do not control.
package agentjs

import (
	"bytes"
	_ "embed"
	"log/slog"
	"net/http"
	"strings"
	"text/template"

	"github.com/google/uuid"
)

//go:embed loader.js.tmpl
var loaderJS string

//go:embed agent.js.tmpl
var agentJS string

var (
	loaderTmpl = template.Must(template.New("loader").Parse(loaderJS))
	agentTmpl  = template.Must(template.New("agent").Parse(agentJS))
)

// loaderData parameterizes the one-line loader.
type loaderData struct {
	ScriptURL string
	SessionID string
}

// agentData parameterizes the full runtime script.
type agentData struct {
	SessionID string
	WSURL     string
}

// Handler serves /agent.js and /agent-full.js. A session identifier comes
// from the ?session query parameter, or is freshly generated so that a bare
// script tag still yields a working (if unadvertised) session.
type Handler struct {
	// publicURL overrides address derivation from the request Host,
	// for brokers behind a proxy or funnel. Empty means derive.
	publicURL string
	logger    *slog.Logger
}

// NewHandler creates the script handler. publicURL may be empty.
func NewHandler(publicURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		publicURL: publicURL,
		logger:    logger.With("component", "agentjs"),
	}
}

// RegisterRoutes mounts the script endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/agent.js", h.handleLoader)
	mux.HandleFunc("/agent-full.js", h.handleAgent)
}

func (h *Handler) handleLoader(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFrom(r)
	base, _ := h.baseURLs(r)

	h.render(w, loaderTmpl, loaderData{
		ScriptURL: base + "/agent-full.js",
		SessionID: sessionID,
	})
	h.logger.Debug("served loader", "session_id", sessionID)
}

func (h *Handler) handleAgent(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFrom(r)
	_, wsBase := h.baseURLs(r)

	h.render(w, agentTmpl, agentData{
		SessionID: sessionID,
		WSURL:     wsBase + "/ws",
	})
	h.logger.Debug("served agent script", "session_id", sessionID)
}

func (h *Handler) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		h.logger.Error("template execution failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	_, _ = w.Write(buf.Bytes())
}

// sessionFrom extracts the session identifier, generating one when absent.
// Uniqueness is not enforced; colliding identifiers simply share a session.
func sessionFrom(r *http.Request) string {
	if s := r.URL.Query().Get("session"); s != "" {
		return s
	}
	return uuid.New().String()
}

// baseURLs derives the http and ws base URLs the generated scripts should
// dial, preferring the configured public URL over the request Host.
func (h *Handler) baseURLs(r *http.Request) (httpBase, wsBase string) {
	if h.publicURL != "" {
		return h.publicURL, toWSScheme(h.publicURL)
	}

	scheme, wsScheme := "http", "ws"
	if r.TLS != nil {
		scheme, wsScheme = "https", "wss"
	}
	return scheme + "://" + r.Host, wsScheme + "://" + r.Host
}

// toWSScheme maps an http(s) base URL to its websocket counterpart; a secure
// base must yield wss, browsers refuse plaintext ws from HTTPS pages.
func toWSScheme(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return "ws://" + url
}
