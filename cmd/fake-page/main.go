// ABOUTME: Minimal fake page agent for E2E testing — connects via WebSocket, emits logs, echoes commands.
// ABOUTME: Usage: fake-page [-server ws://localhost:3001] [-session test-session]

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pagetap/pagetap/internal/protocol"
)

const reconnectDelay = 3 * time.Second

func main() {
	server := flag.String("server", "ws://localhost:3001", "Broker WebSocket base URL")
	session := flag.String("session", "test-session", "Session ID to announce")
	pageURL := flag.String("url", "https://example.com/fake-page", "Page URL to report")
	interval := flag.Duration("interval", 5*time.Second, "Delay between emitted log lines")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	wsURL := strings.TrimSuffix(*server, "/") + "/ws"

	// Reconnect loop mirrors the browser agent: retry every few seconds
	// until the context is canceled.
	for {
		if err := run(ctx, wsURL, *session, *pageURL, *interval); err != nil {
			log.Printf("session ended: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func run(ctx context.Context, wsURL, sessionID, pageURL string, interval time.Duration) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer ws.Close()

	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()

	// The heartbeat goroutine and the command-echo loop both write; the
	// socket allows one writer at a time.
	w := &wsWriter{ws: ws}

	announce := protocol.ClientConnect{
		Type:      protocol.TypeClientConnect,
		SessionID: sessionID,
		URL:       pageURL,
		UserAgent: "fake-page/1.0",
	}
	if err := w.writeJSON(announce); err != nil {
		return fmt.Errorf("announcing: %w", err)
	}
	fmt.Fprintf(os.Stderr, "connected as session %s\n", sessionID)

	// Emit a log line on a ticker while answering commands.
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		n := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n++
				ev := protocol.ConsoleLog{
					Type:      protocol.TypeConsoleLog,
					SessionID: sessionID,
					Level:     protocol.LevelLog,
					Message:   fmt.Sprintf("heartbeat %d", n),
					Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
					URL:       pageURL,
				}
				if err := w.writeJSON(ev); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("recv: %w", err)
		}

		var cmd protocol.ExecuteCommand
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type != protocol.TypeExecuteCommand {
			continue
		}

		log.Printf("received command [%s]: %s", cmd.CommandID, cmd.Command)

		result := protocol.CommandResult{
			Type:      protocol.TypeCommandResult,
			SessionID: sessionID,
			CommandID: cmd.CommandID,
			Result:    fmt.Sprintf("echo: %s", cmd.Command),
			Success:   true,
		}
		if err := w.writeJSON(result); err != nil {
			return fmt.Errorf("send result: %w", err)
		}
	}
}

// wsWriter serializes frame writes onto a shared socket.
type wsWriter struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (w *wsWriter) writeJSON(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ws.WriteMessage(websocket.TextMessage, data)
}
