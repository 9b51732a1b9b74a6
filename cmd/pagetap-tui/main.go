// ABOUTME: Terminal viewer for pagetap debug sessions.
// ABOUTME: Streams console logs from a remote page and evaluates expressions in it.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pagetap/pagetap/internal/protocol"
)

func main() {
	server := flag.String("server", "ws://localhost:3001", "Broker WebSocket base URL")
	session := flag.String("session", "", "Session ID to attach to (required)")
	flag.Parse()

	if *session == "" {
		fmt.Fprintln(os.Stderr, "Usage: pagetap-tui -session <id> [-server ws://host:port]")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *server, *session); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, server, sessionID string) error {
	wsURL := strings.TrimSuffix(server, "/") + "/ws"
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", wsURL, err)
	}
	defer ws.Close()

	fmt.Printf("pagetap-tui attached to session %s via %s\n", sessionID, wsURL)
	fmt.Println("Type a JS expression and press Enter to evaluate it in the page. Ctrl+C to quit.")
	fmt.Println()

	attach := protocol.ViewerConnect{
		Type:      protocol.TypeViewerConnect,
		SessionID: sessionID,
	}
	if err := writeJSON(ws, attach); err != nil {
		return fmt.Errorf("attaching viewer: %w", err)
	}

	// Reader goroutine prints broker frames until the socket dies.
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			printFrame(data)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()

	scanner := bufio.NewScanner(os.Stdin)
	inputCh := make(chan string)
	go func() {
		for scanner.Scan() {
			inputCh <- scanner.Text()
		}
		close(inputCh)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		case line, ok := <-inputCh:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			cmd := protocol.ExecuteCommand{
				Type:      protocol.TypeExecuteCommand,
				SessionID: sessionID,
				CommandID: uuid.New().String(),
				Command:   line,
			}
			if err := writeJSON(ws, cmd); err != nil {
				return fmt.Errorf("sending command: %w", err)
			}
		}
	}
}

func writeJSON(ws *websocket.Conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

// printFrame renders one broker frame to the terminal.
func printFrame(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		return
	}

	switch env.Type {
	case protocol.TypeLogsHistory:
		var hist protocol.LogsHistory
		if err := json.Unmarshal(data, &hist); err != nil {
			return
		}
		gray := color.New(color.FgHiBlack)
		gray.Printf("--- %d buffered logs ---\n", len(hist.Logs))
		for _, ev := range hist.Logs {
			printLog(ev.Level, ev.Timestamp, ev.Message)
		}
		if len(hist.Logs) > 0 {
			gray.Println("--- end of history ---")
		}

	case protocol.TypeNewLog:
		var nl protocol.NewLog
		if err := json.Unmarshal(data, &nl); err != nil {
			return
		}
		printLog(nl.Level, nl.Timestamp, nl.Message)

	case protocol.TypeClientStatus:
		var st protocol.ClientStatus
		if err := json.Unmarshal(data, &st); err != nil {
			return
		}
		if st.Status == protocol.StatusOnline {
			green := color.New(color.FgGreen)
			green.Print("● page online")
			if st.ClientInfo != nil {
				fmt.Printf("  %s", st.ClientInfo.URL)
			}
			fmt.Println()
		} else {
			color.New(color.FgRed).Println("● page offline")
		}

	case protocol.TypeCommandResult:
		var res protocol.CommandResult
		if err := json.Unmarshal(data, &res); err != nil {
			return
		}
		if res.Success {
			color.New(color.FgCyan).Println("=> " + res.Result)
		} else {
			color.New(color.FgRed).Println("!! " + res.Result)
		}
	}
}

func printLog(level, timestamp, message string) {
	ts := color.HiBlackString(timestamp)

	var tag string
	switch level {
	case protocol.LevelError:
		tag = color.New(color.FgRed, color.Bold).Sprint("ERR")
	case protocol.LevelWarn:
		tag = color.YellowString("WRN")
	case protocol.LevelInfo:
		tag = color.CyanString("INF")
	default:
		tag = color.WhiteString("LOG")
	}

	fmt.Printf("%s %s %s\n", ts, tag, message)
}
