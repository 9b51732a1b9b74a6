// ABOUTME: Bounded per-session FIFO of console events for backlog replay.
// ABOUTME: Drops from the head once the configured capacity is exceeded.

package session

import "github.com/pagetap/pagetap/internal/protocol"

// DefaultLogCap is the retained backlog per session.
const DefaultLogCap = 1000

// LogBuffer holds a session's console events in arrival order.
// Not safe for concurrent use; the Registry serializes access.
type LogBuffer struct {
	max  int
	logs []protocol.LogEvent
}

// NewLogBuffer creates a buffer retaining at most max events.
// A non-positive max falls back to DefaultLogCap.
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = DefaultLogCap
	}
	return &LogBuffer{max: max}
}

// Append pushes an event to the tail, evicting from the head when full.
func (b *LogBuffer) Append(ev protocol.LogEvent) {
	b.logs = append(b.logs, ev)
	if len(b.logs) > b.max {
		b.logs = b.logs[len(b.logs)-b.max:]
		// Re-slicing leaves evicted events live in the backing array;
		// copy down once it has grown past twice the cap.
		if cap(b.logs) > 2*b.max {
			trimmed := make([]protocol.LogEvent, b.max)
			copy(trimmed, b.logs)
			b.logs = trimmed
		}
	}
}

// Snapshot returns a copy of the buffer in insertion order, safe to
// serialize while the session keeps appending.
func (b *LogBuffer) Snapshot() []protocol.LogEvent {
	out := make([]protocol.LogEvent, len(b.logs))
	copy(out, b.logs)
	return out
}

// Len reports the number of retained events.
func (b *LogBuffer) Len() int {
	return len(b.logs)
}
