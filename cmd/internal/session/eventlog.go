package session

import (
	"sync"
	"time"
)

// DefaultEventLogCap bounds each session's audit trail.
const DefaultEventLogCap = 100

// Event is one immutable audit entry in a session's history.
type Event struct {
	TS      time.Time      `json:"ts"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EventLog keeps a bounded, most-recent-first history per session.
//
// It is an audit window, not a replay source: entries beyond the cap are
// dropped silently, oldest first. Longer-term audit belongs to an external
// collaborator.
type EventLog struct {
	mu  sync.Mutex
	cap int

	entries map[string][]Event
}

// NewEventLog constructs an EventLog with the given per-session cap.
// Non-positive caps fall back to DefaultEventLogCap.
func NewEventLog(capPerSession int) *EventLog {
	if capPerSession <= 0 {
		capPerSession = DefaultEventLogCap
	}
	return &EventLog{
		cap:     capPerSession,
		entries: make(map[string][]Event),
	}
}

// Append pushes an event to the front of the session's buffer, evicting the
// oldest entry once the cap is exceeded.
func (l *EventLog) Append(sessionID string, ev Event) {
	if sessionID == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	buf := l.entries[sessionID]
	buf = append(buf, Event{})
	copy(buf[1:], buf)
	buf[0] = ev

	if len(buf) > l.cap {
		buf = buf[:l.cap]
	}
	l.entries[sessionID] = buf
}

// List returns a copy of the session's buffer, most-recent-first.
// Unknown sessions yield an empty slice, not an error.
func (l *EventLog) List(sessionID string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := l.entries[sessionID]
	out := make([]Event, len(buf))
	copy(out, buf)
	return out
}
