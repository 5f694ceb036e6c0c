package monitor

import (
	"fmt"
	"time"
)

// AlertEvent is one message received from the alert feed.
type AlertEvent struct {
	// ID is set only when the payload carried an identifier.
	ID string `json:"id,omitempty"`
	// Payload is the message text exactly as received.
	Payload string `json:"payload"`
	// ReceivedAt is the receipt sequence number, strictly increasing per stream client.
	ReceivedAt uint64 `json:"received_at"`
}

// LogEntry is one row of the backend event log.
type LogEntry struct {
	// ID identifies the row on the backend.
	ID string `json:"id"`
	// Time is the timestamp as rendered by the backend.
	Time string `json:"time"`
	// Event is the human readable event text.
	Event string `json:"event"`
}

// timeLayouts are the renderings Timestamp understands, most specific first.
//
//nolint:gochecknoglobals // Read-only lookup table.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp parses Time. Backends without a zone are read as UTC.
func (e LogEntry) Timestamp() (time.Time, bool) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, e.Time); err == nil {
			return ts, true
		}
	}

	return time.Time{}, false
}

// ConnectionPhase enumerates the feed connection lifecycle.
type ConnectionPhase int

// Connection phases.
const (
	Disconnected ConnectionPhase = iota
	Connecting
	Connected
	Backoff
)

// String implements fmt.Stringer.
func (p ConnectionPhase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Backoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// ConnectionState is the feed connection state. Attempt and NextRetryAt are
// only set in the Backoff phase.
type ConnectionState struct {
	Phase       ConnectionPhase
	Attempt     int
	NextRetryAt time.Time
}

// DisconnectedState is the zero connection state.
func DisconnectedState() ConnectionState {
	return ConnectionState{Phase: Disconnected}
}

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	if s.Phase != Backoff {
		return s.Phase.String()
	}

	return fmt.Sprintf("backoff (attempt %d, retry at %s)", s.Attempt, s.NextRetryAt.Format(time.RFC3339))
}

// CommandPhase enumerates the arm command lifecycle.
type CommandPhase int

// Command phases.
const (
	Idle CommandPhase = iota
	Sending
	Succeeded
	Failed
)

// String implements fmt.Stringer.
func (p CommandPhase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// CommandState is the state of the last arm command. Reason is set only in the Failed phase.
type CommandState struct {
	Phase  CommandPhase
	Reason string
}

// String implements fmt.Stringer.
func (s CommandState) String() string {
	if s.Phase == Failed && s.Reason != "" {
		return "failed: " + s.Reason
	}

	return s.Phase.String()
}

// View is a consistent snapshot of the reconciled state.
type View struct {
	Alerts     []AlertEvent
	Logs       []LogEntry
	Connection ConnectionState
	Command    CommandState
}

// Clone returns a deep copy of the view.
func (v View) Clone() View {
	v.Alerts = append([]AlertEvent(nil), v.Alerts...)
	v.Logs = append([]LogEntry(nil), v.Logs...)

	return v
}
