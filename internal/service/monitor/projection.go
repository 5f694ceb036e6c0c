package monitor

import (
	"context"
	"fmt"
	"io"

	domain "github.com/oshokin/alarm-monitor/internal/domain/monitor"
)

// Projection renders view changes as text lines. It keeps only what it has
// already printed; the store stays the source of truth.
type Projection struct {
	out io.Writer

	lastAlert  uint64
	connection domain.ConnectionState
	command    domain.CommandState
	logs       []domain.LogEntry
	rendered   bool
}

// NewProjection creates a projection writing to out.
func NewProjection(out io.Writer) *Projection {
	return &Projection{out: out}
}

// Render prints whatever changed since the previous call.
func (p *Projection) Render(view domain.View) error {
	var lines []string

	if !p.rendered || view.Connection != p.connection {
		lines = append(lines, "[feed] "+view.Connection.String())
		p.connection = view.Connection
	}

	for _, alert := range view.Alerts {
		if alert.ReceivedAt <= p.lastAlert {
			continue
		}

		lines = append(lines, "[alert] "+alert.Payload)
		p.lastAlert = alert.ReceivedAt
	}

	if !p.rendered || !sameLogs(view.Logs, p.logs) {
		lines = append(lines, formatLogs(view.Logs)...)
		p.logs = view.Logs
	}

	if (p.rendered && view.Command != p.command) || (!p.rendered && view.Command.Phase != domain.Idle) {
		lines = append(lines, "[command] "+view.Command.String())
	}

	p.command = view.Command
	p.rendered = true

	for _, line := range lines {
		if _, err := fmt.Fprintln(p.out, line); err != nil {
			return fmt.Errorf("write projection: %w", err)
		}
	}

	return nil
}

// Follow renders the session state on every change until ctx is done.
func (p *Projection) Follow(ctx context.Context, s *Session) error {
	changes, release := s.Subscribe()
	defer release()

	if err := p.Render(s.View()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			if err := p.Render(s.View()); err != nil {
				return err
			}
		}
	}
}

// formatLogs renders a log snapshot, newest entries first as the backend sends them.
func formatLogs(entries []domain.LogEntry) []string {
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, fmt.Sprintf("[logs] %d entries", len(entries)))

	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("  %s  %s", e.Time, e.Event))
	}

	return lines
}

// sameLogs compares two snapshots entry by entry.
func sameLogs(a, b []domain.LogEntry) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
