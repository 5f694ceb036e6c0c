package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oshokin/alarm-monitor/internal/logger"
)

// errQuit ends the console loop on "quit".
var errQuit = errors.New("quit requested")

// consoleHelp lists the console commands.
const consoleHelp = "commands: arm, disarm, refresh, status, help, quit"

// runConsole reads commands from in, one per line, until ctx is done, in is
// exhausted or "quit" is entered. Command outcomes show up in the projection.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, s *Session) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}

		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read console: %w", err)
			}

			return nil
		case line := <-lines:
			err := handleConsoleLine(ctx, out, s, strings.TrimSpace(line))
			if errors.Is(err, errQuit) {
				return err
			}

			if err != nil {
				logger.WarnKV(ctx, "Console command failed", "error", err)
			}
		}
	}
}

// handleConsoleLine runs one console command.
func handleConsoleLine(ctx context.Context, out io.Writer, s *Session, line string) error {
	switch strings.ToLower(line) {
	case "":
		return nil
	case "arm":
		_, err := s.Arm(ctx)
		return err
	case "disarm":
		_, err := s.Disarm(ctx)
		return err
	case "refresh":
		s.Refresh()
		return nil
	case "status":
		view := s.View()
		_, err := fmt.Fprintf(out, "[status] feed %s, %d alerts, %d log entries, command %s\n",
			view.Connection, len(view.Alerts), len(view.Logs), view.Command)

		return err
	case "quit", "exit":
		return errQuit
	default:
		_, err := fmt.Fprintln(out, consoleHelp)
		return err
	}
}
