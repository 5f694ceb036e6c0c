package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oshokin/alarm-monitor/internal/auth"
	"github.com/oshokin/alarm-monitor/internal/command"
	domain "github.com/oshokin/alarm-monitor/internal/domain/monitor"
	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/store"
	"github.com/oshokin/alarm-monitor/internal/stream"
)

// LogFetcher retrieves the event log.
type LogFetcher interface {
	Fetch(ctx context.Context, token string) ([]domain.LogEntry, error)
}

// Commander sends state-changing commands.
type Commander interface {
	Arm(ctx context.Context, token string) (command.Ack, error)
	Disarm(ctx context.Context, token string) (command.Ack, error)
	State() domain.CommandState
	OnStateChange(fn func(domain.CommandState))
}

var (
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionStarted is returned by a second Start.
	ErrSessionStarted = errors.New("session already started")
)

// Session owns one run of the monitor.
type Session struct {
	// store receives every result and is the only thing readers look at.
	store *store.Store
	// feed is the alert feed client.
	feed *stream.Client
	// logs fetches the event log.
	logs LogFetcher
	// commands sends arm and disarm.
	commands Commander
	// tokens supplies the bearer token and its change signal.
	tokens auth.Watcher

	// mu guards the lifecycle fields below.
	mu sync.Mutex
	// ctx is the context given to Start; fetches run under it.
	ctx         context.Context //nolint:containedctx // Fetches outlive the call that triggers them.
	started     bool
	closed      bool
	handle      *stream.Handle
	stopWatch   context.CancelFunc
	unsubscribe func()

	// fetches tracks in-flight log fetches and the token watch loop.
	fetches sync.WaitGroup
}

// NewSession creates a session. The store should report the command state
// of commands (store.WithCommandSource).
func NewSession(st *store.Store, feed *stream.Client, logs LogFetcher, commands Commander, tokens auth.Watcher) *Session {
	s := &Session{
		store:    st,
		feed:     feed,
		logs:     logs,
		commands: commands,
		tokens:   tokens,
	}

	feed.OnEvent(st.AppendAlert)
	feed.OnStateChange(st.SetConnectionState)
	commands.OnStateChange(func(domain.CommandState) {
		st.Refresh()
	})

	return s
}

// Start connects the feed, subscribes to token changes and fetches the log
// once. ctx bounds the whole session; Close ends it earlier.
func (s *Session) Start(ctx context.Context) error {
	ctx = logger.WithName(ctx, "session")

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrSessionClosed
	case s.started:
		return ErrSessionStarted
	}

	handle, err := s.feed.Connect(ctx, s.tokens)
	if err != nil {
		return fmt.Errorf("connect feed: %w", err)
	}

	signals, unsubscribe := s.tokens.Subscribe()
	watchCtx, stopWatch := context.WithCancel(ctx)

	s.started = true
	s.ctx = ctx
	s.handle = handle
	s.unsubscribe = unsubscribe
	s.stopWatch = stopWatch

	s.fetches.Add(1)

	go func() {
		defer s.fetches.Done()

		s.watchTokens(watchCtx, signals)
	}()

	s.spawnFetchLocked(ctx, s.tokens.Token(), "start")

	return nil
}

// watchTokens runs onTokenChange for every change signal.
func (s *Session) watchTokens(ctx context.Context, signals <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			s.onTokenChange()
		}
	}
}

// onTokenChange fetches the log with the new token. It never waits for a
// fetch started with an older token; whichever completes last wins.
func (s *Session) onTokenChange() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spawnFetchLocked(s.ctx, s.tokens.Token(), "token change")
}

// Refresh fetches the log with the current token.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.spawnFetchLocked(s.ctx, s.tokens.Token(), "refresh")
}

// spawnFetchLocked starts one fetch. s.mu must be held.
func (s *Session) spawnFetchLocked(ctx context.Context, token, reason string) {
	if s.closed {
		return
	}

	ctx = logger.WithKV(ctx, "trigger", reason)

	if token == "" {
		logger.Warn(ctx, "No token, skipping log fetch")
		return
	}

	s.fetches.Add(1)

	go func() {
		defer s.fetches.Done()

		entries, err := s.logs.Fetch(ctx, token)
		if err != nil {
			// The previous snapshot stays in place.
			logger.ErrorKV(ctx, "Log fetch failed", "error", err)
			return
		}

		s.store.ReplaceLogs(entries)
		logger.DebugKV(ctx, "Log snapshot replaced", "entries", len(entries))
	}()
}

// Arm sends the arm command with the current token.
func (s *Session) Arm(ctx context.Context) (command.Ack, error) {
	if s.isClosed() {
		return command.Ack{}, ErrSessionClosed
	}

	return s.commands.Arm(ctx, s.tokens.Token())
}

// Disarm sends the disarm command with the current token.
func (s *Session) Disarm(ctx context.Context) (command.Ack, error) {
	if s.isClosed() {
		return command.Ack{}, ErrSessionClosed
	}

	return s.commands.Disarm(ctx, s.tokens.Token())
}

// View returns the current reconciled state.
func (s *Session) View() domain.View {
	return s.store.View()
}

// Subscribe forwards to the store change signal.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	return s.store.Subscribe()
}

// Close disconnects the feed and tears the store down. Results of fetches
// still in flight are discarded. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return
	}

	s.closed = true
	handle, stopWatch, unsubscribe := s.handle, s.stopWatch, s.unsubscribe
	s.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}

	if unsubscribe != nil {
		unsubscribe()
	}

	// The final Disconnected state reaches the store before it closes.
	handle.Disconnect()
	s.store.Close()
}

// Wait blocks until in-flight fetches and the token watch loop have finished.
func (s *Session) Wait() {
	s.fetches.Wait()
}

// isClosed reports whether Close was called.
func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}
