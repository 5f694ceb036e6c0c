package store

import (
	"sync"

	domain "github.com/oshokin/alarm-monitor/internal/domain/monitor"
)

// CommandSource exposes the command state owned by the dispatcher.
type CommandSource interface {
	State() domain.CommandState
}

// Store aggregates the live state. All methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	// alerts is a ring of at most capacity events; head is the oldest slot once full.
	alerts   []domain.AlertEvent
	head     int
	capacity int

	logs       []domain.LogEntry
	connection domain.ConnectionState
	commands   CommandSource
	closed     bool

	// subscribers receive a coalesced signal after every applied mutation.
	subscribers map[chan struct{}]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithRetention keeps only the newest n alerts. Zero or negative keeps all of them.
func WithRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithCommandSource makes View report the state of src.
func WithCommandSource(src CommandSource) Option {
	return func(s *Store) {
		s.commands = src
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		connection:  domain.DisconnectedState(),
		subscribers: make(map[chan struct{}]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AppendAlert appends ev after every alert already stored. When retention
// is reached the oldest alert is evicted.
func (s *Store) AppendAlert(ev domain.AlertEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	switch {
	case s.capacity == 0 || len(s.alerts) < s.capacity:
		s.alerts = append(s.alerts, ev)
	default:
		s.alerts[s.head] = ev
		s.head = (s.head + 1) % s.capacity
	}

	s.notifyLocked()
}

// ReplaceLogs swaps the whole log snapshot for entries.
func (s *Store) ReplaceLogs(entries []domain.LogEntry) {
	snapshot := append([]domain.LogEntry(nil), entries...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.logs = snapshot
	s.notifyLocked()
}

// SetConnectionState records the feed connection state.
func (s *Store) SetConnectionState(state domain.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.connection = state
	s.notifyLocked()
}

// Refresh signals subscribers without changing the state. It is used when
// the command source changed.
func (s *Store) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.notifyLocked()
}

// View returns a consistent deep copy of the current state.
func (s *Store) View() domain.View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := make([]domain.AlertEvent, 0, len(s.alerts))
	alerts = append(alerts, s.alerts[s.head:]...)
	alerts = append(alerts, s.alerts[:s.head]...)

	view := domain.View{
		Alerts:     alerts,
		Logs:       append([]domain.LogEntry(nil), s.logs...),
		Connection: s.connection,
	}

	if s.commands != nil {
		view.Command = s.commands.State()
	}

	return view
}

// Subscribe returns a channel signalled after mutations and a release function.
// Signals coalesce; receivers call View to read the state.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			s.mu.Unlock()
		})
	}
}

// Close tears the store down. Later mutations are discarded; View keeps
// returning the last state.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
}

// Closed reports whether Close was called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.closed
}

// notifyLocked signals subscribers without blocking. s.mu must be held.
func (s *Store) notifyLocked() {
	for ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
