package auth

import (
	"sync"
)

// Source supplies the current bearer token. An empty string means no token.
type Source interface {
	Token() string
}

// Watcher is a Source that signals value changes.
//
// Subscribe returns a channel receiving a value after each change and a
// function releasing the subscription. Signals coalesce: a slow receiver sees
// one signal for several quick changes and reads the latest token.
type Watcher interface {
	Source
	Subscribe() (<-chan struct{}, func())
}

// Static is a Source that never changes.
type Static string

// Token implements Source.
func (s Static) Token() string {
	return string(s)
}

// Memory is a Watcher holding the token in memory.
type Memory struct {
	mu          sync.RWMutex
	token       string
	subscribers map[chan struct{}]struct{}
}

// NewMemory creates a Memory source holding token.
func NewMemory(token string) *Memory {
	return &Memory{
		token:       token,
		subscribers: make(map[chan struct{}]struct{}),
	}
}

// Token implements Source.
func (m *Memory) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.token
}

// Set replaces the token and notifies subscribers when the value differs.
// It reports whether the value changed.
func (m *Memory) Set(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token == m.token {
		return false
	}

	m.token = token

	for ch := range m.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending.
		}
	}

	return true
}

// Subscribe implements Watcher.
func (m *Memory) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, ch)
			m.mu.Unlock()
		})
	}
}
