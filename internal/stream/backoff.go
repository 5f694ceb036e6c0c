package stream

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is the reconnect delay schedule: Base doubles per attempt up to Max,
// and returns to Base once a connection has stayed up for Stable.
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Stable time.Duration
}

// DefaultPolicy is used when the client is built without WithPolicy.
func DefaultPolicy() Policy {
	return Policy{
		Base:   500 * time.Millisecond,
		Max:    30 * time.Second,
		Stable: 10 * time.Second,
	}
}

// normalized fills zero fields from DefaultPolicy and keeps Max >= Base.
func (p Policy) normalized() Policy {
	def := DefaultPolicy()

	if p.Base <= 0 {
		p.Base = def.Base
	}

	if p.Max <= 0 {
		p.Max = def.Max
	}

	if p.Max < p.Base {
		p.Max = p.Base
	}

	if p.Stable <= 0 {
		p.Stable = def.Stable
	}

	return p
}

// retrySchedule counts consecutive failures and hands out delays.
// It is deterministic: no jitter, so delays never decrease between resets.
type retrySchedule struct {
	mu      sync.Mutex
	exp     *backoff.ExponentialBackOff
	attempt int
}

// newRetrySchedule builds a schedule for p.
func newRetrySchedule(p Policy) *retrySchedule {
	p = p.normalized()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Base
	exp.MaxInterval = p.Max
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	return &retrySchedule{exp: exp}
}

// Next records a failure and returns the attempt number and delay before the next dial.
func (s *retrySchedule) Next() (int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempt++

	// MaxElapsedTime is zero, so Stop is never returned.
	return s.attempt, s.exp.NextBackOff()
}

// Reset returns the schedule to its first delay.
func (s *retrySchedule) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempt = 0
	s.exp.Reset()
}

// Attempt returns the number of consecutive failures since the last reset.
func (s *retrySchedule) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.attempt
}
