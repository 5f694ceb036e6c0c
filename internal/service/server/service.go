package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	api "github.com/oshokin/alarm-monitor/internal/api/http/hub"
	domain "github.com/oshokin/alarm-monitor/internal/domain/alarm"
	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/repository/eventlog"
	repo "github.com/oshokin/alarm-monitor/internal/repository/state"
)

// EventLog stores users and log rows.
type EventLog interface {
	Append(ctx context.Context, event string, at time.Time) (eventlog.Entry, error)
	Latest(ctx context.Context, limit int) ([]eventlog.Entry, error)
	Authenticate(ctx context.Context, username, pin string) (*domain.Actor, error)
}

// Publisher pushes a message to live feed subscribers.
type Publisher interface {
	Publish(message string)
}

// service encapsulates the hub business logic and persistence orchestration.
// It is unexported to keep the transport decoupled from the implementation.
type service struct {
	// repo handles persistent storage of the armed state.
	repo repo.Repository
	// events holds users and the event log.
	events EventLog
	// feed receives every logged event worth a live alert.
	feed Publisher
	// state is the current in-memory armed state.
	state *domain.State
	// mu protects concurrent access to the armed state.
	mu sync.RWMutex
	// now is the clock.
	now func() time.Time
}

// newService creates a service backed by the provided repositories.
func newService(ctx context.Context, repository repo.Repository, events EventLog, feed Publisher) (*service, error) {
	s := &service{
		repo:   repository,
		events: events,
		feed:   feed,
		state: &domain.State{
			Timestamp: time.Now(),
			Armed:     false,
		},
		now: time.Now,
	}

	if repository == nil {
		return s, nil
	}

	state, err := repository.Load(ctx)
	switch {
	case err == nil:
		if state != nil {
			s.state = state
		}
	case errors.Is(err, repo.ErrNotFound):
		// Keep default state.
	default:
		return nil, fmt.Errorf("load state: %w", err)
	}

	return s, nil
}

// Authenticate checks a user's PIN.
func (s *service) Authenticate(ctx context.Context, username, pin string) (*domain.Actor, error) {
	actor, err := s.events.Authenticate(ctx, username, pin)
	if err != nil {
		logger.WarnKV(ctx, "Login rejected", "username", username, "error", err)
		return nil, err
	}

	logger.InfoKV(ctx, "Login accepted", "username", actor.Username, "role", actor.Role)

	return actor, nil
}

// Logs returns the newest log rows.
func (s *service) Logs(ctx context.Context, limit int) ([]eventlog.Entry, error) {
	return s.events.Latest(ctx, limit)
}

// SetArmed updates the armed state, persists it, logs the transition and
// broadcasts it on the feed.
func (s *service) SetArmed(ctx context.Context, actor *domain.Actor, armed bool) (*domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := &domain.State{
		Timestamp: s.now(),
		LastActor: actor.Clone(),
		Armed:     armed,
	}

	if s.repo != nil {
		if err := s.repo.Save(ctx, next); err != nil {
			logger.Errorf(ctx, "Failed to persist armed state: %v", err)

			return nil, fmt.Errorf("persist state: %w", err)
		}
	}

	s.state = next

	if err := s.record(ctx, next.EventText(), true); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Armed state updated", "armed", s.state.Armed, "actor", s.state.LastActor)

	return s.state.Clone(), nil
}

// State returns the current armed state.
func (s *service) State() *domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.Clone()
}

// Unlock records an unlock by an admin.
func (s *service) Unlock(ctx context.Context, actor *domain.Actor) error {
	if actor == nil || actor.Role != domain.RoleAdmin {
		logger.WarnKV(ctx, "Unlock refused", "actor", actor)
		return api.ErrForbidden
	}

	return s.record(ctx, "Lock unlocked by "+actor.Username, false)
}

// Alert records a sensor alert and broadcasts it.
func (s *service) Alert(ctx context.Context, message string) error {
	return s.record(ctx, "ALERT: "+message, true)
}

// record appends event to the log and optionally broadcasts it.
func (s *service) record(ctx context.Context, event string, broadcast bool) error {
	if _, err := s.events.Append(ctx, event, s.now()); err != nil {
		return fmt.Errorf("append log: %w", err)
	}

	if broadcast && s.feed != nil {
		s.feed.Publish(event)
	}

	return nil
}
