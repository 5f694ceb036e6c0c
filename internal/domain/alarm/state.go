package alarm

import (
	"fmt"
	"time"
)

// Role is the permission level of a hub user.
type Role string

// Known roles.
const (
	RoleAdmin Role = "admin"
	RoleGuest Role = "guest"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleGuest
}

// Actor identifies who changed the armed state.
type Actor struct {
	// Username is the hub account name taken from the access token.
	Username string `json:"username"`
	// Role is the role claimed by the access token.
	Role Role `json:"role"`
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// String renders the actor for log lines.
func (a *Actor) String() string {
	if a == nil {
		return "<unknown>"
	}

	return a.Username
}

// State is the armed status of the appliance at a point in time.
type State struct {
	// Timestamp is when the state last changed.
	Timestamp time.Time `json:"timestamp"`
	// LastActor is who last changed it.
	LastActor *Actor `json:"last_actor,omitempty"`
	// Armed reports whether the system is armed.
	Armed bool `json:"armed"`
}

// Clone returns a copy of the state to avoid leaking internal references.
func (s *State) Clone() *State {
	return &State{
		Timestamp: s.Timestamp,
		LastActor: s.LastActor.Clone(),
		Armed:     s.Armed,
	}
}

// EventText is the log line recorded for a transition into s.
func (s *State) EventText() string {
	verb := "disarmed"
	if s.Armed {
		verb = "armed"
	}

	return fmt.Sprintf("System %s by %s", verb, s.LastActor)
}
