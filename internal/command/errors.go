package command

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a CommandError.
type Kind int

// Error kinds.
const (
	// KindAlreadyInFlight means another command was still being sent.
	KindAlreadyInFlight Kind = iota + 1
	// KindBackendRejected means the backend answered with a non-2xx status.
	KindBackendRejected
	// KindTimeout means the deadline expired before a response arrived.
	KindTimeout
	// KindUnreachable means no response arrived for another reason.
	KindUnreachable
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindAlreadyInFlight:
		return "already in flight"
	case KindBackendRejected:
		return "backend rejected"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Sentinels matched by CommandError.Is.
var (
	ErrAlreadyInFlight = errors.New("command already in flight")
	ErrRejected        = errors.New("command rejected by backend")
	ErrTimeout         = errors.New("command timed out")
	ErrUnreachable     = errors.New("backend unreachable")
)

// CommandError describes a failed command.
type CommandError struct {
	// Command is "arm" or "disarm".
	Command string
	// Kind classifies the failure.
	Kind Kind
	// StatusCode is set for KindBackendRejected.
	StatusCode int
	// Detail is the backend's error text or a transport description.
	Detail string
	// Err is the transport cause, if any.
	Err error
}

// Error implements error.
func (e *CommandError) Error() string {
	switch e.Kind {
	case KindAlreadyInFlight:
		return fmt.Sprintf("%s: %s", e.Command, ErrAlreadyInFlight)
	case KindBackendRejected:
		return fmt.Sprintf("%s: rejected with %d %s: %s", e.Command, e.StatusCode, http.StatusText(e.StatusCode), e.Detail)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Command, e.Kind, e.Err)
		}

		return fmt.Sprintf("%s: %s", e.Command, e.Kind)
	}
}

// Unwrap returns the transport cause.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error kind.
func (e *CommandError) Is(target error) bool {
	switch e.Kind {
	case KindAlreadyInFlight:
		return target == ErrAlreadyInFlight
	case KindBackendRejected:
		return target == ErrRejected
	case KindTimeout:
		return target == ErrTimeout
	case KindUnreachable:
		return target == ErrUnreachable
	default:
		return false
	}
}

// Reason is the short text stored in the Failed command state.
func (e *CommandError) Reason() string {
	switch e.Kind {
	case KindBackendRejected:
		return fmt.Sprintf("%d %s", e.StatusCode, e.Detail)
	case KindTimeout:
		return "timed out"
	case KindUnreachable:
		if e.Err != nil {
			return "unreachable: " + e.Err.Error()
		}

		return "unreachable"
	default:
		return e.Kind.String()
	}
}
