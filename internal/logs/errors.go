package logs

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTimeout is wrapped by a FetchError when the request deadline expired.
var ErrTimeout = errors.New("log fetch timed out")

// FetchError describes a failed fetch. StatusCode is zero when no response arrived.
type FetchError struct {
	StatusCode int
	Detail     string
	Err        error
}

// Error implements error.
func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch logs: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("fetch logs: %s: %v", e.Detail, e.Err)
	default:
		return "fetch logs: " + e.Detail
	}
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Temporary reports whether a caller retry could succeed without user action.
// 401 and 403 need a new token, other 4xx are permanent.
func (e *FetchError) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return e.StatusCode >= http.StatusInternalServerError
	}
}
