package logs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/alarm-monitor/internal/domain/monitor"
)

// newTestPoller starts a backend with handler and returns a poller for it.
func newTestPoller(t *testing.T, handler http.HandlerFunc, opts ...Option) *Poller {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewPoller(server.URL, opts...)
	require.NoError(t, err)

	return p
}

// TestFetch_Success decodes numeric and string ids and sends the bearer token.
func TestFetch_Success(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/logs", r.URL.Path)
		require.Equal(t, "Bearer T1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"time":"10:00","event":"login"},{"id":"b-2","time":"2026-10-19T10:01:00","event":"ALERT: smoke"}]`))
	})

	entries, err := p.Fetch(context.Background(), "T1")
	require.NoError(t, err)
	require.Equal(t, []domain.LogEntry{
		{ID: "1", Time: "10:00", Event: "login"},
		{ID: "b-2", Time: "2026-10-19T10:01:00", Event: "ALERT: smoke"},
	}, entries)
}

// TestFetch_EmptyArrayIsEmptySnapshot returns a non-nil empty slice for [].
func TestFetch_EmptyArrayIsEmptySnapshot(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	entries, err := p.Fetch(context.Background(), "T2")
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}

// TestFetch_Unauthorized surfaces the status and detail instead of empty data.
func TestFetch_Unauthorized(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Token expired"}`))
	})

	entries, err := p.Fetch(context.Background(), "stale")
	require.Nil(t, entries)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusUnauthorized, fetchErr.StatusCode)
	require.Equal(t, "Token expired", fetchErr.Detail)
	require.False(t, fetchErr.Temporary())
	require.Contains(t, err.Error(), "401")
}

// TestFetch_BadBody reports undecodable and null bodies as fetch errors.
func TestFetch_BadBody(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"id":1}`, `null`, `[{"id":1,`} {
		p := newTestPoller(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		})

		_, err := p.Fetch(context.Background(), "T1")

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr, body)
		require.Zero(t, fetchErr.StatusCode)
	}
}

// TestFetch_Timeout maps an expired deadline onto ErrTimeout.
func TestFetch_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	p := newTestPoller(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithCallTimeout(50*time.Millisecond))

	start := time.Now()

	_, err := p.Fetch(context.Background(), "T1")
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(start), 2*time.Second)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.True(t, fetchErr.Temporary())
}

// TestFetch_CallerDeadline honours a deadline set by the caller.
func TestFetch_CallerDeadline(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := p.Fetch(ctx, "T1")
	require.ErrorIs(t, err, ErrTimeout)
}

// TestFetch_OneRequestPerCall never retries on failure.
func TestFetch_OneRequestPerCall(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	p := newTestPoller(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	_, err := p.Fetch(context.Background(), "T1")
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.True(t, fetchErr.Temporary())
	require.Equal(t, "unavailable", fetchErr.Detail)
}

// TestNewPoller_RejectsBadURL refuses a base URL without an http scheme.
func TestNewPoller_RejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewPoller("ws://localhost:8000")
	require.Error(t, err)
}
