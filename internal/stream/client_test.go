package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-monitor/internal/auth"
	domain "github.com/oshokin/alarm-monitor/internal/domain/monitor"
)

const waitFor = 5 * time.Second

// recorder collects callbacks from a client.
type recorder struct {
	mu     sync.Mutex
	events []domain.AlertEvent
	states []domain.ConnectionState
}

func (r *recorder) event(ev domain.AlertEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *recorder) state(s domain.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states = append(r.states, s)
}

func (r *recorder) snapshot() ([]domain.AlertEvent, []domain.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]domain.AlertEvent(nil), r.events...), append([]domain.ConnectionState(nil), r.states...)
}

// backoffAttempts returns the attempt numbers of every Backoff state seen.
func (r *recorder) backoffAttempts() []int {
	_, states := r.snapshot()

	var attempts []int

	for _, s := range states {
		if s.Phase == domain.Backoff {
			attempts = append(attempts, s.Attempt)
		}
	}

	return attempts
}

// hasPhase reports whether phase was seen.
func (r *recorder) hasPhase(phase domain.ConnectionPhase) bool {
	_, states := r.snapshot()

	for _, s := range states {
		if s.Phase == phase {
			return true
		}
	}

	return false
}

// newClient builds a client with the recorder attached.
func newClient(t *testing.T, server *httptest.Server, rec *recorder, p Policy) *Client {
	t.Helper()

	c := NewClient("ws"+strings.TrimPrefix(server.URL, "http"), WithPolicy(p))
	c.OnEvent(rec.event)
	c.OnStateChange(rec.state)

	return c
}

// feedServer upgrades every request and hands the connection to serve.
func feedServer(t *testing.T, serve func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		defer conn.Close()

		serve(conn, r)
	}))
	t.Cleanup(server.Close)

	return server
}

// holdOpen blocks until the client goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// TestClient_DeliversInOrderAndSkipsMalformed sends a mixed sequence and expects only the good messages.
func TestClient_DeliversInOrderAndSkipsMalformed(t *testing.T) {
	t.Parallel()

	server := feedServer(t, func(conn *websocket.Conn, _ *http.Request) {
		frames := []struct {
			kind int
			data []byte
		}{
			{websocket.TextMessage, []byte("zone 1 motion")},
			{websocket.BinaryMessage, []byte{0x01, 0x02}},
			{websocket.TextMessage, []byte("   ")},
			{websocket.TextMessage, []byte("zone 2 door")},
			{websocket.TextMessage, []byte{0xff, 0xfe, 0xfd}},
			{websocket.TextMessage, []byte(`{"id":7,"message":"glass break"}`)},
		}

		for _, f := range frames {
			if err := conn.WriteMessage(f.kind, f.data); err != nil {
				return
			}
		}

		holdOpen(conn)
	})

	rec := new(recorder)
	c := newClient(t, server, rec, Policy{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond})

	h, err := c.Connect(context.Background(), auth.Static("T1"))
	require.NoError(t, err)

	defer h.Disconnect()

	require.Eventually(t, func() bool {
		events, _ := rec.snapshot()
		return len(events) == 3
	}, waitFor, 5*time.Millisecond)

	events, _ := rec.snapshot()
	require.Equal(t, "zone 1 motion", events[0].Payload)
	require.Equal(t, "zone 2 door", events[1].Payload)
	require.Equal(t, `{"id":7,"message":"glass break"}`, events[2].Payload)
	require.Equal(t, "7", events[2].ID)

	for i := 1; i < len(events); i++ {
		require.Greater(t, events[i].ReceivedAt, events[i-1].ReceivedAt)
	}

	// Malformed frames did not cost the connection.
	require.Empty(t, rec.backoffAttempts())
}

// TestClient_DisconnectIsIdempotentAndFinal stops all callbacks once Disconnect returns.
func TestClient_DisconnectIsIdempotentAndFinal(t *testing.T) {
	t.Parallel()

	server := feedServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			if err := conn.WriteMessage(websocket.TextMessage, []byte("tick")); err != nil {
				return
			}

			time.Sleep(2 * time.Millisecond)
		}
	})

	var (
		disconnected atomic.Bool
		late         atomic.Int32
		rec          = new(recorder)
	)

	c := newClient(t, server, rec, Policy{})
	c.OnEvent(func(ev domain.AlertEvent) {
		if disconnected.Load() {
			late.Add(1)
		}

		rec.event(ev)
	})
	c.OnStateChange(func(s domain.ConnectionState) {
		if disconnected.Load() {
			late.Add(1)
		}

		rec.state(s)
	})

	h, err := c.Connect(context.Background(), auth.Static(""))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, _ := rec.snapshot()
		return len(events) >= 5
	}, waitFor, 5*time.Millisecond)

	h.Disconnect()
	disconnected.Store(true)
	h.Disconnect()

	_, states := rec.snapshot()
	require.Equal(t, domain.Disconnected, states[len(states)-1].Phase)

	time.Sleep(50 * time.Millisecond)
	h.Disconnect()

	require.Zero(t, late.Load())

	select {
	case <-h.Done():
	default:
		t.Fatal("connection loop still running")
	}
}

// TestClient_ReconnectsWithBackoff rejects the first handshakes and expects increasing attempts then a connection.
func TestClient_ReconnectsWithBackoff(t *testing.T) {
	t.Parallel()

	var (
		dials    atomic.Int32
		upgrader websocket.Upgrader
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if dials.Add(1) <= 2 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte("online"))
		holdOpen(conn)
	}))
	t.Cleanup(server.Close)

	rec := new(recorder)
	c := newClient(t, server, rec, Policy{Base: 10 * time.Millisecond, Max: 40 * time.Millisecond, Stable: time.Hour})

	h, err := c.Connect(context.Background(), auth.Static("T1"))
	require.NoError(t, err)

	defer h.Disconnect()

	require.Eventually(t, func() bool {
		events, _ := rec.snapshot()
		return len(events) == 1
	}, waitFor, 5*time.Millisecond)

	require.Equal(t, []int{1, 2}, rec.backoffAttempts())
	require.True(t, rec.hasPhase(domain.Connected))
	require.Equal(t, 2, h.Attempt())

	_, states := rec.snapshot()
	for _, s := range states {
		if s.Phase == domain.Backoff {
			require.False(t, s.NextRetryAt.IsZero())
		}
	}
}

// TestClient_StableConnectionResetsAttempts holds a connection past the stable interval and expects attempt 1 again.
func TestClient_StableConnectionResetsAttempts(t *testing.T) {
	t.Parallel()

	var (
		dials    atomic.Int32
		upgrader websocket.Upgrader
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		if n != 2 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		// Stay up well past the stable interval, then drop.
		time.Sleep(150 * time.Millisecond)
		_ = conn.Close()
	}))
	t.Cleanup(server.Close)

	rec := new(recorder)
	c := newClient(t, server, rec, Policy{Base: 5 * time.Millisecond, Max: 20 * time.Millisecond, Stable: 30 * time.Millisecond})

	h, err := c.Connect(context.Background(), auth.Static("T1"))
	require.NoError(t, err)

	defer h.Disconnect()

	require.Eventually(t, func() bool {
		return len(rec.backoffAttempts()) >= 3
	}, waitFor, 5*time.Millisecond)

	attempts := rec.backoffAttempts()
	require.Equal(t, []int{1, 1, 2}, attempts[:3])
}

// TestClient_ReadsTokenOnEveryDial sends the refreshed token on reconnect.
func TestClient_ReadsTokenOnEveryDial(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		headers []string
	)

	server := feedServer(t, func(conn *websocket.Conn, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Get("Authorization"))
		n := len(headers)
		mu.Unlock()

		if n == 1 {
			// Drop the first connection right away.
			return
		}

		holdOpen(conn)
	})

	tokens := auth.NewMemory("T1")
	rec := new(recorder)

	c := newClient(t, server, rec, Policy{Base: 20 * time.Millisecond, Max: 20 * time.Millisecond})
	c.OnStateChange(func(s domain.ConnectionState) {
		if s.Phase == domain.Backoff {
			tokens.Set("T2")
		}

		rec.state(s)
	})

	h, err := c.Connect(context.Background(), tokens)
	require.NoError(t, err)

	defer h.Disconnect()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(headers) >= 2
	}, waitFor, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, "Bearer T1", headers[0])
	require.Equal(t, "Bearer T2", headers[1])
}

// TestClient_DisconnectCancelsPendingRetry returns promptly while a long retry delay is pending.
func TestClient_DisconnectCancelsPendingRetry(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	rec := new(recorder)
	c := newClient(t, server, rec, Policy{Base: time.Hour, Max: time.Hour})

	h, err := c.Connect(context.Background(), auth.Static(""))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.hasPhase(domain.Backoff)
	}, waitFor, 5*time.Millisecond)

	start := time.Now()

	h.Disconnect()

	require.Less(t, time.Since(start), time.Second)

	_, states := rec.snapshot()
	require.Equal(t, domain.Disconnected, states[len(states)-1].Phase)
}

// TestClient_ConnectValidates rejects bad URLs and a missing token source.
func TestClient_ConnectValidates(t *testing.T) {
	t.Parallel()

	_, err := NewClient("http://localhost:8000/ws").Connect(context.Background(), auth.Static(""))
	require.ErrorIs(t, err, errFeedURL)

	_, err = NewClient("ws://localhost:8000/ws").Connect(context.Background(), nil)
	require.ErrorIs(t, err, errNoTokenSource)

	var h *Handle

	h.Disconnect()
}
