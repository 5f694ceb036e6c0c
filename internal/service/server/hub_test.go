package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oshokin/alarm-monitor/internal/config"
	domain "github.com/oshokin/alarm-monitor/internal/domain/alarm"
	"github.com/oshokin/alarm-monitor/internal/repository/eventlog"
)

// TestAddUser stores a user whose PIN then authenticates.
func TestAddUser(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	database := filepath.Join(dir, "hub.db")

	err := AddUser(context.Background(), &UserOptions{
		Database: database,
		Username: "admin",
		Role:     domain.RoleAdmin,
		Input:    strings.NewReader("2468\n"),
		Prompt:   new(strings.Builder),
	})
	require.NoError(t, err)

	events, err := eventlog.Open(context.Background(), database, eventlog.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)

	defer func() {
		_ = events.Close()
	}()

	actor, err := events.Authenticate(context.Background(), "admin", "2468")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, actor.Role)
}

// TestSimulate_SingleAlert posts one alert when no interval is set.
func TestSimulate_SingleAlert(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		bodies []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := new(strings.Builder)
		_, _ = io.Copy(raw, r.Body)

		mu.Lock()
		bodies = append(bodies, r.URL.Path+" "+raw.String())
		mu.Unlock()

		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	err := Simulate(context.Background(), &SimulateOptions{
		APIURL:  srv.URL,
		Timeout: time.Second,
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, []string{`/alert {"message":"Motion detected!"}`}, bodies)
}

// TestSimulate_Rejected surfaces the hub's detail.
func TestSimulate_Rejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"message is required"}`))
	}))
	t.Cleanup(srv.Close)

	err := Simulate(context.Background(), &SimulateOptions{APIURL: srv.URL, Message: "x"})
	require.ErrorIs(t, err, errAlertRejected)
	require.ErrorContains(t, err, "message is required")
}

// TestApplyOverrides replaces only the values given on the command line.
func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	hub := config.Hub{ListenAddress: ":8000", StateFile: "a.json", Database: "a.db"}
	applyOverrides(&hub, &Options{StateFile: "b.json"})

	require.Equal(t, ":8000", hub.ListenAddress)
	require.Equal(t, "b.json", hub.StateFile)
	require.Equal(t, "a.db", hub.Database)
}

// TestSigningSecret keeps a configured secret and generates one otherwise.
func TestSigningSecret(t *testing.T) {
	t.Parallel()

	secret, err := signingSecret(context.Background(), "configured")
	require.NoError(t, err)
	require.Equal(t, []byte("configured"), secret)

	first, err := signingSecret(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, first, secretSize)

	second, err := signingSecret(context.Background(), "")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
