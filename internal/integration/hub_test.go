package integration

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oshokin/alarm-monitor/internal/config"
	domain "github.com/oshokin/alarm-monitor/internal/domain/alarm"
	"github.com/oshokin/alarm-monitor/internal/repository/eventlog"
	"github.com/oshokin/alarm-monitor/internal/service/server"
)

// testPIN is the PIN of the seeded admin.
const testPIN = "1234"

// hubEnv describes a running hub and the monitor settings pointing at it.
type hubEnv struct {
	// ConfigPath is the shared settings file.
	ConfigPath string
	// APIURL is the hub base URL.
	APIURL string
	// TokenFile is where login writes the token.
	TokenFile string
}

// reservePort returns a free local address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// startHub seeds an admin, starts alarm-hub and waits until it answers.
func startHub(t *testing.T) *hubEnv {
	t.Helper()

	dir := t.TempDir()
	listen := reservePort(t)
	healthAddress := reservePort(t)
	database := filepath.Join(dir, "hub.db")

	// Seed the admin before the hub opens the database.
	events, err := eventlog.Open(context.Background(), database, eventlog.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	require.NoError(t, events.PutUser(context.Background(), "admin", testPIN, domain.RoleAdmin))
	require.NoError(t, events.Close())

	env := &hubEnv{
		ConfigPath: filepath.Join(dir, "settings.yaml"),
		APIURL:     "http://" + listen,
		TokenFile:  filepath.Join(dir, "token"),
	}

	require.NoError(t, config.Save(env.ConfigPath, &config.Config{
		FeedURL:       "ws://" + listen + "/ws",
		APIURL:        env.APIURL,
		TokenFile:     env.TokenFile,
		Timeout:       3 * time.Second,
		HealthAddress: healthAddress,
		Backoff: config.Backoff{
			Base:   50 * time.Millisecond,
			Max:    200 * time.Millisecond,
			Stable: time.Second,
		},
		Hub: config.Hub{
			ListenAddress: listen,
			HealthAddress: healthAddress,
			Database:      database,
			StateFile:     filepath.Join(dir, "state.json"),
			JWTSecret:     "integration-secret",
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx, &server.Options{ConfigPath: env.ConfigPath})
	}()

	t.Cleanup(func() {
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("alarm-hub did not stop")
		}
	})

	require.Eventually(t, func() bool {
		resp, err := http.Get(env.APIURL + "/healthz") //nolint:noctx // Readiness probe in tests.
		if err != nil {
			return false
		}

		_ = resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	return env
}
