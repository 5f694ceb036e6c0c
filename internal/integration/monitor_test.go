package integration

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-monitor/internal/auth"
	"github.com/oshokin/alarm-monitor/internal/command"
	"github.com/oshokin/alarm-monitor/internal/config"
	domain "github.com/oshokin/alarm-monitor/internal/domain/monitor"
	"github.com/oshokin/alarm-monitor/internal/service/checker"
	"github.com/oshokin/alarm-monitor/internal/service/login"
	"github.com/oshokin/alarm-monitor/internal/service/monitor"
	"github.com/oshokin/alarm-monitor/internal/service/server"
)

// loginAdmin runs the login command for the seeded admin.
func loginAdmin(t *testing.T, env *hubEnv) {
	t.Helper()

	err := login.Run(context.Background(), &login.Options{
		ConfigPath: env.ConfigPath,
		Username:   "admin",
		Input:      strings.NewReader(testPIN + "\n"),
		Prompt:     new(bytes.Buffer),
	})
	require.NoError(t, err)
}

// hasAlert reports whether the view holds an alert with payload.
func hasAlert(view domain.View, payload string) bool {
	for _, a := range view.Alerts {
		if a.Payload == payload {
			return true
		}
	}

	return false
}

// hasLog reports whether the view holds a log entry with event.
func hasLog(view domain.View, event string) bool {
	for _, e := range view.Logs {
		if e.Event == event {
			return true
		}
	}

	return false
}

// TestMonitor_EndToEnd logs in, watches the feed, arms the system and sees
// the transition both live and in the refreshed log.
func TestMonitor_EndToEnd(t *testing.T) {
	t.Parallel()

	env := startHub(t)
	loginAdmin(t, env)

	cfg, err := config.Load(env.ConfigPath)
	require.NoError(t, err)

	tokens, err := auth.NewFile(cfg.TokenFile)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.Token())

	session, err := monitor.NewSessionFromConfig(cfg, tokens)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, session.Start(ctx))

	defer func() {
		session.Close()
		session.Wait()
	}()

	require.Eventually(t, func() bool {
		return session.View().Connection.Phase == domain.Connected
	}, 5*time.Second, 20*time.Millisecond)

	// The hub registers the subscriber just after the handshake, so keep
	// posting until the first alert arrives.
	simulate := &server.SimulateOptions{APIURL: env.APIURL, Timeout: time.Second}

	require.Eventually(t, func() bool {
		if err := server.Simulate(ctx, simulate); err != nil {
			return false
		}

		return hasAlert(session.View(), "ALERT: Motion detected!")
	}, 5*time.Second, 100*time.Millisecond)

	ack, err := session.Arm(ctx)
	require.NoError(t, err)
	require.Equal(t, command.Arm, ack.Command)
	require.Equal(t, domain.Succeeded, session.View().Command.Phase)

	require.Eventually(t, func() bool {
		return hasAlert(session.View(), "System armed by admin")
	}, 5*time.Second, 20*time.Millisecond)

	session.Refresh()

	require.Eventually(t, func() bool {
		return hasLog(session.View(), "System armed by admin")
	}, 5*time.Second, 20*time.Millisecond)
}

// TestMonitor_ExpiredSessionRejected shows the backend detail for a bad token.
func TestMonitor_ExpiredSessionRejected(t *testing.T) {
	t.Parallel()

	env := startHub(t)

	cfg, err := config.Load(env.ConfigPath)
	require.NoError(t, err)

	session, err := monitor.NewSessionFromConfig(cfg, auth.NewMemory("not-a-token"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, session.Start(ctx))

	defer func() {
		session.Close()
		session.Wait()
	}()

	_, err = session.Disarm(ctx)
	require.ErrorIs(t, err, command.ErrRejected)

	state := session.View().Command
	require.Equal(t, domain.Failed, state.Phase)
	require.Equal(t, "401 Invalid token", state.Reason)
}

// TestCheck_HealthAndToken probes the hub health endpoint and the stored token.
func TestCheck_HealthAndToken(t *testing.T) {
	t.Parallel()

	env := startHub(t)
	loginAdmin(t, env)

	var out bytes.Buffer

	err := checker.Run(context.Background(), &checker.Options{ConfigPath: env.ConfigPath, Output: &out})
	require.NoError(t, err)
	require.Equal(t, "[health] SERVING\n[token] accepted, 0 log entries\n", out.String())
}
