package checker

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// settingsFor writes a settings file pointing at apiURL with a token file holding token.
func settingsFor(t *testing.T, apiURL, token string) string {
	t.Helper()

	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	settings := filepath.Join(dir, "settings.yaml")

	require.NoError(t, os.WriteFile(tokenFile, []byte(token), 0o600))
	require.NoError(t, os.WriteFile(settings, []byte("api_url: "+apiURL+"\ntoken_file: "+tokenFile+"\n"), 0o600))

	return settings
}

// TestRun_TokenAccepted reports the number of log entries for a valid token.
func TestRun_TokenAccepted(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer T1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_, _ = w.Write([]byte(`[{"id":1,"time":"10:00","event":"login"}]`))
	}))
	t.Cleanup(server.Close)

	var out bytes.Buffer

	err := Run(context.Background(), &Options{ConfigPath: settingsFor(t, server.URL, "T1"), Output: &out})
	require.NoError(t, err)
	require.Equal(t, "[token] accepted, 1 log entries\n", out.String())
}

// TestRun_EmptyTokenFails reports an empty token file without calling the backend.
func TestRun_EmptyTokenFails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("backend must not be called")
	}))
	t.Cleanup(server.Close)

	var out bytes.Buffer

	err := Run(context.Background(), &Options{ConfigPath: settingsFor(t, server.URL, ""), Output: &out})
	require.ErrorIs(t, err, errCheckFailed)
	require.Contains(t, out.String(), "[token] error: token file")
}

// TestRun_HealthUnreachable fails the health probe on a closed port.
func TestRun_HealthUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(server.Close)

	var out bytes.Buffer

	err := Run(context.Background(), &Options{
		ConfigPath:    settingsFor(t, server.URL, "T1"),
		HealthAddress: "127.0.0.1:1",
		Output:        &out,
	})
	require.ErrorIs(t, err, errCheckFailed)
	require.Contains(t, out.String(), "[health] error:")
	require.Contains(t, out.String(), "[token] accepted, 0 log entries")
}
