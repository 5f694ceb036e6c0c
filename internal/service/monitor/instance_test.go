package monitor

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestInstanceLock_TakesOverStaleLock replaces a pid file left by a dead process.
func TestInstanceLock_TakesOverStaleLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.watch.pid")

	// Pids this large are not handed out on supported platforms.
	require.NoError(t, os.WriteFile(path, []byte("999999999\n"), 0o600))

	lock, err := acquireInstanceLock(path)
	require.NoError(t, err)

	pid, ok := readPID(path)
	require.True(t, ok)
	require.Equal(t, os.Getpid(), pid)

	lock.Release()
	require.NoFileExists(t, path)
}

// TestInstanceLock_OwnPIDAndParsing re-acquires our own lock and parses pid files.
func TestInstanceLock_OwnPIDAndParsing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.watch.pid")

	lock, err := acquireInstanceLock(path)
	require.NoError(t, err)

	// Our own pid is never treated as a competitor.
	again, err := acquireInstanceLock(path)
	require.NoError(t, err)

	again.Release()

	var nilLock *instanceLock
	nilLock.Release()

	lock.Release()
	require.NoFileExists(t, path)

	_, ok := readPID(path + ".missing")
	require.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o600))
	_, ok = readPID(path)
	require.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600))
	pid, ok := readPID(path)
	require.True(t, ok)
	require.Equal(t, os.Getpid(), pid)
}
