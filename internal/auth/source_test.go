package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestStatic returns the same token forever.
func TestStatic(t *testing.T) {
	t.Parallel()

	var src Source = Static("T1")
	require.Equal(t, "T1", src.Token())
}

// TestMemory_SetNotifiesOnlyOnChange verifies that equal values do not signal and signals coalesce.
func TestMemory_SetNotifiesOnlyOnChange(t *testing.T) {
	t.Parallel()

	m := NewMemory("T1")
	changes, cancel := m.Subscribe()

	defer cancel()

	require.False(t, m.Set("T1"))
	require.Empty(t, changes)

	require.True(t, m.Set("T2"))
	require.True(t, m.Set("T3"))
	require.Len(t, changes, 1)

	<-changes
	require.Equal(t, "T3", m.Token())
}

// TestMemory_Unsubscribe stops delivery after cancel and tolerates repeated cancels.
func TestMemory_Unsubscribe(t *testing.T) {
	t.Parallel()

	m := NewMemory("")
	changes, cancel := m.Subscribe()

	cancel()
	cancel()

	m.Set("T1")
	require.Empty(t, changes)
}

// TestFile_MissingFileIsEmptyToken treats an absent token file as no token.
func TestFile_MissingFileIsEmptyToken(t *testing.T) {
	t.Parallel()

	f, err := NewFile(filepath.Join(t.TempDir(), "token"))
	require.NoError(t, err)
	require.Empty(t, f.Token())
}

// TestFile_Reload picks up a rewritten token and ignores surrounding whitespace.
func TestFile_Reload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, WriteToken(path, "T1"))

	f, err := NewFile(path)
	require.NoError(t, err)
	require.Equal(t, "T1", f.Token())

	require.NoError(t, os.WriteFile(path, []byte("  T2 \n"), 0o600))

	changed, err := f.Reload()
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "T2", f.Token())

	changed, err = f.Reload()
	require.NoError(t, err)
	require.False(t, changed)
}

// TestFile_Watch sees a token written while watching.
func TestFile_Watch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token")

	f, err := NewFile(path)
	require.NoError(t, err)

	changes, cancel := f.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- f.Watch(ctx)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, WriteToken(path, "T-from-login"))

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("token change was not observed")
	}

	require.Equal(t, "T-from-login", f.Token())

	stop()
	require.NoError(t, <-done)
}
