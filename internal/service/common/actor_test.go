//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDetectUsername ensures a non-empty name without domain prefix is detected.
func TestDetectUsername(t *testing.T) {
	t.Parallel()

	name, err := DetectUsername()
	require.NoError(t, err)
	require.NotEmpty(t, name)
	require.NotContains(t, name, `\`)
}

// TestTrimDomain strips only the domain part.
func TestTrimDomain(t *testing.T) {
	t.Parallel()

	require.Equal(t, "alice", TrimDomain(`OFFICE\alice`))
	require.Equal(t, "bob", TrimDomain("bob"))
	require.Empty(t, TrimDomain(`OFFICE\`))
}
