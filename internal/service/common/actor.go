//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os/user"
	"strings"
)

// DetectUsername returns the login name of the current OS user without any
// domain prefix, e.g. "DOMAIN\alice" becomes "alice".
func DetectUsername() (string, error) {
	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("current user: %w", err)
	}

	return TrimDomain(currentUser.Username), nil
}

// TrimDomain strips a Windows domain prefix from name.
func TrimDomain(name string) string {
	if i := strings.LastIndex(name, `\`); i >= 0 {
		return name[i+1:]
	}

	return name
}
