//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrEmptyPIN is returned when no PIN was entered.
var ErrEmptyPIN = errors.New("pin must not be empty")

// ReadPIN reads a PIN from in. A terminal is read without echo after
// printing text to prompt; any other reader supplies the first line.
func ReadPIN(in io.Reader, prompt io.Writer, text string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, text)

		raw, err := term.ReadPassword(int(f.Fd()))

		_, _ = fmt.Fprintln(prompt)

		if err != nil {
			return "", fmt.Errorf("read pin: %w", err)
		}

		return checkPIN(string(raw))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read pin: %w", err)
	}

	return checkPIN(line)
}

// checkPIN trims and validates a PIN.
func checkPIN(raw string) (string, error) {
	pin := strings.TrimSpace(raw)
	if pin == "" {
		return "", ErrEmptyPIN
	}

	return pin, nil
}
