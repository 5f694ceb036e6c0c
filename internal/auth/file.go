package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/alarm-monitor/internal/config"
	"github.com/oshokin/alarm-monitor/internal/logger"
)

// File is a Watcher backed by a token file. The file holds the raw token,
// surrounding whitespace is ignored, a missing file means no token.
type File struct {
	*Memory

	// path is the cleaned absolute path of the token file.
	path string
}

// NewFile creates a File source and loads the current file contents.
func NewFile(path string) (*File, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("resolve token file: %w", err)
	}

	token, err := readToken(abs)
	if err != nil {
		return nil, err
	}

	return &File{
		Memory: NewMemory(token),
		path:   abs,
	}, nil
}

// Path returns the watched file path.
func (f *File) Path() string {
	return f.path
}

// Reload re-reads the file and reports whether the token changed.
func (f *File) Reload() (bool, error) {
	token, err := readToken(f.path)
	if err != nil {
		return false, err
	}

	return f.Set(token), nil
}

// Watch follows the token file until ctx is done. The parent directory is
// watched so editors and atomic renames are seen as well as in-place writes.
func (f *File) Watch(ctx context.Context) error {
	ctx = logger.WithKV(logger.WithName(ctx, "token-file"), "path", f.path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	defer func() {
		_ = watcher.Close()
	}()

	if err = watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch token directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != f.path {
				continue
			}

			changed, err := f.Reload()
			if err != nil {
				logger.WarnKV(ctx, "Token file unreadable", "error", err)
				continue
			}

			if changed {
				logger.InfoKV(ctx, "Token changed", "op", event.Op.String())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.WarnKV(ctx, "Token watcher error", "error", err)
		}
	}
}

// WriteToken stores token at path with owner-only permissions.
func WriteToken(path, token string) error {
	path = filepath.Clean(path)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, []byte(strings.TrimSpace(token)+"\n"), config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write token: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace token: %w", err)
	}

	return nil
}

// readToken returns the trimmed file contents, or "" when the file is missing.
func readToken(path string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}

		return "", fmt.Errorf("read token file: %w", err)
	}

	return strings.TrimSpace(string(contents)), nil
}
