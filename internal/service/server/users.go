package server

import (
	"context"
	"fmt"
	"io"
	"os"

	domain "github.com/oshokin/alarm-monitor/internal/domain/alarm"
	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/repository/eventlog"
	"github.com/oshokin/alarm-monitor/internal/service/common"
)

// UserOptions controls `alarm-hub user add`.
type UserOptions struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// Database overrides the SQLite file from config.
	Database string
	// Username is the account to create or update.
	Username string
	// Role is admin or guest.
	Role domain.Role
	// Input supplies the PIN, os.Stdin when nil.
	Input io.Reader
	// Prompt receives the PIN prompt, os.Stderr when nil.
	Prompt io.Writer
}

// AddUser creates a user or replaces the PIN and role of an existing one.
func AddUser(ctx context.Context, opts *UserOptions) error {
	ctx = logger.WithName(ctx, "alarm-hub")

	settings, err := loadSettings(opts.ConfigPath)
	if err != nil {
		return err
	}

	database := settings.Hub.Database
	if opts.Database != "" {
		database = opts.Database
	}

	in := opts.Input
	if in == nil {
		in = os.Stdin
	}

	prompt := opts.Prompt
	if prompt == nil {
		prompt = os.Stderr
	}

	pin, err := common.ReadPIN(in, prompt, fmt.Sprintf("PIN for %s: ", opts.Username))
	if err != nil {
		return err
	}

	events, err := eventlog.Open(ctx, database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	defer func() {
		_ = events.Close()
	}()

	if err = events.PutUser(ctx, opts.Username, pin, opts.Role); err != nil {
		return fmt.Errorf("add user %q: %w", opts.Username, err)
	}

	logger.InfoKV(ctx, "User saved", "username", opts.Username, "role", opts.Role, "database", database)

	return nil
}
