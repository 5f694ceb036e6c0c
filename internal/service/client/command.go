package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oshokin/alarm-monitor/internal/auth"
	"github.com/oshokin/alarm-monitor/internal/command"
	"github.com/oshokin/alarm-monitor/internal/config"
	"github.com/oshokin/alarm-monitor/internal/logger"
)

// Options configures the arm command.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// APIURL overrides the backend base URL from config when specified.
	APIURL string

	// TokenFile overrides the token file from config when specified.
	TokenFile string

	// Disarm sends disarm instead of arm.
	Disarm bool

	// Output receives the result line, os.Stdout when nil.
	Output io.Writer
}

// Run sends the command once and prints the acknowledgement.
func Run(ctx context.Context, opts *Options) error {
	name := command.Arm
	if opts.Disarm {
		name = command.Disarm
	}

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-monitor-"+name)

	// Load settings from configuration file.
	cfg, err := config.LoadWithOverrides(opts.ConfigPath, config.Overrides{
		APIURL:    opts.APIURL,
		TokenFile: opts.TokenFile,
	})
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	tokens, err := auth.NewFile(cfg.TokenFile)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}

	// Without a token the backend answers 401, which is reported like any rejection.
	if tokens.Token() == "" {
		logger.WarnKV(ctx, "Token file is empty, run `alarm-monitor login`", "token_file", tokens.Path())
	}

	dispatcher, err := command.NewDispatcher(cfg.APIURL, command.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	logger.InfoKV(ctx, "Sending command", "api_url", cfg.APIURL, "command", name)

	send := dispatcher.Arm
	if opts.Disarm {
		send = dispatcher.Disarm
	}

	ack, err := send(ctx, tokens.Token())
	if err != nil {
		return err
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	_, err = fmt.Fprintln(out, formatAck(ack))

	return err
}

// formatAck converts an acknowledgement to a readable line.
func formatAck(ack command.Ack) string {
	past := "armed"
	if ack.Command == command.Disarm {
		past = "disarmed"
	}

	return fmt.Sprintf("System %s (%d at %s)", past, ack.StatusCode, ack.At.Format(time.RFC3339))
}
