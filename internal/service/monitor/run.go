package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/alarm-monitor/internal/auth"
	"github.com/oshokin/alarm-monitor/internal/command"
	"github.com/oshokin/alarm-monitor/internal/config"
	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/logs"
	"github.com/oshokin/alarm-monitor/internal/metrics"
	"github.com/oshokin/alarm-monitor/internal/store"
	"github.com/oshokin/alarm-monitor/internal/stream"
)

// Options controls the watch process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// FeedURL overrides the feed endpoint from config when set.
	FeedURL string
	// APIURL overrides the backend base URL from config when set.
	APIURL string
	// TokenFile overrides the token file from config when set.
	TokenFile string
	// Output receives the projection, os.Stdout when nil.
	Output io.Writer
	// Input enables the command console when set.
	Input io.Reader
}

// lockSuffix is appended to the token file path to build the instance lock path.
const lockSuffix = ".watch.pid"

// Run watches the feed and the event log until ctx is canceled.
//
//nolint:funlen // Wiring reads best top to bottom.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-monitor")

	cfg, err := loadConfig(opts.ConfigPath, config.Overrides{
		FeedURL:   opts.FeedURL,
		APIURL:    opts.APIURL,
		TokenFile: opts.TokenFile,
	})
	if err != nil {
		return err
	}

	// One watcher per token file.
	lock, err := acquireInstanceLock(cfg.TokenFile + lockSuffix)
	if err != nil {
		return err
	}

	defer lock.Release()

	tokens, err := auth.NewFile(cfg.TokenFile)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}

	if tokens.Token() == "" {
		logger.WarnKV(ctx, "Token file is empty, run `alarm-monitor login`", "token_file", tokens.Path())
	}

	session, err := NewSessionFromConfig(cfg, tokens)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Watching", "feed_url", cfg.FeedURL, "api_url", cfg.APIURL, "token_file", tokens.Path())

	group, groupCtx := errgroup.WithContext(ctx)

	if err = session.Start(groupCtx); err != nil {
		return err
	}

	defer func() {
		session.Close()
		session.Wait()
	}()

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	group.Go(func() error {
		return tokens.Watch(groupCtx)
	})

	group.Go(func() error {
		return NewProjection(out).Follow(groupCtx, session)
	})

	if cfg.MetricsAddress != "" {
		group.Go(func() error {
			return metrics.NewServer(cfg.MetricsAddress).Run(groupCtx)
		})
	}

	if opts.Input != nil {
		group.Go(func() error {
			return runConsole(groupCtx, opts.Input, out, session)
		})
	}

	err = group.Wait()
	if errors.Is(err, errQuit) {
		err = nil
	}

	logger.Info(ctx, "Watch stopped")

	return err
}

// NewSessionFromConfig builds the session components from settings.
func NewSessionFromConfig(cfg *config.Config, tokens auth.Watcher) (*Session, error) {
	poller, err := logs.NewPoller(cfg.APIURL, logs.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("create log poller: %w", err)
	}

	dispatcher, err := command.NewDispatcher(cfg.APIURL, command.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	feed := stream.NewClient(cfg.FeedURL, stream.WithPolicy(stream.Policy{
		Base:   cfg.Backoff.Base,
		Max:    cfg.Backoff.Max,
		Stable: cfg.Backoff.Stable,
	}))

	st := store.New(store.WithRetention(cfg.AlertRetention), store.WithCommandSource(dispatcher))

	return NewSession(st, feed, poller, dispatcher, tokens), nil
}

// loadConfig reads settings, applies command line overrides and the log level.
func loadConfig(path string, overrides config.Overrides) (*config.Config, error) {
	cfg, err := config.LoadWithOverrides(path, overrides)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	return cfg, nil
}
