package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/alarm-monitor/internal/auth"
	"github.com/oshokin/alarm-monitor/internal/config"
	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/logs"
	"github.com/oshokin/alarm-monitor/internal/service/common"
)

// Options controls the check and its configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// APIURL overrides the backend base URL from config when set.
	APIURL string
	// HealthAddress overrides the gRPC health endpoint from config when set.
	HealthAddress string
	// Interval repeats the check until cancellation when positive.
	Interval time.Duration
	// Output receives the report lines, os.Stdout when nil.
	Output io.Writer
}

// errCheckFailed is returned when at least one probe failed.
var errCheckFailed = errors.New("check failed")

// Run probes the hub once, or every Interval until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-monitor-check")

	// Load settings from configuration file.
	cfg, err := config.LoadWithOverrides(opts.ConfigPath, config.Overrides{APIURL: opts.APIURL})
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	healthAddress := cfg.HealthAddress
	if opts.HealthAddress != "" {
		healthAddress = opts.HealthAddress
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	probe := &prober{
		cfg:           cfg,
		healthAddress: healthAddress,
		out:           out,
	}

	if opts.Interval <= 0 {
		return probe.run(ctx)
	}

	logger.InfoKV(ctx, "Checking periodically", "api_url", cfg.APIURL, "interval", opts.Interval.String())

	// Setup polling ticker with fixed interval.
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		if err = probe.run(ctx); err != nil {
			logger.ErrorKV(ctx, "Check failed", "error", err)
		}

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")
			return nil
		case <-ticker.C:
		}
	}
}

// prober runs the individual probes.
type prober struct {
	cfg           *config.Config
	healthAddress string
	out           io.Writer
}

// run executes every probe and reports each result on its own line.
func (p *prober) run(ctx context.Context) error {
	failed := false

	if p.healthAddress != "" {
		status, err := p.checkHealth(ctx)
		if err != nil {
			failed = true

			p.report("health", "error: %v", err)
		} else {
			if status != healthpb.HealthCheckResponse_SERVING {
				failed = true
			}

			p.report("health", "%s", status)
		}
	}

	entries, err := p.checkToken(ctx)
	if err != nil {
		failed = true

		p.report("token", "error: %v", err)
	} else {
		p.report("token", "accepted, %d log entries", entries)
	}

	if failed {
		return errCheckFailed
	}

	return nil
}

// checkHealth asks the hub health endpoint for the hub service status.
func (p *prober) checkHealth(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	client, err := common.DialHealth(ctx, p.healthAddress, common.WithCallTimeout(p.cfg.Timeout))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}

	// Ensure connection cleanup on function exit.
	defer func() {
		_ = client.Close()
	}()

	return client.Check(ctx, common.HubServiceName)
}

// checkToken fetches the log once with the stored token.
func (p *prober) checkToken(ctx context.Context) (int, error) {
	tokens, err := auth.NewFile(p.cfg.TokenFile)
	if err != nil {
		return 0, err
	}

	if tokens.Token() == "" {
		return 0, fmt.Errorf("token file %s is empty", tokens.Path())
	}

	poller, err := logs.NewPoller(p.cfg.APIURL, logs.WithCallTimeout(p.cfg.Timeout))
	if err != nil {
		return 0, err
	}

	entries, err := poller.Fetch(ctx, tokens.Token())
	if err != nil {
		return 0, err
	}

	return len(entries), nil
}

// report prints one probe result.
func (p *prober) report(probe, format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, "[%s] "+format+"\n", append([]any{probe}, args...)...)
}
