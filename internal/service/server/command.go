package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/alarm-monitor/internal/api/http/hub"
	"github.com/oshokin/alarm-monitor/internal/config"
	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/metrics"
	"github.com/oshokin/alarm-monitor/internal/repository/eventlog"
	repository "github.com/oshokin/alarm-monitor/internal/repository/state"
	"github.com/oshokin/alarm-monitor/internal/service/common"
)

// Options controls the alarm-hub process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress overrides the HTTP listen address from config.
	ListenAddress string
	// StateFile overrides the armed state file from config.
	StateFile string
	// Database overrides the SQLite file from config.
	Database string
}

const (
	// shutdownTimeout bounds graceful shutdown of the HTTP server.
	shutdownTimeout = 5 * time.Second
	// secretSize is the length of a generated signing secret.
	secretSize = 32
)

// Run starts the hub and blocks until ctx is canceled or a server fails.
//
//nolint:funlen // Wiring reads best top to bottom.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-hub")

	settings, err := loadSettings(opts.ConfigPath)
	if err != nil {
		return err
	}

	hub := settings.Hub
	applyOverrides(&hub, opts)

	events, err := eventlog.Open(ctx, hub.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	defer func() {
		if closeErr := events.Close(); closeErr != nil {
			logger.ErrorKV(ctx, "Failed to close database", "error", closeErr)
		}
	}()

	if users, countErr := events.CountUsers(ctx); countErr == nil && users == 0 {
		logger.Warn(ctx, "No users yet, add one with `alarm-hub user add`")
	}

	secret, err := signingSecret(ctx, hub.JWTSecret)
	if err != nil {
		return err
	}

	feed := api.NewFeed()

	svc, err := newService(ctx, repository.NewFileRepository(hub.StateFile), events, feed)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	httpServer := &http.Server{
		Addr: hub.ListenAddress,
		Handler: api.NewRouter(svc, api.Options{
			Issuer:    api.NewIssuer(secret, hub.TokenTTL),
			Feed:      feed,
			LoginRate: hub.LoginRate,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return serveHTTP(groupCtx, httpServer, feed)
	})

	if hub.HealthAddress != "" {
		group.Go(func() error {
			return serveHealth(groupCtx, hub.HealthAddress)
		})
	}

	if settings.MetricsAddress != "" {
		group.Go(func() error {
			return metrics.NewServer(settings.MetricsAddress).Run(groupCtx)
		})
	}

	logger.InfoKV(ctx, "Alarm hub listening",
		"listen_address", hub.ListenAddress,
		"health_address", hub.HealthAddress,
		"state_file", hub.StateFile,
		"database", hub.Database)

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Alarm hub stopped")

	return nil
}

// loadSettings reads the config file and applies its log level.
func loadSettings(path string) (*config.Config, error) {
	settings, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}

	return settings, nil
}

// applyOverrides replaces hub settings with non-empty command line values.
func applyOverrides(hub *config.Hub, opts *Options) {
	if opts.ListenAddress != "" {
		hub.ListenAddress = opts.ListenAddress
	}

	if opts.StateFile != "" {
		hub.StateFile = opts.StateFile
	}

	if opts.Database != "" {
		hub.Database = opts.Database
	}
}

// signingSecret returns the configured secret or a random one.
// Tokens signed with a random secret do not survive a restart.
func signingSecret(ctx context.Context, configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}

	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}

	logger.Warn(ctx, "hub.jwt_secret is not set, issued tokens are valid until restart")

	return secret, nil
}

// serveHTTP serves the API until ctx is done, then shuts down the server and the feed.
func serveHTTP(ctx context.Context, server *http.Server, feed *api.Feed) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", server.Addr, err)
	}

	// Done channel is closed after shutdown finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()
		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.ErrorKV(ctx, "HTTP shutdown failed", "error", shutdownErr)
		}

		// Hijacked feed connections are not tracked by Shutdown.
		feed.Close()
	}()

	if err = server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	<-done

	return nil
}

// serveHealth runs the gRPC health service probed by `alarm-monitor check`.
func serveHealth(ctx context.Context, address string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	healthServer := health.NewServer()
	healthServer.SetServingStatus(common.HubServiceName, healthpb.HealthCheckResponse_SERVING)

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC health server")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err = grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done

	return nil
}
