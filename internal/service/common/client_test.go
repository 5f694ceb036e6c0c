//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// TestDialHealth_ValidatesAddress verifies that DialHealth rejects empty addresses.
func TestDialHealth_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := DialHealth(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestHealthClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestHealthClient_callContext(t *testing.T) {
	t.Parallel()

	c := &HealthClient{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestHealthClient_Check probes a real health server.
func TestHealthClient_Check(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	status := health.NewServer()
	status.SetServingStatus("alarm.Hub", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, status)

	go func() {
		_ = server.Serve(lis)
	}()

	t.Cleanup(server.Stop)

	c, err := DialHealth(context.Background(), lis.Addr().String(), WithCallTimeout(2*time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
	})

	got, err := c.Check(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, got)

	got, err = c.Check(context.Background(), "alarm.Hub")
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, got)

	_, err = c.Check(context.Background(), "unknown")
	require.Error(t, err)

	var nilClient *HealthClient
	require.NoError(t, nilClient.Close())
}
