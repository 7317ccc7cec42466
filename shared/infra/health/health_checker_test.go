package health

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T, alive func() bool) string {
	t.Helper()

	listener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	RegisterService(server, alive)

	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.GracefulStop)

	return listener.Addr().String()
}

func TestCheckFollowsLiveness(t *testing.T) {
	var alive atomic.Bool
	alive.Store(true)
	server := NewServer(alive.Load)

	response, err := server.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, response.GetStatus())

	alive.Store(false)
	response, err = server.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, response.GetStatus())
}

func TestProbe(t *testing.T) {
	var alive atomic.Bool
	alive.Store(true)
	address := startServer(t, alive.Load)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, Probe(ctx, address))

	alive.Store(false)
	assert.Error(t, Probe(ctx, address))
}

func TestWatchReportsChange(t *testing.T) {
	var alive atomic.Bool
	alive.Store(true)
	address := startServer(t, alive.Load)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connection, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer connection.Close()

	stream, err := grpc_health_v1.NewHealthClient(connection).Watch(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)

	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, first.GetStatus())

	alive.Store(false)
	second, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, second.GetStatus())
}
