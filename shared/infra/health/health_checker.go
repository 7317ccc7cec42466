package health

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nastyazhadan/paper-exchange/shared/interceptors/xrequestid"
)

const watchInterval = time.Second

// Server answers SERVING while alive reports true.
type Server struct {
	grpc_health_v1.UnimplementedHealthServer

	alive func() bool
}

func NewServer(alive func() bool) *Server {
	return &Server{alive: alive}
}

func (s *Server) status() grpc_health_v1.HealthCheckResponse_ServingStatus {
	if s.alive != nil && !s.alive() {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

func (s *Server) Check(
	ctx context.Context,
	request *grpc_health_v1.HealthCheckRequest,
) (*grpc_health_v1.HealthCheckResponse, error) {
	return &grpc_health_v1.HealthCheckResponse{
		Status: s.status(),
	}, nil
}

// Watch sends the current status and then every change until the stream ends.
func (s *Server) Watch(
	request *grpc_health_v1.HealthCheckRequest,
	stream grpc_health_v1.Health_WatchServer) error {
	last := s.status()
	if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: last}); err != nil {
		return err
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-ticker.C:
			current := s.status()
			if current == last {
				continue
			}
			last = current
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: current}); err != nil {
				return err
			}
		}
	}
}

func RegisterService(server *grpc.Server, alive func() bool) {
	grpc_health_v1.RegisterHealthServer(server, NewServer(alive))
}

// Probe asks the health service at address once and fails unless it is SERVING.
func Probe(ctx context.Context, address string) error {
	connection, err := grpc.NewClient(
		address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(xrequestid.Client),
	)
	if err != nil {
		return fmt.Errorf("grpc.NewClient: %w", err)
	}
	defer connection.Close()

	response, err := grpc_health_v1.NewHealthClient(connection).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("health.Check: %w", err)
	}
	if response.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("health.Check: status %s", response.GetStatus())
	}

	return nil
}
