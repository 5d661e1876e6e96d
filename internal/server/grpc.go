package server

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// grpcHealth is the gRPC health surface the platform's probes talk to. The
// REST API carries all functionality; this listener exists so orchestrators
// using the standard health protocol need no HTTP sidecar.
type grpcHealth struct {
	server *grpc.Server
	health *health.Server
	log    *zap.Logger
}

// newGRPCHealth starts a health-only gRPC listener on the given port.
func newGRPCHealth(port int, log *zap.Logger) (*grpcHealth, error) {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := grpc.NewServer(grpc.ConnectionTimeout(30 * time.Second))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(s)

	g := &grpcHealth{server: s, health: healthServer, log: log}

	go func() {
		if err := s.Serve(listener); err != nil {
			log.Error("grpc server failed", zap.Error(err))
		}
	}()
	log.Info("grpc health listener started", zap.String("addr", addr))

	return g, nil
}

// SetComponent publishes the serving status of one named subsystem so probes
// can watch "ratetables" or "llm" instead of only the overall service.
func (g *grpcHealth) SetComponent(name string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(name, status)
}

// Stop marks the service unhealthy and stops the listener, forcing the stop
// if draining takes too long.
func (g *grpcHealth) Stop() {
	g.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	stopped := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		g.log.Info("grpc server stopped gracefully")
	case <-time.After(5 * time.Second):
		g.log.Warn("grpc server forced to stop after timeout")
		g.server.Stop()
	}
}
