package main

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthService = "reef.v1.Engine"

// healthEndpoint serves grpc.health.v1 so supervisors can probe the daemon.
type healthEndpoint struct {
	srv    *grpc.Server
	status *health.Server
	addr   net.Addr
}

func startHealth(addr string, logger *slog.Logger) (*healthEndpoint, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.Error("health server stopped", "err", err)
		}
	}()
	return &healthEndpoint{srv: srv, status: hs, addr: lis.Addr()}, nil
}

func (h *healthEndpoint) setServing(serving bool) {
	if h == nil {
		return
	}
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.status.SetServingStatus("", st)
	h.status.SetServingStatus(healthService, st)
}

func (h *healthEndpoint) stop() {
	if h == nil {
		return
	}
	h.status.Shutdown()
	h.srv.GracefulStop()
}
