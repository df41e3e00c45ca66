// Package grpc serves the standard gRPC health service for the contactbook
// server. Serving status follows the configured dependency probes.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "contactbook.v1.API"

// Probe checks one dependency. A nil error means healthy.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthServer struct {
	address  string
	logger   logging.Logger
	probes   []Probe
	interval time.Duration
	timeout  time.Duration
	health   *health.Server
}

func NewHealthServer(a string, l logging.Logger, interval, timeout time.Duration, probes ...Probe) *HealthServer {
	return &HealthServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		probes:   probes,
		interval: interval,
		timeout:  timeout,
		health:   health.NewServer(),
	}
}

func (s *HealthServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.refresh(ctx)

	go func() {
		if s.interval <= 0 {
			<-ctx.Done()
		} else {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			for done := false; !done; {
				select {
				case <-ctx.Done():
					done = true
				case <-ticker.C:
					s.refresh(ctx)
				}
			}
		}
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}

// refresh runs every probe and publishes per-probe and overall status.
func (s *HealthServer) refresh(ctx context.Context) {
	overall := healthpb.HealthCheckResponse_SERVING

	for _, p := range s.probes {
		status := healthpb.HealthCheckResponse_SERVING
		if err := s.check(ctx, p); err != nil {
			s.logger.Warn(ctx, "health probe failed", "probe", p.Name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = status
		}
		s.health.SetServingStatus(p.Name, status)
	}

	s.health.SetServingStatus("", overall)
	s.health.SetServingStatus(ServiceName, overall)
}

func (s *HealthServer) check(ctx context.Context, p Probe) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return p.Check(ctx)
}
