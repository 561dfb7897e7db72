package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name probes use for a service-specific check. The
// empty name reports the whole server.
const ServiceName = "techtuto.Backend"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter mirrors storage reachability into the standard health
// service.
type HealthReporter struct {
	health *health.Server
	store  Pinger
	logger *slog.Logger
}

// NewServer builds the gRPC server with health registered. When
// serviceToken is set every call must carry it.
func NewServer(store Pinger, serviceToken string, logger *slog.Logger) (*grpc.Server, *HealthReporter, error) {
	var opts []grpc.ServerOption
	if serviceToken != "" {
		interceptor, err := NewServiceTokenInterceptor(serviceToken, logger)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.UnaryInterceptor(interceptor))
	}
	srv := grpc.NewServer(opts...)
	reporter := &HealthReporter{health: health.NewServer(), store: store, logger: logger}
	reporter.set(healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, reporter.health)
	return srv, reporter, nil
}

// Check pings storage once and publishes the result.
func (r *HealthReporter) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.store.Ping(pingCtx); err != nil {
		r.logger.Warn("storage ping failed", slog.Any("err", err))
		r.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	r.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Run re-checks storage every interval until ctx ends, then marks the
// server as shutting down.
func (r *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	r.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.health.Shutdown()
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}

func (r *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	r.health.SetServingStatus("", status)
	r.health.SetServingStatus(ServiceName, status)
}
