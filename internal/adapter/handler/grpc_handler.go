package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/sweet-shop/internal/port"
)

// HealthServiceName is the service name reported alongside the overall ("") status.
const HealthServiceName = "sweetshop.Inventory"

// GRPCHealth serves grpc.health.v1.Health and keeps its status in line with
// whether the store answers pings.
type GRPCHealth struct {
	server   *health.Server
	checker  port.HealthChecker
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

func NewGRPCHealth(checker port.HealthChecker, interval time.Duration, logger *zap.Logger) *GRPCHealth {
	g := &GRPCHealth{
		server:   health.NewServer(),
		checker:  checker,
		interval: interval,
		timeout:  2 * time.Second,
		logger:   logger,
	}
	g.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return g
}

func (g *GRPCHealth) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, g.server)
}

// Run probes immediately and then every interval until ctx is done.
func (g *GRPCHealth) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	last := g.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := g.Probe(ctx)
			if status != last {
				g.logger.Info("store health changed", zap.String("status", status.String()))
				last = status
			}
		}
	}
}

func (g *GRPCHealth) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := g.checker.Ping(ctx); err != nil {
		g.logger.Warn("store ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.set(status)
	return status
}

// Shutdown reports NOT_SERVING permanently, ignoring later probes.
func (g *GRPCHealth) Shutdown() {
	g.server.Shutdown()
}

func (g *GRPCHealth) set(status healthpb.HealthCheckResponse_ServingStatus) {
	g.server.SetServingStatus("", status)
	g.server.SetServingStatus(HealthServiceName, status)
}
