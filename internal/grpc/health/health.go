package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported for the ledger service; the empty name
// reports overall server health and tracks it too.
const ServiceName = "trader.Ledger"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Checker struct {
	Server   *health.Server
	pinger   Pinger
	interval time.Duration
	log      *slog.Logger
}

func NewChecker(pinger Pinger, interval time.Duration, log *slog.Logger) *Checker {
	return &Checker{
		Server:   health.NewServer(),
		pinger:   pinger,
		interval: interval,
		log:      log,
	}
}

// Run probes the store immediately and then every interval until ctx ends,
// when it marks everything NOT_SERVING.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			c.Server.Shutdown()
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, c.interval/2+time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := c.pinger.Ping(pingCtx); err != nil {
		c.log.Warn("health: database ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	c.Server.SetServingStatus("", status)
	c.Server.SetServingStatus(ServiceName, status)
	return status
}
