package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Checker runs periodic health and incident checks in the background.
type Checker struct {
	monitor  *Monitor
	keys     []string
	interval time.Duration
}

// NewChecker creates a background checker over the named sources (all when
// keys is empty). A non-positive interval defaults to 15 minutes.
func NewChecker(m *Monitor, keys []string, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Checker{monitor: m, keys: keys, interval: interval}
}

// Run checks once immediately and then on every tick. It blocks until ctx
// is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting incident checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.check(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("incident checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	if _, err := c.monitor.Health(ctx, c.keys); err != nil {
		log.Error("monitoring: health check failed", zap.Error(err))
	}
	results, err := c.monitor.Incidents(ctx, c.keys)
	if err != nil {
		log.Error("monitoring: incident check failed", zap.Error(err))
		return
	}
	raised, delivered := 0, 0
	for _, r := range results {
		raised += len(r.Alerts)
		delivered += r.Delivered
	}
	log.Info("monitoring: check complete",
		zap.Int("sources", len(results)),
		zap.Int("alerts_raised", raised),
		zap.Int("alerts_delivered", delivered),
	)
}
