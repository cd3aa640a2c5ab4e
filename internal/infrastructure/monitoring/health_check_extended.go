package monitoring

import (
	"context"
	"errors"
	"time"

	"roomrelay/internal/core/ports"
)

var ErrDraining = errors.New("server is shutting down")

// AddStatsRepositoryCheck pings the stats repository (Redis when enabled).
func (h *HealthChecker) AddStatsRepositoryCheck(repo ports.StatsRepository, timeout time.Duration) {
	h.AddCheck("stats_repository", repo.Ping, timeout)
}

// AddDrainCheck fails once the session registry stops admitting connections,
// so load balancers stop routing new clients during shutdown.
func (h *HealthChecker) AddDrainCheck(draining func() bool) {
	h.AddCheck("accepting_connections", func(context.Context) error {
		if draining() {
			return ErrDraining
		}
		return nil
	}, time.Second)
}
