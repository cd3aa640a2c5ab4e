package reliability

import (
	"context"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/pkg/circuitbreaker"
	"roomrelay/pkg/retry"

	"go.uber.org/zap"
)

// StatsRepositoryWrapper guards a remote stats repository with retries and a
// circuit breaker so an unreachable backend does not stall the flush loop.
type StatsRepositoryWrapper struct {
	repo           ports.StatsRepository
	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.SugaredLogger
}

func NewStatsRepositoryWrapper(
	repo ports.StatsRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *StatsRepositoryWrapper {
	w := &StatsRepositoryWrapper{
		repo:           repo,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
		logger:         logger,
	}
	w.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("stats repository circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return w
}

// FlushCounters retries transient failures. Once the breaker opens, flushes
// fail fast with circuitbreaker.ErrOpen and the deltas are dropped.
func (w *StatsRepositoryWrapper) FlushCounters(ctx context.Context, deltas map[string]int64) error {
	return w.circuitBreaker.Execute(func() error {
		return retry.Retry(ctx, w.retryConfig, func(ctx context.Context) error {
			return w.repo.FlushCounters(ctx, deltas)
		})
	})
}

func (w *StatsRepositoryWrapper) Load(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	err := w.circuitBreaker.Execute(func() error {
		var err error
		stats, err = w.repo.Load(ctx)
		return err
	})
	return stats, err
}

// Ping bypasses the breaker so readiness reflects the backend itself.
func (w *StatsRepositoryWrapper) Ping(ctx context.Context) error {
	return w.repo.Ping(ctx)
}

func (w *StatsRepositoryWrapper) Close() error {
	return w.repo.Close()
}

func (w *StatsRepositoryWrapper) BreakerState() circuitbreaker.State {
	return w.circuitBreaker.State()
}
