package repositories

import (
	"context"

	"roomrelay/internal/core/ports"
	"roomrelay/internal/infrastructure/reliability"
	"roomrelay/internal/infrastructure/repositories/memory"
	redisrepo "roomrelay/internal/infrastructure/repositories/redis"
	"roomrelay/pkg/circuitbreaker"
	"roomrelay/pkg/config"
	"roomrelay/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to Redis when enabled and falls back to
// memory repositories when it can not.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory stats",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis stats repository")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory stats repository")
	}

	return factory
}

// UsingRedis reports whether repositories are backed by Redis.
func (f *RepositoryFactory) UsingRedis() bool {
	return f.useRedis && f.redisClient != nil
}

// CreateStatsRepository creates a stats repository (Redis or memory with fallback).
// The Redis repository is guarded by retries and a circuit breaker.
func (f *RepositoryFactory) CreateStatsRepository() ports.StatsRepository {
	if f.UsingRedis() {
		return reliability.NewStatsRepositoryWrapper(
			redisrepo.NewRedisStatsRepository(f.redisClient),
			retry.DefaultConfig(),
			circuitbreaker.DefaultConfig(),
			f.logger,
		)
	}
	return memory.NewMemoryStatsRepository()
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.UsingRedis() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
