package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"roomrelay/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

// StatsRepository stores relay counters as fields of a single Redis hash.
// Labelled counters are stored as "stat:label" fields next to their total.
type StatsRepository struct {
	client *redis.Client
}

func NewRedisStatsRepository(client *redis.Client) *StatsRepository {
	return &StatsRepository{client: client}
}

func (r *StatsRepository) FlushCounters(ctx context.Context, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for field, delta := range deltas {
		pipe.HIncrBy(ctx, statsKey, field, delta)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush %d counters: %w", len(deltas), err)
	}
	return nil
}

// Load returns the unlabelled totals.
func (r *StatsRepository) Load(ctx context.Context) (domain.Stats, error) {
	values, err := r.client.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	stats := make(domain.Stats, len(values))
	for field, raw := range values {
		if strings.Contains(field, ":") {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stats field %s: %w", field, err)
		}
		stats[domain.Stat(field)] = n
	}
	return stats, nil
}

func (r *StatsRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close is a no-op; the client belongs to the repository factory.
func (r *StatsRepository) Close() error {
	return nil
}
