package ports

import (
	"context"

	"roomrelay/internal/core/domain"
)

// StatsRepository persists process counters. Deltas are keyed by stat name
// so a batcher can coalesce them.
type StatsRepository interface {
	FlushCounters(ctx context.Context, deltas map[string]int64) error
	Load(ctx context.Context) (domain.Stats, error)
	Ping(ctx context.Context) error
	Close() error
}
