package memory

import (
	"context"
	"strings"
	"sync"

	"roomrelay/internal/core/domain"
)

// StatsRepository keeps counters in process memory.
type StatsRepository struct {
	mu       sync.RWMutex
	counters map[string]int64
}

func NewMemoryStatsRepository() *StatsRepository {
	return &StatsRepository{
		counters: make(map[string]int64),
	}
}

func (r *StatsRepository) FlushCounters(_ context.Context, deltas map[string]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, delta := range deltas {
		r.counters[key] += delta
	}
	return nil
}

func (r *StatsRepository) Load(_ context.Context) (domain.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(domain.Stats, len(r.counters))
	for key, value := range r.counters {
		if strings.Contains(key, ":") {
			continue
		}
		stats[domain.Stat(key)] = value
	}
	return stats, nil
}

// Get returns a single counter, labelled or not.
func (r *StatsRepository) Get(key string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[key]
}

func (r *StatsRepository) Ping(context.Context) error { return nil }

func (r *StatsRepository) Close() error { return nil }
