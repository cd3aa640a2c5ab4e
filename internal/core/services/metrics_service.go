package services

import (
	"context"
	"sync/atomic"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
)

// CounterSink receives keyed counter deltas, typically a batch.Batcher in
// front of a stats repository.
type CounterSink interface {
	Add(key string, delta int64)
}

// MetricsService is the process-wide activity tracker. Counters only grow;
// negative or zero deltas are ignored.
type MetricsService struct {
	counters  map[domain.Stat]*atomic.Int64
	collector ports.MetricsCollector
	sink      CounterSink
	startedAt time.Time
}

// NewMetricsService creates a tracker. collector and sink may be nil.
func NewMetricsService(collector ports.MetricsCollector, sink CounterSink) *MetricsService {
	counters := make(map[domain.Stat]*atomic.Int64, len(domain.AllStats))
	for _, stat := range domain.AllStats {
		counters[stat] = new(atomic.Int64)
	}
	return &MetricsService{
		counters:  counters,
		collector: collector,
		sink:      sink,
		startedAt: time.Now(),
	}
}

func (m *MetricsService) Record(stat domain.Stat, label string, delta int64) {
	if delta <= 0 {
		return
	}
	if counter, ok := m.counters[stat]; ok {
		counter.Add(delta)
	}
	if m.collector != nil {
		m.collector.RecordStat(stat, label, delta)
	}
	if m.sink != nil {
		m.sink.Add(string(stat), delta)
		if label != "" {
			m.sink.Add(StatKey(stat, label), delta)
		}
	}
}

// StatKey is the persisted key of a labelled stat.
func StatKey(stat domain.Stat, label string) string {
	return string(stat) + ":" + label
}

func (m *MetricsService) ObserveDispatch(messageType string, d time.Duration) {
	if m.collector != nil {
		m.collector.ObserveDispatch(messageType, d)
	}
}

func (m *MetricsService) Get(stat domain.Stat) int64 {
	if counter, ok := m.counters[stat]; ok {
		return counter.Load()
	}
	return 0
}

func (m *MetricsService) Snapshot() domain.Stats {
	stats := make(domain.Stats, len(m.counters))
	for stat, counter := range m.counters {
		stats[stat] = counter.Load()
	}
	return stats
}

func (m *MetricsService) Uptime() time.Duration {
	return time.Since(m.startedAt)
}

// UpdateGauges publishes the current connection and room counts.
func (m *MetricsService) UpdateGauges(sessions ports.SessionRegistry, rooms ports.RoomRegistry) {
	if m.collector == nil {
		return
	}
	m.collector.SetActiveConnections(sessions.Count())
	m.collector.SetActiveRooms(rooms.RoomCount())
}

// RunGauges refreshes gauges every interval until ctx is cancelled.
func (m *MetricsService) RunGauges(ctx context.Context, interval time.Duration, sessions ports.SessionRegistry, rooms ports.RoomRegistry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateGauges(sessions, rooms)
		}
	}
}
