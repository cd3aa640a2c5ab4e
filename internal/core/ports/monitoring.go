package ports

import (
	"time"

	"roomrelay/internal/core/domain"
)

// MetricsCollector exports relay activity to a metrics backend.
type MetricsCollector interface {
	RecordStat(stat domain.Stat, label string, delta int64)
	SetActiveConnections(n int)
	SetActiveRooms(n int)
	ObserveDispatch(messageType string, d time.Duration)
}

// DispatchObserver is optionally implemented by a StatsRecorder that also
// wants per-message dispatch latency.
type DispatchObserver interface {
	ObserveDispatch(messageType string, d time.Duration)
}
