package services

import (
	"context"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"

	"go.uber.org/zap"
)

// LivenessService probes every admitted connection on a fixed period and
// evicts the ones that did not acknowledge the previous probe. Each tick is
// also the rate-limit window boundary.
type LivenessService struct {
	sessions ports.SessionRegistry
	rooms    ports.RoomRegistry
	stats    ports.StatsRecorder
	interval time.Duration
	logger   *zap.SugaredLogger
}

func NewLivenessService(
	sessions ports.SessionRegistry,
	rooms ports.RoomRegistry,
	stats ports.StatsRecorder,
	interval time.Duration,
	logger *zap.SugaredLogger,
) *LivenessService {
	return &LivenessService{
		sessions: sessions,
		rooms:    rooms,
		stats:    stats,
		interval: interval,
		logger:   logger,
	}
}

// Tick runs one probe round and returns the number of evicted connections.
func (l *LivenessService) Tick() int {
	evicted := 0
	for _, conn := range l.sessions.Snapshot() {
		if !conn.BeginProbe() {
			l.evict(conn)
			evicted++
			continue
		}

		conn.ResetMessageCount()
		if err := conn.Ping(); err != nil {
			l.logger.Debugw("error sending ping",
				"connection_id", conn.ID,
				"error", err,
			)
		}
	}

	if evicted > 0 {
		l.logger.Infow("evicted unresponsive connections", "count", evicted)
	}
	return evicted
}

func (l *LivenessService) evict(conn *domain.Connection) {
	conn.Terminate()
	left := l.rooms.Leave(conn)
	l.sessions.Release(conn)
	l.stats.Record(domain.StatLivenessEvictions, "", 1)

	l.logger.Infow("connection failed liveness probe",
		"connection_id", conn.ID,
		"user_id", conn.User,
		"rooms", left,
	)
}

// Run ticks until ctx is cancelled.
func (l *LivenessService) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}
