package services

import (
	"context"
	"time"

	"roomrelay/internal/core/ports"
	"roomrelay/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CleanupService reclaims rooms that saw no traffic for longer than the TTL.
type CleanupService struct {
	rooms    ports.RoomRegistry
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *zap.SugaredLogger
}

func NewCleanupService(rooms ports.RoomRegistry, ttl, interval time.Duration, logger *zap.SugaredLogger) *CleanupService {
	return &CleanupService{
		rooms:    rooms,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Sweep runs one cleanup pass and returns the number of rooms removed.
func (c *CleanupService) Sweep(ctx context.Context) int {
	_, span := tracing.TraceRoomOperation(ctx, "sweep")
	defer span.End()

	swept := c.rooms.Sweep(c.ttl, c.now())
	span.SetAttributes(attribute.Int("rooms.swept", len(swept)))

	if len(swept) > 0 {
		c.logger.Infow("swept inactive rooms",
			"count", len(swept),
			"rooms", swept,
			"ttl", c.ttl,
		)
	}
	return len(swept)
}

func (c *CleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}
