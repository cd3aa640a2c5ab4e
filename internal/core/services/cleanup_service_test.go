package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupService_SweepsStaleRooms(t *testing.T) {
	stats := newCountingStats()
	rooms := NewRoomService(2, stats, testLogger(t))
	base := time.Now()
	rooms.now = func() time.Time { return base.Add(-2 * time.Hour) }

	a, _ := newConn("a")
	require.NoError(t, rooms.Join("old", a))

	rooms.now = time.Now
	b, _ := newConn("b")
	require.NoError(t, rooms.Join("new", b))

	cleanup := NewCleanupService(rooms, time.Hour, time.Minute, testLogger(t))
	cleanup.now = func() time.Time { return base }

	assert.Equal(t, 1, cleanup.Sweep(context.Background()))
	assert.False(t, rooms.Exists("old"))
	assert.True(t, rooms.Exists("new"))
}

func TestCleanupService_RunStopsOnCancel(t *testing.T) {
	rooms := NewRoomService(2, newCountingStats(), testLogger(t))
	cleanup := NewCleanupService(rooms, time.Hour, time.Millisecond, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cleanup.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
