package services

import (
	"sync"
	"testing"
	"time"

	"roomrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRoomService_JoinEnforcesCapacity(t *testing.T) {
	rooms := NewRoomService(2, newCountingStats(), testLogger(t))
	a, _ := newConn("a")
	b, _ := newConn("b")
	c, _ := newConn("c")

	require.NoError(t, rooms.Join("r1", a))
	require.NoError(t, rooms.Join("r1", b))

	err := rooms.Join("r1", c)
	assert.ErrorIs(t, err, domain.ErrRoomFull)
	assert.Equal(t, 2, rooms.MemberCount("r1"))
	assert.Empty(t, rooms.RoomsOf(c))
}

func TestRoomService_RejoinDoesNotConsumeCapacity(t *testing.T) {
	rooms := NewRoomService(2, newCountingStats(), testLogger(t))
	a, _ := newConn("a")
	b, _ := newConn("b")

	require.NoError(t, rooms.Join("r1", a))
	require.NoError(t, rooms.Join("r1", a))
	require.NoError(t, rooms.Join("r1", b))
	assert.Equal(t, 2, rooms.MemberCount("r1"))
}

func TestRoomService_JoinRejectsEmptyRoom(t *testing.T) {
	rooms := NewRoomService(2, newCountingStats(), testLogger(t))
	a, _ := newConn("a")
	assert.ErrorIs(t, rooms.Join("", a), domain.ErrInvalidRoom)
	assert.Zero(t, rooms.RoomCount())
}

func TestRoomService_LeaveDeletesEmptyRooms(t *testing.T) {
	stats := newCountingStats()
	rooms := NewRoomService(2, stats, testLogger(t))
	a, _ := newConn("a")
	b, _ := newConn("b")

	require.NoError(t, rooms.Join("r1", a))
	require.NoError(t, rooms.Join("r1", b))
	require.NoError(t, rooms.Join("r2", a))

	assert.ElementsMatch(t, []domain.RoomID{"r1", "r2"}, rooms.Leave(a))
	assert.True(t, rooms.Exists("r1"))
	assert.False(t, rooms.Exists("r2"))

	rooms.Leave(b)
	assert.False(t, rooms.Exists("r1"))
	assert.Zero(t, rooms.RoomCount())
	assert.Equal(t, int64(2), stats.get(domain.StatRoomsDeleted))

	// idempotent
	assert.Empty(t, rooms.Leave(a))

	// a fresh join recreates the room
	require.NoError(t, rooms.Join("r1", a))
	assert.Equal(t, 1, rooms.MemberCount("r1"))
}

func TestRoomService_BroadcastExcludesSender(t *testing.T) {
	rooms := NewRoomService(3, newCountingStats(), testLogger(t))
	a, ta := newConn("a")
	b, tb := newConn("b")
	c, tc := newConn("c")
	require.NoError(t, rooms.Join("r1", a))
	require.NoError(t, rooms.Join("r1", b))
	require.NoError(t, rooms.Join("r1", c))

	c.Terminate()
	n := rooms.Broadcast("r1", a, []byte(`{"x":1}`))

	assert.Equal(t, 1, n)
	assert.Empty(t, ta.messages())
	assert.Equal(t, []string{`{"x":1}`}, tb.messages())
	assert.Empty(t, tc.messages())
}

func TestRoomService_BroadcastToUnknownRoom(t *testing.T) {
	rooms := NewRoomService(2, newCountingStats(), testLogger(t))
	a, _ := newConn("a")
	assert.Zero(t, rooms.Broadcast("nope", a, []byte("{}")))
}

func TestRoomService_BroadcastFullQueueNotCounted(t *testing.T) {
	rooms := NewRoomService(2, newCountingStats(), testLogger(t))
	a, _ := newConn("a")
	b, tb := newConn("b")
	require.NoError(t, rooms.Join("r1", a))
	require.NoError(t, rooms.Join("r1", b))

	tb.full = true
	assert.Zero(t, rooms.Broadcast("r1", a, []byte("{}")))
}

func TestRoomService_TouchAndSweep(t *testing.T) {
	stats := newCountingStats()
	rooms := NewRoomService(2, stats, testLogger(t))
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rooms.now = func() time.Time { return base }

	a, ta := newConn("a")
	b, _ := newConn("b")
	require.NoError(t, rooms.Join("stale", a))
	require.NoError(t, rooms.Join("fresh", b))

	rooms.now = func() time.Time { return base.Add(50 * time.Minute) }
	rooms.Touch("fresh")
	rooms.Touch("missing")
	assert.False(t, rooms.Exists("missing"))

	swept := rooms.Sweep(time.Hour, base.Add(61*time.Minute))

	assert.Equal(t, []domain.RoomID{"stale"}, swept)
	assert.False(t, rooms.Exists("stale"))
	assert.True(t, rooms.Exists("fresh"))
	assert.Empty(t, rooms.RoomsOf(a))
	assert.False(t, a.IsClosed(), "swept members keep their connection")
	assert.Empty(t, ta.messages())
	assert.Equal(t, int64(1), stats.get(domain.StatRoomsSwept))
}

func TestRoomService_CloseRefusesJoinButAllowsLeave(t *testing.T) {
	rooms := NewRoomService(2, newCountingStats(), testLogger(t))
	a, _ := newConn("a")
	b, _ := newConn("b")
	require.NoError(t, rooms.Join("r1", a))

	rooms.Close()

	assert.ErrorIs(t, rooms.Join("r1", b), domain.ErrShuttingDown)
	assert.Equal(t, []domain.RoomID{"r1"}, rooms.Leave(a))
	assert.Zero(t, rooms.RoomCount())
}

func TestRoomService_RecordsRoomCreation(t *testing.T) {
	stats := new(MockStatsRecorder)
	stats.On("Record", domain.StatRoomsCreated, "", int64(1)).Once()
	stats.On("Record", domain.StatDeliveries, "", mock.AnythingOfType("int64")).Maybe()

	rooms := NewRoomService(2, stats, testLogger(t))
	a, _ := newConn("a")
	b, _ := newConn("b")
	require.NoError(t, rooms.Join("r1", a))
	require.NoError(t, rooms.Join("r1", b))

	stats.AssertExpectations(t)
}

func TestRoomService_ConcurrentJoinNeverExceedsCapacity(t *testing.T) {
	rooms := NewRoomService(2, newCountingStats(), testLogger(t))

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _ := newConn("u")
			if rooms.Join("hot", conn) == nil {
				mu.Lock()
				joined++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, joined)
	assert.Equal(t, 2, rooms.MemberCount("hot"))
}

func TestRoomService_Rooms(t *testing.T) {
	rooms := NewRoomService(2, newCountingStats(), testLogger(t))
	a, _ := newConn("a")
	require.NoError(t, rooms.Join("b-room", a))
	require.NoError(t, rooms.Join("a-room", a))

	infos := rooms.Rooms()
	require.Len(t, infos, 2)
	assert.Equal(t, domain.RoomID("a-room"), infos[0].ID)
	assert.Equal(t, 1, infos[1].Members)
}
