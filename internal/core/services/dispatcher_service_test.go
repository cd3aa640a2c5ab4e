package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"roomrelay/internal/core/domain"
	apperrors "roomrelay/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	rooms      *RoomService
	stats      *countingStats
	dispatcher *DispatcherService
}

func newDispatcherFixture(t *testing.T, rateLimit int) *dispatcherFixture {
	stats := newCountingStats()
	rooms := NewRoomService(2, stats, testLogger(t))
	d := NewDispatcherService(rooms, stats, rateLimit, 1000, testLogger(t))
	d.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return &dispatcherFixture{rooms: rooms, stats: stats, dispatcher: d}
}

func (f *dispatcherFixture) send(t *testing.T, conn *domain.Connection, raw string) error {
	t.Helper()
	return f.dispatcher.Dispatch(context.Background(), conn, []byte(raw))
}

func TestDispatcher_EndToEndScenario(t *testing.T) {
	f := newDispatcherFixture(t, 100)
	a, ta := newConn("user_a")
	b, tb := newConn("user_b")

	require.NoError(t, f.send(t, a, `{"type":"join","room":"r1"}`))
	assert.JSONEq(t, `{"type":"joined","room":"r1"}`, ta.last())

	require.NoError(t, f.send(t, b, `{"type":"join","room":"r1"}`))
	assert.JSONEq(t, `{"type":"joined","room":"r1"}`, tb.last())
	assert.Len(t, ta.messages(), 1, "a receives nothing extra")

	require.NoError(t, f.send(t, a, `{"type":"chat","room":"r1","text":"hi"}`))
	assert.JSONEq(t, `{"type":"chat","from":"user_a","text":"hi","ts":1700000000000}`, tb.last())
	assert.Len(t, ta.messages(), 1, "chat is not echoed")
}

func TestDispatcher_SignalRelayedVerbatim(t *testing.T) {
	f := newDispatcherFixture(t, 100)
	a, ta := newConn("a")
	b, tb := newConn("b")
	require.NoError(t, f.send(t, a, `{"type":"join","room":"r1"}`))
	require.NoError(t, f.send(t, b, `{"type":"join","room":"r1"}`))

	raw := `{"type":"signal", "room":"r1","description":{"type":"offer","sdp":"v=0\r\n","x":[1,2]}}`
	require.NoError(t, f.send(t, a, raw))

	assert.Equal(t, raw, tb.last())
	assert.Len(t, ta.messages(), 1)
	assert.Equal(t, int64(1), f.stats.getLabel(domain.StatSignalsRelayed, "offer"))
}

func TestDispatcher_EmptySignalIsNoop(t *testing.T) {
	f := newDispatcherFixture(t, 100)
	a, _ := newConn("a")
	b, tb := newConn("b")
	require.NoError(t, f.send(t, a, `{"type":"join","room":"r1"}`))
	require.NoError(t, f.send(t, b, `{"type":"join","room":"r1"}`))

	require.NoError(t, f.send(t, a, `{"type":"signal","room":"r1"}`))
	assert.Len(t, tb.messages(), 1)
}

func TestDispatcher_RoomFull(t *testing.T) {
	f := newDispatcherFixture(t, 100)
	a, _ := newConn("a")
	b, _ := newConn("b")
	c, tc := newConn("c")
	require.NoError(t, f.send(t, a, `{"type":"join","room":"r1"}`))
	require.NoError(t, f.send(t, b, `{"type":"join","room":"r1"}`))

	err := f.send(t, c, `{"type":"join","room":"r1"}`)
	assert.Equal(t, apperrors.ErrCodeRoomFull, apperrors.CodeOf(err))
	assertErrorFrame(t, tc.last(), "ROOM_FULL")
	assert.Equal(t, 2, f.rooms.MemberCount("r1"))
	assert.False(t, c.IsClosed())
}

func TestDispatcher_RateLimit(t *testing.T) {
	f := newDispatcherFixture(t, 3)
	a, ta := newConn("a")
	b, tb := newConn("b")
	require.NoError(t, f.send(t, b, `{"type":"join","room":"r1"}`))

	require.NoError(t, f.send(t, a, `{"type":"join","room":"r1"}`))
	require.NoError(t, f.send(t, a, `{"type":"chat","room":"r1","text":"1"}`))
	require.NoError(t, f.send(t, a, `{"type":"chat","room":"r1","text":"2"}`))

	err := f.send(t, a, `{"type":"chat","room":"r1","text":"3"}`)
	assert.Equal(t, apperrors.ErrCodeRateLimit, apperrors.CodeOf(err))
	assertErrorFrame(t, ta.last(), "RATE_LIMIT")
	assert.Len(t, tb.messages(), 3, "joined + two chats, the excess is dropped")

	// a new window
	a.ResetMessageCount()
	require.NoError(t, f.send(t, a, `{"type":"chat","room":"r1","text":"4"}`))
	assert.Len(t, tb.messages(), 4)
	assert.Equal(t, int64(1), f.stats.getLabel(domain.StatMessagesRejected, "RATE_LIMIT"))
}

func TestDispatcher_MalformedInputIsInert(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code string
	}{
		{"not json", `not json`, "INVALID_JSON"},
		{"extra field", `{"type":"join","room":"r1","extra":1}`, "INVALID_FORMAT"},
		{"unknown type", `{"type":"kick","room":"r1"}`, "INVALID_FORMAT"},
		{"missing room", `{"type":"join"}`, "INVALID_FORMAT"},
		{"bad version", `{"type":"join","room":"r1","protocolVersion":7}`, "UNSUPPORTED_PROTOCOL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t, 100)
			a, ta := newConn("a")

			err := f.send(t, a, tt.raw)
			require.Error(t, err)
			assertErrorFrame(t, ta.last(), tt.code)
			assert.Zero(t, f.rooms.RoomCount())
			assert.Empty(t, f.rooms.RoomsOf(a))
			assert.False(t, a.IsClosed())
		})
	}
}

func TestDispatcher_ChatTruncated(t *testing.T) {
	f := newDispatcherFixture(t, 100)
	a, _ := newConn("a")
	b, tb := newConn("b")
	require.NoError(t, f.send(t, a, `{"type":"join","room":"r1"}`))
	require.NoError(t, f.send(t, b, `{"type":"join","room":"r1"}`))

	long := strings.Repeat("é", 1500)
	require.NoError(t, f.send(t, a, `{"type":"chat","room":"r1","text":"`+long+`"}`))

	var frame struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal([]byte(tb.last()), &frame))
	assert.Equal(t, strings.Repeat("é", 1000), frame.Text)
}

func TestDispatcher_ChatWithoutTextBroadcastsEmpty(t *testing.T) {
	f := newDispatcherFixture(t, 100)
	a, _ := newConn("a")
	b, tb := newConn("b")
	require.NoError(t, f.send(t, a, `{"type":"join","room":"r1"}`))
	require.NoError(t, f.send(t, b, `{"type":"join","room":"r1"}`))

	require.NoError(t, f.send(t, a, `{"type":"chat","room":"r1"}`))
	assert.JSONEq(t, `{"type":"chat","from":"a","text":"","ts":1700000000000}`, tb.last())
}

func TestDispatcher_TouchUpdatesActivity(t *testing.T) {
	f := newDispatcherFixture(t, 100)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.rooms.now = func() time.Time { return base }

	a, _ := newConn("a")
	require.NoError(t, f.send(t, a, `{"type":"join","room":"r1"}`))

	f.rooms.now = func() time.Time { return base.Add(59 * time.Minute) }
	require.NoError(t, f.send(t, a, `{"type":"chat","room":"r1","text":"still here"}`))

	assert.Empty(t, f.rooms.Sweep(time.Hour, base.Add(90*time.Minute)))
	assert.True(t, f.rooms.Exists("r1"))
}

func TestDispatcher_JoinDuringShutdown(t *testing.T) {
	f := newDispatcherFixture(t, 100)
	f.rooms.Close()
	a, ta := newConn("a")

	err := f.send(t, a, `{"type":"join","room":"r1"}`)
	assert.Equal(t, apperrors.ErrCodeServiceUnavailable, apperrors.CodeOf(err))
	assertErrorFrame(t, ta.last(), "SERVICE_UNAVAILABLE")
}

func assertErrorFrame(t *testing.T, raw, code string) {
	t.Helper()
	var frame struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &frame), raw)
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, code, frame.Code)
}
