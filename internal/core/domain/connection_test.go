package domain

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu         sync.Mutex
	sent       [][]byte
	pings      int
	closeCode  int
	terminated bool
	full       bool
}

func (f *fakeTransport) Enqueue(p []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.sent = append(f.sent, p)
	return true
}

func (f *fakeTransport) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeTransport) Close(code int, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCode = code
}

func (f *fakeTransport) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = true
}

func newTestConnection(tr Transport) *Connection {
	return NewConnection("conn_1", Identity{UserID: "user_1", Method: AuthMethodStaticToken}, "127.0.0.1", tr)
}

func TestConnection_SendAfterCloseIsDropped(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestConnection(tr)

	assert.True(t, c.Send([]byte("a")))
	c.Close(CloseGoingAway, "bye")
	assert.False(t, c.Send([]byte("b")))

	require.Len(t, tr.sent, 1)
	assert.Equal(t, CloseGoingAway, tr.closeCode)
	assert.ErrorIs(t, c.Ping(), ErrConnectionClosed)
}

func TestConnection_ProbeCycle(t *testing.T) {
	c := newTestConnection(&fakeTransport{})

	assert.True(t, c.Alive())
	assert.True(t, c.BeginProbe(), "fresh connection counts as alive")
	assert.False(t, c.Alive())
	assert.False(t, c.BeginProbe(), "unanswered probe")

	c.MarkAlive()
	assert.True(t, c.BeginProbe())
}

func TestConnection_LatePongIgnoredAfterTerminate(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestConnection(tr)
	c.BeginProbe()
	c.Terminate()
	c.MarkAlive()

	assert.False(t, c.Alive())
	assert.True(t, c.IsClosed())
	assert.True(t, tr.terminated)
}

func TestConnection_MessageCounter(t *testing.T) {
	c := newTestConnection(&fakeTransport{})
	assert.Equal(t, int64(1), c.CountMessage())
	assert.Equal(t, int64(2), c.CountMessage())
	c.ResetMessageCount()
	assert.Zero(t, c.MessageCount())
}

func TestRoom_Expired(t *testing.T) {
	now := time.Now()
	r := NewRoom("r1", now.Add(-2*time.Hour))
	assert.True(t, r.Expired(time.Hour, now))
	r.LastActivity = now.Add(-30 * time.Minute)
	assert.False(t, r.Expired(time.Hour, now))
}
