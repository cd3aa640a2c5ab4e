package services

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"roomrelay/internal/core/domain"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// fakeTransport records everything the core asks of the socket layer.
type fakeTransport struct {
	mu          sync.Mutex
	sent        [][]byte
	pings       int
	closeCode   int
	closeReason string
	terminated  bool
	full        bool
	onClose     func()
}

func (f *fakeTransport) Enqueue(p []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.terminated {
		return false
	}
	f.sent = append(f.sent, append([]byte(nil), p...))
	return true
}

func (f *fakeTransport) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeTransport) Close(code int, reason string) {
	f.mu.Lock()
	f.closeCode = code
	f.closeReason = reason
	onClose := f.onClose
	f.mu.Unlock()
	if onClose != nil {
		onClose()
	}
}

func (f *fakeTransport) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = true
}

func (f *fakeTransport) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, p := range f.sent {
		out[i] = string(p)
	}
	return out
}

func (f *fakeTransport) last() string {
	msgs := f.messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

var connSeq atomic.Int64

func newConn(user string) (*domain.Connection, *fakeTransport) {
	tr := &fakeTransport{}
	id := domain.ConnectionID(fmt.Sprintf("conn_%d", connSeq.Add(1)))
	conn := domain.NewConnection(id, domain.Identity{UserID: domain.UserID(user), Method: domain.AuthMethodStaticToken}, "127.0.0.1", tr)
	return conn, tr
}

// MockStatsRecorder is a testify mock for ports.StatsRecorder.
type MockStatsRecorder struct {
	mock.Mock
}

func (m *MockStatsRecorder) Record(stat domain.Stat, label string, delta int64) {
	m.Called(stat, label, delta)
}

// countingStats sums recorded deltas per stat.
type countingStats struct {
	mu     sync.Mutex
	totals map[domain.Stat]int64
	labels map[string]int64
}

func newCountingStats() *countingStats {
	return &countingStats{totals: make(map[domain.Stat]int64), labels: make(map[string]int64)}
}

func (c *countingStats) Record(stat domain.Stat, label string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals[stat] += delta
	if label != "" {
		c.labels[StatKey(stat, label)] += delta
	}
}

func (c *countingStats) get(stat domain.Stat) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals[stat]
}

func (c *countingStats) getLabel(stat domain.Stat, label string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.labels[StatKey(stat, label)]
}

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}
