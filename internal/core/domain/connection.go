package domain

import (
	"sync/atomic"
	"time"
)

type ConnectionID string

// Close codes sent to peers.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
)

// Transport is the per-connection send capability exposed by the socket
// layer. Every method must be safe for concurrent use and must not block.
type Transport interface {
	// Enqueue queues a text payload for delivery. It reports false when the
	// peer is closed or can not keep up.
	Enqueue(payload []byte) bool
	Ping() error
	// Close starts a close handshake with the given code and reason.
	Close(code int, reason string)
	// Terminate drops the underlying socket without a handshake.
	Terminate()
}

// Connection is one admitted client session.
type Connection struct {
	ID          ConnectionID
	User        UserID
	AuthMethod  AuthMethod
	RemoteAddr  string
	ConnectedAt time.Time

	transport Transport
	alive     atomic.Bool
	messages  atomic.Int64
	closed    atomic.Bool
}

func NewConnection(id ConnectionID, identity Identity, remoteAddr string, transport Transport) *Connection {
	c := &Connection{
		ID:          id,
		User:        identity.UserID,
		AuthMethod:  identity.Method,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		transport:   transport,
	}
	c.alive.Store(true)
	return c
}

// Send delivers payload to the remote peer. Sends on a closed connection are
// dropped and reported as false.
func (c *Connection) Send(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	return c.transport.Enqueue(payload)
}

// MarkAlive records a probe acknowledgment. Acknowledgments that arrive after
// termination are ignored.
func (c *Connection) MarkAlive() {
	if c.closed.Load() {
		return
	}
	c.alive.Store(true)
}

func (c *Connection) Alive() bool {
	return c.alive.Load()
}

// BeginProbe clears the liveness flag and reports whether the previous probe
// was acknowledged.
func (c *Connection) BeginProbe() bool {
	return c.alive.CompareAndSwap(true, false)
}

// CountMessage increments the per-window message counter and returns the new value.
func (c *Connection) CountMessage() int64 {
	return c.messages.Add(1)
}

func (c *Connection) MessageCount() int64 {
	return c.messages.Load()
}

func (c *Connection) ResetMessageCount() {
	c.messages.Store(0)
}

func (c *Connection) Ping() error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.transport.Ping()
}

// Close sends a close frame. The connection is considered closed immediately.
func (c *Connection) Close(code int, reason string) {
	if c.closed.CompareAndSwap(false, true) {
		c.transport.Close(code, reason)
	}
}

// Terminate drops the socket without a close handshake. Safe to call more than once.
func (c *Connection) Terminate() {
	c.closed.Store(true)
	c.transport.Terminate()
}

func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}
