package services

import (
	"context"
	"sync"

	"roomrelay/internal/core/domain"
)

// SessionService tracks every admitted connection so periodic tasks and the
// shutdown path can reach them.
type SessionService struct {
	mu            sync.Mutex
	sessions      map[domain.ConnectionID]*domain.Connection
	maxConcurrent int
	draining      bool

	drained     chan struct{}
	drainedOnce sync.Once
}

// NewSessionService creates a registry. maxConcurrent <= 0 means unlimited.
func NewSessionService(maxConcurrent int) *SessionService {
	return &SessionService{
		sessions:      make(map[domain.ConnectionID]*domain.Connection),
		maxConcurrent: maxConcurrent,
		drained:       make(chan struct{}),
	}
}

func (s *SessionService) Admit(conn *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draining {
		return domain.ErrShuttingDown
	}
	if s.maxConcurrent > 0 && len(s.sessions) >= s.maxConcurrent {
		return domain.ErrTooManyConnections
	}
	s.sessions[conn.ID] = conn
	return nil
}

// Release forgets conn. It reports whether the connection was still registered.
func (s *SessionService) Release(conn *domain.Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[conn.ID]; !ok {
		return false
	}
	delete(s.sessions, conn.ID)
	s.signalIfDrainedLocked()
	return true
}

func (s *SessionService) Snapshot() []*domain.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make([]*domain.Connection, 0, len(s.sessions))
	for _, conn := range s.sessions {
		conns = append(conns, conn)
	}
	return conns
}

func (s *SessionService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Drain stops admitting connections. Wait returns once the registry is empty.
func (s *SessionService) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draining = true
	s.signalIfDrainedLocked()
}

func (s *SessionService) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}

// Wait blocks until Drain was called and every session was released, or ctx is done.
func (s *SessionService) Wait(ctx context.Context) error {
	select {
	case <-s.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SessionService) signalIfDrainedLocked() {
	if s.draining && len(s.sessions) == 0 {
		s.drainedOnce.Do(func() { close(s.drained) })
	}
}
