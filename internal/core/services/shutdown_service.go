package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"

	"go.uber.org/zap"
)

const ShutdownReason = "Server shutting down"

type ShutdownHook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// ShutdownService coordinates graceful termination: stop accepting, notify
// every open connection, wait for them to close, then release background
// tasks. Shutdown is safe to call more than once.
type ShutdownService struct {
	sessions ports.SessionRegistry
	rooms    ports.RoomRegistry
	timeout  time.Duration
	logger   *zap.SugaredLogger

	mu            sync.Mutex
	stopAccepting []ShutdownHook
	stopped       []ShutdownHook

	once sync.Once
	done chan struct{}
	err  error
}

func NewShutdownService(sessions ports.SessionRegistry, rooms ports.RoomRegistry, timeout time.Duration, logger *zap.SugaredLogger) *ShutdownService {
	return &ShutdownService{
		sessions: sessions,
		rooms:    rooms,
		timeout:  timeout,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// OnStopAccepting registers a hook run first, before connections are notified.
func (s *ShutdownService) OnStopAccepting(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAccepting = append(s.stopAccepting, ShutdownHook{Name: name, Fn: fn})
}

// OnStopped registers a hook run after every connection closed.
func (s *ShutdownService) OnStopped(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, ShutdownHook{Name: name, Fn: fn})
}

func (s *ShutdownService) Shutdown(ctx context.Context) error {
	s.once.Do(func() {
		s.err = s.shutdown(ctx)
		close(s.done)
	})
	<-s.done
	return s.err
}

// Done is closed once shutdown has completed.
func (s *ShutdownService) Done() <-chan struct{} {
	return s.done
}

func (s *ShutdownService) shutdown(ctx context.Context) error {
	s.mu.Lock()
	stopAccepting := append([]ShutdownHook(nil), s.stopAccepting...)
	stopped := append([]ShutdownHook(nil), s.stopped...)
	s.mu.Unlock()

	var firstErr error
	runHooks := func(hooks []ShutdownHook) {
		for _, hook := range hooks {
			if err := hook.Fn(ctx); err != nil {
				s.logger.Errorw("shutdown hook failed", "hook", hook.Name, "error", err)
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", hook.Name, err)
				}
			}
		}
	}

	s.logger.Info("shutting down...")

	runHooks(stopAccepting)
	s.sessions.Drain()
	s.rooms.Close()

	conns := s.sessions.Snapshot()
	for _, conn := range conns {
		conn.Close(domain.CloseGoingAway, ShutdownReason)
	}
	s.logger.Infow("close notification sent", "connections", len(conns))

	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.sessions.Wait(waitCtx); err != nil {
		remaining := s.sessions.Snapshot()
		s.logger.Warnw("connections did not close in time, terminating",
			"remaining", len(remaining),
			"error", err,
		)
		for _, conn := range remaining {
			conn.Terminate()
			s.rooms.Leave(conn)
			s.sessions.Release(conn)
		}
	}

	runHooks(stopped)
	s.logger.Info("shutdown complete")
	return firstErr
}
