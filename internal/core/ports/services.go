package ports

import (
	"context"
	"time"

	"roomrelay/internal/core/domain"
)

type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (domain.Identity, error)
	GenerateToken(userID domain.UserID, ttl time.Duration) (string, time.Time, error)
	JWTEnabled() bool
}

type RoomRegistry interface {
	Join(room domain.RoomID, conn *domain.Connection) error
	Leave(conn *domain.Connection) []domain.RoomID
	Broadcast(room domain.RoomID, sender *domain.Connection, payload []byte) int
	Touch(room domain.RoomID)
	Sweep(ttl time.Duration, now time.Time) []domain.RoomID
	Close()
	RoomCount() int
	MemberCount(room domain.RoomID) int
	Exists(room domain.RoomID) bool
	RoomsOf(conn *domain.Connection) []domain.RoomID
}

type SessionRegistry interface {
	Admit(conn *domain.Connection) error
	Release(conn *domain.Connection) bool
	Snapshot() []*domain.Connection
	Count() int
	Drain()
	Wait(ctx context.Context) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, conn *domain.Connection, raw []byte) error
}

// StatsRecorder receives counter increments. label narrows a stat, for
// example the error code of a rejected message, and may be empty.
type StatsRecorder interface {
	Record(stat domain.Stat, label string, delta int64)
}
