package domain

import (
	"time"

	"roomrelay/pkg/utils"
)

type RoomID string

const DefaultRoomCapacity = 2

// Room is a named, capacity-bounded broadcast group. Rooms are owned by the
// room registry and must only be mutated under its lock.
type Room struct {
	ID           RoomID
	Members      map[ConnectionID]*Connection
	CreatedAt    time.Time
	LastActivity time.Time
}

func NewRoom(id RoomID, now time.Time) *Room {
	return &Room{
		ID:           id,
		Members:      make(map[ConnectionID]*Connection),
		CreatedAt:    now,
		LastActivity: now,
	}
}

func (r *Room) Size() int {
	return len(r.Members)
}

func (r *Room) Has(id ConnectionID) bool {
	_, ok := r.Members[id]
	return ok
}

// Expired reports whether the room saw no activity for longer than ttl.
func (r *Room) Expired(ttl time.Duration, now time.Time) bool {
	return utils.IsExpired(r.LastActivity, now, ttl)
}

// RoomInfo is a read-only snapshot of a room.
type RoomInfo struct {
	ID           RoomID    `json:"id"`
	Members      int       `json:"members"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}
