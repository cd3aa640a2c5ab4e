package services

import (
	"sort"
	"sync"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"

	"go.uber.org/zap"
)

// RoomService is the process-wide room registry. A single mutex guards the
// rooms map and the per-connection membership index, so every operation is
// atomic with respect to the others.
type RoomService struct {
	mu          sync.Mutex
	rooms       map[domain.RoomID]*domain.Room
	memberships map[domain.ConnectionID]map[domain.RoomID]struct{}
	capacity    int
	closed      bool

	now    func() time.Time
	stats  ports.StatsRecorder
	logger *zap.SugaredLogger
}

func NewRoomService(capacity int, stats ports.StatsRecorder, logger *zap.SugaredLogger) *RoomService {
	if capacity <= 0 {
		capacity = domain.DefaultRoomCapacity
	}
	return &RoomService{
		rooms:       make(map[domain.RoomID]*domain.Room),
		memberships: make(map[domain.ConnectionID]map[domain.RoomID]struct{}),
		capacity:    capacity,
		now:         time.Now,
		stats:       stats,
		logger:      logger,
	}
}

func (s *RoomService) Join(roomID domain.RoomID, conn *domain.Connection) error {
	if roomID == "" {
		return domain.ErrInvalidRoom
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrShuttingDown
	}

	now := s.now()
	room, exists := s.rooms[roomID]
	if exists && room.Has(conn.ID) {
		room.LastActivity = now
		return nil
	}
	if exists && room.Size() >= s.capacity {
		return domain.ErrRoomFull
	}

	if !exists {
		room = domain.NewRoom(roomID, now)
		s.rooms[roomID] = room
		s.stats.Record(domain.StatRoomsCreated, "", 1)
	}
	room.Members[conn.ID] = conn
	room.LastActivity = now

	joined, ok := s.memberships[conn.ID]
	if !ok {
		joined = make(map[domain.RoomID]struct{})
		s.memberships[conn.ID] = joined
	}
	joined[roomID] = struct{}{}

	s.logger.Debugw("connection joined room",
		"room", roomID,
		"connection_id", conn.ID,
		"members", room.Size(),
	)
	return nil
}

// Leave removes conn from every room it belongs to and deletes rooms left
// empty. It is idempotent and returns the rooms that were left.
func (s *RoomService) Leave(conn *domain.Connection) []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()

	joined, ok := s.memberships[conn.ID]
	if !ok {
		return nil
	}
	delete(s.memberships, conn.ID)

	left := make([]domain.RoomID, 0, len(joined))
	for roomID := range joined {
		room, exists := s.rooms[roomID]
		if !exists {
			continue
		}
		delete(room.Members, conn.ID)
		left = append(left, roomID)
		if room.Size() == 0 {
			delete(s.rooms, roomID)
			s.stats.Record(domain.StatRoomsDeleted, "empty", 1)
			s.logger.Debugw("room deleted", "room", roomID, "reason", "empty")
		}
	}
	return left
}

// Broadcast enqueues payload to every open member of the room except the
// sender and returns the number of successful deliveries. Enqueueing happens
// under the registry lock so peers observe dispatch order.
func (s *RoomService) Broadcast(roomID domain.RoomID, sender *domain.Connection, payload []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return 0
	}

	delivered := 0
	for id, member := range room.Members {
		if sender != nil && id == sender.ID {
			continue
		}
		if member.IsClosed() {
			continue
		}
		if member.Send(payload) {
			delivered++
		}
	}

	if delivered > 0 {
		s.stats.Record(domain.StatDeliveries, "", int64(delivered))
	}
	return delivered
}

func (s *RoomService) Touch(roomID domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, exists := s.rooms[roomID]; exists {
		room.LastActivity = s.now()
	}
}

// Sweep deletes every room idle for longer than ttl, whether or not it still
// has members. Members keep their connections; only the membership goes.
func (s *RoomService) Sweep(ttl time.Duration, now time.Time) []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []domain.RoomID
	for roomID, room := range s.rooms {
		if !room.Expired(ttl, now) {
			continue
		}
		for connID := range room.Members {
			if joined, ok := s.memberships[connID]; ok {
				delete(joined, roomID)
				if len(joined) == 0 {
					delete(s.memberships, connID)
				}
			}
		}
		delete(s.rooms, roomID)
		swept = append(swept, roomID)
	}

	if len(swept) > 0 {
		s.stats.Record(domain.StatRoomsSwept, "", int64(len(swept)))
	}
	return swept
}

// Close refuses further joins. Leave keeps working so no membership dangles.
func (s *RoomService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *RoomService) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *RoomService) MemberCount(roomID domain.RoomID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, exists := s.rooms[roomID]; exists {
		return room.Size()
	}
	return 0
}

func (s *RoomService) Exists(roomID domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.rooms[roomID]
	return exists
}

func (s *RoomService) RoomsOf(conn *domain.Connection) []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()

	joined := s.memberships[conn.ID]
	rooms := make([]domain.RoomID, 0, len(joined))
	for roomID := range joined {
		rooms = append(rooms, roomID)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

// Rooms returns a snapshot of every room, ordered by id.
func (s *RoomService) Rooms() []domain.RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]domain.RoomInfo, 0, len(s.rooms))
	for _, room := range s.rooms {
		infos = append(infos, domain.RoomInfo{
			ID:           room.ID,
			Members:      room.Size(),
			CreatedAt:    room.CreatedAt,
			LastActivity: room.LastActivity,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
