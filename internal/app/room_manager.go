package app

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/metrics"
	"github.com/rs/zerolog/log"
)

const DefaultRoomShards = 32

// Departure is one room a connection left, with the count after leaving.
type Departure struct {
	RoomID      domain.RoomID
	MemberCount int
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
}

// RoomManager keeps room membership in shards keyed by room id so joins in
// unrelated rooms do not contend. Rooms are created on first join and
// dropped when their last member leaves.
type RoomManager struct {
	shards []*roomShard
	now    func() time.Time
}

func NewRoomManager(shards int) *RoomManager {
	if shards <= 0 {
		shards = DefaultRoomShards
	}
	m := &RoomManager{shards: make([]*roomShard, shards), now: time.Now}
	for i := range m.shards {
		m.shards[i] = &roomShard{rooms: make(map[domain.RoomID]core.RoomService)}
	}
	return m
}

func (m *RoomManager) shard(id domain.RoomID) *roomShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

// Join adds c to the room, creating it if needed. Joining twice is a no-op
// that still reports the current count.
func (m *RoomManager) Join(c *core.Connection, id domain.RoomID) (count int, joined bool, err error) {
	s := m.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if ok && c.InRoom(id) {
		return room.MemberCount(), false, nil
	}
	if !c.TrackJoin(id) {
		return 0, false, core.ErrConnClosed
	}
	if !ok {
		room = core.NewRoomService(domain.NewRoom(id, m.now()))
		s.rooms[id] = room
		metrics.Rooms.Inc()
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	}
	joined = room.AddMember(c)
	return room.MemberCount(), joined, nil
}

// Leave removes c from the room. Leaving a room one is not in is a no-op.
func (m *RoomManager) Leave(c *core.Connection, id domain.RoomID) (count int, left bool) {
	s := m.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	c.TrackLeave(id)
	room, ok := s.rooms[id]
	if !ok {
		return 0, false
	}
	left = room.RemoveMember(c.ID())
	count = room.MemberCount()
	if count == 0 {
		delete(s.rooms, id)
		metrics.Rooms.Dec()
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room dropped")
	}
	return count, left
}

// LeaveAll removes c from every room it joined.
func (m *RoomManager) LeaveAll(c *core.Connection) []Departure {
	var out []Departure
	for _, id := range c.Rooms() {
		if count, left := m.Leave(c, id); left {
			out = append(out, Departure{RoomID: id, MemberCount: count})
		}
	}
	return out
}

// Recipients snapshots the room's members under the shard lock. Delivery
// happens on the returned slice without holding any lock.
func (m *RoomManager) Recipients(id domain.RoomID, exclude core.SessionID) []*core.Connection {
	s := m.shard(id)
	s.mu.RLock()
	room, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return room.Recipients(exclude)
}

// Broadcast delivers frame to every member of id except exclude.
func (m *RoomManager) Broadcast(f *Fanout, id domain.RoomID, frame core.Frame, exclude core.SessionID) core.PublishResult {
	return f.Deliver(m.Recipients(id, exclude), frame)
}

func (m *RoomManager) MemberCount(id domain.RoomID) int {
	s := m.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if room, ok := s.rooms[id]; ok {
		return room.MemberCount()
	}
	return 0
}

func (m *RoomManager) MembersOf(id domain.RoomID) []core.MemberDTO {
	s := m.shard(id)
	s.mu.RLock()
	room, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok {
		return []core.MemberDTO{}
	}
	return room.MembersSnapshot()
}

func (m *RoomManager) List() []core.RoomInfo {
	out := []core.RoomInfo{}
	for _, s := range m.shards {
		s.mu.RLock()
		for id, r := range s.rooms {
			out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount(), CreatedAt: r.Room().CreatedAt})
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
