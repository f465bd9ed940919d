package core

import (
	"sort"
	"sync"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
)

// SessionID identifies one open transport channel. A user with two devices
// has two sessions.
type SessionID string

type ConnState int

const (
	StateUnauthenticated ConnState = iota
	StateAuthenticated
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Connection is the hub-side view of one client channel: identity, lifecycle
// state and the rooms it joined. The registry owns it; rooms only reference it.
type Connection struct {
	id       SessionID
	signal   SignalConnection
	openedAt time.Time

	mu    sync.RWMutex
	state ConnState
	user  domain.User
	rooms map[domain.RoomID]struct{}
}

func NewConnection(id SessionID, signal SignalConnection) *Connection {
	return &Connection{
		id:       id,
		signal:   signal,
		openedAt: time.Now(),
		rooms:    make(map[domain.RoomID]struct{}),
	}
}

func (c *Connection) ID() SessionID       { return c.id }
func (c *Connection) OpenedAt() time.Time { return c.openedAt }

func (c *Connection) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// User returns the bound identity, ok is false if auth never succeeded.
// The identity stays readable after close for cleanup.
func (c *Connection) User() (domain.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user, c.user.ID != ""
}

// Authenticate binds u once. A second call keeps the first identity and
// reports already=true.
func (c *Connection) Authenticate(u domain.User) (already bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosed:
		return false, ErrConnClosed
	case StateAuthenticated:
		return true, nil
	}
	c.user = u
	c.state = StateAuthenticated
	return false, nil
}

// Send enqueues f on the transport. Nothing is delivered once closed.
func (c *Connection) Send(f Frame) error {
	c.mu.RLock()
	closed := c.state == StateClosed
	c.mu.RUnlock()
	if closed {
		return ErrConnClosed
	}
	return c.signal.TrySend(f)
}

// Close moves the connection to its terminal state and closes the
// transport. Only the first call returns true.
func (c *Connection) Close() bool {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return false
	}
	c.state = StateClosed
	c.mu.Unlock()
	c.signal.Close()
	return true
}

// TrackJoin records membership on the connection side. It refuses closed
// connections so a racing join cannot outlive the unregister cascade.
func (c *Connection) TrackJoin(id domain.RoomID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	c.rooms[id] = struct{}{}
	return true
}

func (c *Connection) TrackLeave(id domain.RoomID) {
	c.mu.Lock()
	delete(c.rooms, id)
	c.mu.Unlock()
}

func (c *Connection) InRoom(id domain.RoomID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[id]
	return ok
}

// Rooms returns the joined rooms in a stable order.
func (c *Connection) Rooms() []domain.RoomID {
	c.mu.RLock()
	out := make([]domain.RoomID, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
