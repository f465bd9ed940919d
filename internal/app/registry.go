package app

import (
	"errors"
	"sync"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/metrics"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownSession   = errors.New("unknown session")
	ErrDuplicateSession = errors.New("session already registered")
)

type AuthOutcome int

const (
	AuthOK AuthOutcome = iota
	AuthAlreadyAuthenticated
	AuthRejected
)

func (o AuthOutcome) String() string {
	switch o {
	case AuthOK:
		return "ok"
	case AuthAlreadyAuthenticated:
		return "already_authenticated"
	case AuthRejected:
		return "rejected"
	}
	return "unknown"
}

// Registry owns every open Connection and the user -> sessions index used
// for multi-device delivery.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.SessionID]*core.Connection
	byUser map[domain.UserID]map[core.SessionID]*core.Connection

	rooms *RoomManager
}

func NewRegistry(rooms *RoomManager) *Registry {
	return &Registry{
		conns:  make(map[core.SessionID]*core.Connection),
		byUser: make(map[domain.UserID]map[core.SessionID]*core.Connection),
		rooms:  rooms,
	}
}

func (r *Registry) Register(c *core.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID()]; ok {
		return ErrDuplicateSession
	}
	r.conns[c.ID()] = c
	metrics.Connections.Inc()
	log.Info().Str("module", "app.registry").Str("sid", string(c.ID())).Msg("registered connection")
	return nil
}

// Authenticate binds u to the session. A session that is already bound
// keeps its identity and gets AuthAlreadyAuthenticated.
func (r *Registry) Authenticate(sid core.SessionID, u domain.User) (AuthOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[sid]
	if !ok {
		return AuthRejected, ErrUnknownSession
	}
	already, err := c.Authenticate(u)
	if err != nil {
		return AuthRejected, err
	}
	if already {
		return AuthAlreadyAuthenticated, nil
	}
	devices, ok := r.byUser[u.ID]
	if !ok {
		devices = make(map[core.SessionID]*core.Connection)
		r.byUser[u.ID] = devices
	}
	devices[sid] = c
	metrics.AuthenticatedConnections.Inc()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(u.ID)).Int("devices", len(devices)).Msg("authenticated")
	return AuthOK, nil
}

func (r *Registry) Get(sid core.SessionID) (*core.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[sid]
	return c, ok
}

// ConnectionsFor returns every live session of a user.
func (r *Registry) ConnectionsFor(uid domain.UserID) []*core.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	devices := r.byUser[uid]
	out := make([]*core.Connection, 0, len(devices))
	for _, c := range devices {
		out = append(out, c)
	}
	return out
}

// Unregister closes the connection, forgets it and removes it from every
// room it joined. The returned departures carry post-leave member counts.
// Calling it again for the same session returns nil.
func (r *Registry) Unregister(sid core.SessionID) []Departure {
	r.mu.Lock()
	c, ok := r.conns[sid]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.conns, sid)
	u, authed := c.User()
	if authed {
		if devices, ok := r.byUser[u.ID]; ok {
			delete(devices, sid)
			if len(devices) == 0 {
				delete(r.byUser, u.ID)
			}
		}
		metrics.AuthenticatedConnections.Dec()
	}
	metrics.Connections.Dec()
	r.mu.Unlock()

	c.Close()
	departures := r.rooms.LeaveAll(c)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(u.ID)).Int("rooms", len(departures)).Msg("unregistered")
	return departures
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Sessions snapshots all registered session ids.
func (r *Registry) Sessions() []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.SessionID, 0, len(r.conns))
	for sid := range r.conns {
		out = append(out, sid)
	}
	return out
}

// DeviceCount reports how many live sessions a user has.
func (r *Registry) DeviceCount(uid domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[uid])
}
