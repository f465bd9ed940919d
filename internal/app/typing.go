package app

import (
	"sort"
	"sync"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
)

const DefaultTypingTTL = 5 * time.Second

type typingKey struct {
	room domain.RoomID
	user domain.UserID
}

type typingEntry struct {
	user    domain.User
	expires time.Time
	timer   *time.Timer
}

// TypingTracker keeps (room, user) typing indicators that expire on their
// own. Start and Stop report only real transitions so callers broadcast
// once per change. OnExpire fires for indicators nobody stopped.
type TypingTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[typingKey]*typingEntry

	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
	onExpire  func(room domain.RoomID, user domain.User)
}

func NewTypingTracker(ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{
		ttl:       ttl,
		entries:   make(map[typingKey]*typingEntry),
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
}

// OnExpire registers the callback for indicators that timed out. It is
// called without the tracker lock held.
func (t *TypingTracker) OnExpire(fn func(room domain.RoomID, user domain.User)) {
	t.mu.Lock()
	t.onExpire = fn
	t.mu.Unlock()
}

// Start creates or refreshes the indicator. started is false on refresh.
func (t *TypingTracker) Start(room domain.RoomID, user domain.User) (started bool) {
	key := typingKey{room: room, user: user.ID}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e, ok := t.entries[key]
	if ok {
		e.expires = now.Add(t.ttl)
		e.timer.Reset(t.ttl)
		return false
	}
	e = &typingEntry{user: user, expires: now.Add(t.ttl)}
	e.timer = t.afterFunc(t.ttl, func() { t.expire(key, e) })
	t.entries[key] = e
	return true
}

// Stop clears the indicator. stopped is false when nothing was active.
func (t *TypingTracker) Stop(room domain.RoomID, uid domain.UserID) (stopped bool) {
	key := typingKey{room: room, user: uid}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.entries, key)
	return true
}

func (t *TypingTracker) IsTyping(room domain.RoomID, uid domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[typingKey{room: room, user: uid}]
	return ok && t.now().Before(e.expires)
}

// Typing lists users currently typing in room.
func (t *TypingTracker) Typing(room domain.RoomID) []domain.UserID {
	t.mu.Lock()
	now := t.now()
	var out []domain.UserID
	for k, e := range t.entries {
		if k.room == room && now.Before(e.expires) {
			out = append(out, k.user)
		}
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *TypingTracker) expire(key typingKey, e *typingEntry) {
	t.mu.Lock()
	cur, ok := t.entries[key]
	if !ok || cur != e {
		t.mu.Unlock()
		return
	}
	if t.now().Before(e.expires) {
		// Refreshed after the timer fired.
		t.mu.Unlock()
		return
	}
	delete(t.entries, key)
	fn := t.onExpire
	t.mu.Unlock()
	if fn != nil {
		fn(key.room, e.user)
	}
}
