package app

import (
	"sync"
	"testing"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
)

// manualTimers lets a test fire typing expiries on demand.
type manualTimers struct {
	mu  sync.Mutex
	fns []func()
}

func (m *manualTimers) afterFunc(_ time.Duration, fn func()) *time.Timer {
	m.mu.Lock()
	m.fns = append(m.fns, fn)
	m.mu.Unlock()
	return time.AfterFunc(time.Hour, func() {})
}

func (m *manualTimers) fireAll() {
	m.mu.Lock()
	fns := m.fns
	m.fns = nil
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func newManualTracker(ttl time.Duration) (*TypingTracker, *time.Time, *manualTimers) {
	now := time.Unix(1_700_000_000, 0)
	timers := &manualTimers{}
	tr := NewTypingTracker(ttl)
	tr.now = func() time.Time { return now }
	tr.afterFunc = timers.afterFunc
	return tr, &now, timers
}

func TestTypingTransitions(t *testing.T) {
	tr, _, _ := newManualTracker(5 * time.Second)
	alice := domain.User{ID: "u1", Username: "alice"}

	if !tr.Start("global", alice) {
		t.Fatal("first start is not a transition")
	}
	if tr.Start("global", alice) {
		t.Error("refresh reported as transition")
	}
	if !tr.IsTyping("global", "u1") {
		t.Error("not typing after start")
	}
	if !tr.Stop("global", "u1") {
		t.Error("stop is not a transition")
	}
	if tr.Stop("global", "u1") {
		t.Error("second stop reported as transition")
	}
}

func TestTypingExpiresWithoutStop(t *testing.T) {
	tr, now, timers := newManualTracker(5 * time.Second)
	var expired []domain.UserID
	tr.OnExpire(func(room domain.RoomID, u domain.User) {
		if room != "global" {
			t.Errorf("room = %s", room)
		}
		expired = append(expired, u.ID)
	})

	tr.Start("global", domain.User{ID: "u1", Username: "alice"})
	*now = now.Add(6 * time.Second)
	if tr.IsTyping("global", "u1") {
		t.Error("still typing after ttl")
	}
	timers.fireAll()
	if len(expired) != 1 || expired[0] != "u1" {
		t.Fatalf("expired = %v", expired)
	}
	if len(tr.Typing("global")) != 0 {
		t.Error("expired entry kept")
	}
}

func TestTypingRefreshDefersExpiry(t *testing.T) {
	tr, now, timers := newManualTracker(5 * time.Second)
	fired := 0
	tr.OnExpire(func(domain.RoomID, domain.User) { fired++ })

	alice := domain.User{ID: "u1", Username: "alice"}
	tr.Start("global", alice)
	*now = now.Add(4 * time.Second)
	tr.Start("global", alice)
	*now = now.Add(2 * time.Second)
	timers.fireAll()
	if fired != 0 {
		t.Fatal("refreshed indicator expired early")
	}
	if got := tr.Typing("global"); len(got) != 1 {
		t.Errorf("typing = %v", got)
	}
}

func TestTypingRealTimerExpiry(t *testing.T) {
	tr := NewTypingTracker(20 * time.Millisecond)
	done := make(chan domain.User, 1)
	tr.OnExpire(func(_ domain.RoomID, u domain.User) { done <- u })
	tr.Start("clan-7", domain.User{ID: "u9", Username: "zed"})
	select {
	case u := <-done:
		if u.Username != "zed" {
			t.Errorf("user = %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("indicator never expired")
	}
}
