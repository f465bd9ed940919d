package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
)

type recordingSignal struct {
	mu     sync.Mutex
	frames []Frame
	closed int
}

func (s *recordingSignal) TrySend(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSignal) Close() {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
}

func TestConnectionLifecycle(t *testing.T) {
	sig := &recordingSignal{}
	c := NewConnection("s1", sig)

	if c.State() != StateUnauthenticated {
		t.Fatalf("state = %s", c.State())
	}
	if _, ok := c.User(); ok {
		t.Fatal("user bound before auth")
	}

	already, err := c.Authenticate(domain.User{ID: "u1", Username: "alice"})
	if err != nil || already {
		t.Fatalf("Authenticate = %v, %v", already, err)
	}
	already, err = c.Authenticate(domain.User{ID: "u2", Username: "mallory"})
	if err != nil || !already {
		t.Fatalf("second Authenticate = %v, %v", already, err)
	}
	if u, _ := c.User(); u.ID != "u1" {
		t.Errorf("identity replaced by duplicate auth: %+v", u)
	}

	if err := c.Send(Frame("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !c.Close() {
		t.Fatal("first Close returned false")
	}
	if c.Close() {
		t.Error("second Close returned true")
	}
	if sig.closed != 1 {
		t.Errorf("transport closed %d times", sig.closed)
	}
	if err := c.Send(Frame("y")); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Send after close err = %v", err)
	}
	if len(sig.frames) != 1 {
		t.Errorf("frames = %d, want 1", len(sig.frames))
	}
	if _, err := c.Authenticate(domain.User{ID: "u1"}); !errors.Is(err, ErrConnClosed) {
		t.Errorf("auth after close err = %v", err)
	}
}

func TestConnectionTrackJoinRefusedAfterClose(t *testing.T) {
	c := NewConnection("s1", &recordingSignal{})
	if !c.TrackJoin("global") || !c.InRoom("global") {
		t.Fatal("join not tracked")
	}
	c.Close()
	if c.TrackJoin("clan-1") {
		t.Error("closed connection accepted a join")
	}
	if got := c.Rooms(); len(got) != 1 || got[0] != "global" {
		t.Errorf("rooms = %v", got)
	}
}

func TestRoomServiceMembership(t *testing.T) {
	room := NewRoomService(domain.NewRoom("global", time.Now()))
	a := NewConnection("a", &recordingSignal{})
	b := NewConnection("b", &recordingSignal{})

	if !room.AddMember(a) || room.AddMember(a) {
		t.Fatal("AddMember not idempotent")
	}
	room.AddMember(b)
	if n := room.MemberCount(); n != 2 {
		t.Fatalf("count = %d", n)
	}
	if got := room.Recipients("a"); len(got) != 1 || got[0].ID() != "b" {
		t.Errorf("recipients = %v", got)
	}
	if !room.RemoveMember("a") || room.RemoveMember("a") {
		t.Error("RemoveMember not idempotent")
	}
	if n := len(room.MembersSnapshot()); n != 1 {
		t.Errorf("snapshot len = %d", n)
	}
}
