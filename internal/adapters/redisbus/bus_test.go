package redisbus

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
)

type recordingSink struct {
	notified map[domain.UserID]string
	events   map[domain.RoomID]string
}

func newSink() *recordingSink {
	return &recordingSink{notified: map[domain.UserID]string{}, events: map[domain.RoomID]string{}}
}

func (s *recordingSink) PushNotification(uid domain.UserID, payload json.RawMessage) (int, error) {
	s.notified[uid] = string(payload)
	return 1, nil
}

func (s *recordingSink) PushRoomEvent(room domain.RoomID, payload json.RawMessage) (core.PublishResult, error) {
	s.events[room] = string(payload)
	return core.PublishResult{}, nil
}

func testBus(sink Sink) *Bus {
	return &Bus{
		opts: Options{NotifyChannel: "notify", RoomEventChannel: "rooms"},
		sink: sink,
	}
}

func TestHandleNotification(t *testing.T) {
	sink := newSink()
	b := testBus(sink)
	err := b.handle("notify", `{"userId":"u1","payload":{"kind":"friend_request","from":"u2"}}`)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := sink.notified["u1"]; got != `{"kind":"friend_request","from":"u2"}` {
		t.Errorf("payload = %s", got)
	}
}

func TestHandleRoomEvent(t *testing.T) {
	sink := newSink()
	b := testBus(sink)
	if err := b.handle("rooms", `{"roomId":"tournament-1","payload":{"bracket":"updated"}}`); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := sink.events["tournament-1"]; got != `{"bracket":"updated"}` {
		t.Errorf("payload = %s", got)
	}
}

func TestHandleRejectsBadMessages(t *testing.T) {
	b := testBus(newSink())
	cases := []struct{ channel, raw string }{
		{"notify", `not json`},
		{"notify", `{"payload":{}}`},
		{"notify", `{"userId":"u1","payload":"text"}`},
		{"rooms", `{"roomId":"","payload":{}}`},
		{"elsewhere", `{"userId":"u1","payload":{}}`},
	}
	for _, c := range cases {
		if err := b.handle(c.channel, c.raw); !errors.Is(err, ErrBadMessage) {
			t.Errorf("handle(%s, %s) err = %v", c.channel, c.raw, err)
		}
	}
}
