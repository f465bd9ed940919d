package hubclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/pkg/protocol"
	"github.com/gorilla/websocket"
)

var (
	errDropped  = errors.New("transport dropped")
	errDialFail = errors.New("dial refused")
)

// fakeTransport plays the hub: it acks auth and joins.
type fakeTransport struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	rejectAuth bool
	silent     bool
	members    int

	mu      sync.Mutex
	written []protocol.Envelope
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan []byte, 64), closed: make(chan struct{}), members: 3}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case <-t.closed:
		return nil, errDropped
	case b := <-t.in:
		return b, nil
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	select {
	case <-t.closed:
		return errDropped
	default:
	}
	env, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.written = append(t.written, env)
	t.mu.Unlock()

	switch env.Type {
	case protocol.TypeAuth:
		if t.silent {
			break
		}
		if t.rejectAuth {
			t.push(protocol.TypeError, protocol.ErrorData{Code: protocol.CodeAuthRejected, Message: "bad token"})
		} else {
			t.push(protocol.TypeAuthOK, protocol.AuthOKData{UserID: "alice", Username: "alice"})
		}
	case protocol.TypeJoinRoom:
		var r protocol.RoomData
		_ = env.Unmarshal(&r)
		t.push(protocol.TypeRoomJoined, protocol.RoomStateData{RoomID: r.RoomID, MemberCount: t.members})
	}
	return nil
}

func (t *fakeTransport) push(typ protocol.Type, data any) {
	raw, _ := protocol.Encode(typ, data)
	t.in <- raw
}

func (t *fakeTransport) Close() error {
	t.drop()
	return nil
}

func (t *fakeTransport) drop() { t.once.Do(func() { close(t.closed) }) }

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *fakeTransport) joined() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, env := range t.written {
		if env.Type != protocol.TypeJoinRoom {
			continue
		}
		var r protocol.RoomData
		_ = env.Unmarshal(&r)
		out = append(out, r.RoomID)
	}
	sort.Strings(out)
	return out
}

// fakeDialer returns transports[n] for the n-th dial (0-based) and fails
// for every nil entry or beyond the list.
type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.dials
	d.dials++
	if n < len(d.transports) && d.transports[n] != nil {
		return d.transports[n], nil
	}
	return nil, errDialFail
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *delayRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *delayRecorder) get() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.New == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, state is %s", want, c.State())
		}
	}
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not finish, state is %s", c.State())
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestController(d Dialer, rec *delayRecorder) *Controller {
	c := NewController(d, Config{
		UserID:   "alice",
		Username: "alice",
		Backoff:  Backoff{Base: 10 * time.Millisecond},
	})
	if rec != nil {
		c.sleep = rec.sleep
	}
	return c
}

func TestAbandonsAfterFiveFailedAttempts(t *testing.T) {
	first := newFakeTransport()
	d := &fakeDialer{transports: []*fakeTransport{first}}
	rec := &delayRecorder{}
	c := newTestController(d, rec)

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, c, StateConnected)
	first.drop()
	waitDone(t, c)

	if c.State() != StateAbandoned {
		t.Fatalf("state = %s, want abandoned", c.State())
	}
	if !errors.Is(c.Err(), ErrAbandoned) {
		t.Fatalf("err = %v", c.Err())
	}
	// One initial dial plus five reconnects, never a sixth.
	if got := d.count(); got != 6 {
		t.Fatalf("dials = %d, want 6", got)
	}
	base := 10 * time.Millisecond
	want := []time.Duration{base, 2 * base, 3 * base, 4 * base, 5 * base}
	if got := rec.get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
}

func TestReconnectOnThirdAttemptRejoinsRooms(t *testing.T) {
	first, second := newFakeTransport(), newFakeTransport()
	d := &fakeDialer{transports: []*fakeTransport{first, nil, nil, second}}
	rec := &delayRecorder{}
	c := newTestController(d, rec)

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()
	waitState(t, c, StateConnected)

	for _, r := range []string{"global", "clan-7", "tourney-1"} {
		if err := c.Join(r); err != nil {
			t.Fatalf("Join(%s): %v", r, err)
		}
	}
	eventually(t, "first joins", func() bool { return len(first.joined()) == 3 })

	first.drop()
	waitState(t, c, StateDisconnected)
	waitState(t, c, StateConnected)

	if got := c.Attempts(); got != 0 {
		t.Fatalf("attempts after reconnect = %d, want 0", got)
	}
	if got := d.count(); got != 4 {
		t.Fatalf("dials = %d, want 4", got)
	}
	want := []string{"clan-7", "global", "tourney-1"}
	eventually(t, "rejoin", func() bool { return reflect.DeepEqual(second.joined(), want) })
	eventually(t, "member count", func() bool {
		n, ok := c.MemberCount("clan-7")
		return ok && n == 3
	})
	if got := len(rec.get()); got != 3 {
		t.Fatalf("scheduled retries = %d, want 3", got)
	}
}

func TestStopCancelsPendingAttempt(t *testing.T) {
	first := newFakeTransport()
	d := &fakeDialer{transports: []*fakeTransport{first}}
	c := NewController(d, Config{UserID: "alice", Username: "alice", Backoff: Backoff{Base: time.Hour}})

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, c, StateConnected)
	first.drop()
	waitState(t, c, StateReconnecting)

	c.Stop()
	waitDone(t, c)

	if c.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", c.State())
	}
	if got := d.count(); got != 1 {
		t.Fatalf("dials = %d, want 1", got)
	}
	if c.Err() != nil {
		t.Fatalf("err = %v, want nil", c.Err())
	}
}

func TestStopWhileConnectedNeverReconnects(t *testing.T) {
	first := newFakeTransport()
	d := &fakeDialer{transports: []*fakeTransport{first, newFakeTransport()}}
	c := newTestController(d, &delayRecorder{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, c, StateConnected)
	c.Stop()
	waitDone(t, c)

	if c.State() != StateStopped {
		t.Fatalf("state = %s", c.State())
	}
	if !first.isClosed() {
		t.Fatal("transport left open")
	}
	if got := d.count(); got != 1 {
		t.Fatalf("dials = %d, want 1", got)
	}
	if err := c.SendChat("global", "hi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendChat after stop = %v", err)
	}
}

func TestAuthRejectedAbandons(t *testing.T) {
	tr := newFakeTransport()
	tr.rejectAuth = true
	d := &fakeDialer{transports: []*fakeTransport{tr, newFakeTransport()}}
	c := newTestController(d, &delayRecorder{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, c)

	if c.State() != StateAbandoned || !errors.Is(c.Err(), ErrAuthRejected) {
		t.Fatalf("state = %s err = %v", c.State(), c.Err())
	}
	if got := d.count(); got != 1 {
		t.Fatalf("dials = %d, want 1", got)
	}
}

func TestStartTwice(t *testing.T) {
	c := newTestController(&fakeDialer{}, &delayRecorder{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()
	if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start = %v", err)
	}
}

func TestAuthTimeoutCountsAsFailedAttempt(t *testing.T) {
	mute := newFakeTransport()
	mute.silent = true
	good := newFakeTransport()
	d := &fakeDialer{transports: []*fakeTransport{mute, good}}
	rec := &delayRecorder{}
	c := NewController(d, Config{
		UserID:      "alice",
		Username:    "alice",
		Backoff:     Backoff{Base: 10 * time.Millisecond},
		AuthTimeout: 20 * time.Millisecond,
	})
	c.sleep = rec.sleep

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	waitState(t, c, StateConnected)
	if !mute.isClosed() {
		t.Fatal("silent transport left open")
	}
	if got := d.count(); got != 2 {
		t.Fatalf("dials = %d, want 2", got)
	}
	if got := len(rec.get()); got != 1 {
		t.Fatalf("scheduled retries = %d, want 1", got)
	}
	if got := c.Attempts(); got != 0 {
		t.Fatalf("attempts = %d, want 0", got)
	}
}

func TestStopBeforeStart(t *testing.T) {
	d := &fakeDialer{transports: []*fakeTransport{newFakeTransport()}}
	c := newTestController(d, &delayRecorder{})

	c.Stop()
	waitDone(t, c)
	if err := c.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("Start after Stop = %v", err)
	}
	if c.State() != StateStopped {
		t.Fatalf("state = %s", c.State())
	}
	if got := d.count(); got != 0 {
		t.Fatalf("dials = %d, want 0", got)
	}
	c.Stop()
}

func TestLeaveDropsRoomFromRejoinSet(t *testing.T) {
	c := newTestController(&fakeDialer{}, nil)
	_ = c.Join("a")
	_ = c.Join("b")
	_ = c.Leave("a")
	if got := c.Rooms(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("rooms = %v", got)
	}
	if err := c.SendChat("b", "hi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendChat while idle = %v", err)
	}
}

func TestWebsocketDialer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(raw)
			if err != nil {
				return
			}
			var reply []byte
			switch env.Type {
			case protocol.TypeAuth:
				reply, _ = protocol.Encode(protocol.TypeAuthOK, protocol.AuthOKData{UserID: "alice"})
			case protocol.TypeJoinRoom:
				var rd protocol.RoomData
				_ = env.Unmarshal(&rd)
				reply, _ = protocol.Encode(protocol.TypeRoomJoined, protocol.RoomStateData{RoomID: rd.RoomID, MemberCount: 1})
			default:
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewController(WebsocketDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, Config{UserID: "alice", Username: "alice"})
	_ = c.Join("global")
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, c, StateConnected)
	eventually(t, "member count", func() bool {
		n, ok := c.MemberCount("global")
		return ok && n == 1
	})
	c.Stop()
	waitDone(t, c)
}

func TestWebsocketTransportReadTimeout(t *testing.T) {
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		if r.URL.Query().Get("ping") != "" {
			// Pings alone keep the link alive past several read timeouts.
			for i := 0; i < 8; i++ {
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					return
				}
				time.Sleep(20 * time.Millisecond)
			}
			_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	silent, err := WebsocketDialer{URL: base, ReadTimeout: 50 * time.Millisecond}.Dial(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer silent.Close()
	start := time.Now()
	if _, err := silent.ReadMessage(); err == nil {
		t.Fatal("read on a silent link succeeded")
	}
	if waited := time.Since(start); waited > time.Second {
		t.Fatalf("silent link detected after %s", waited)
	}

	pinged, err := WebsocketDialer{URL: base + "?ping=1", ReadTimeout: 60 * time.Millisecond}.Dial(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer pinged.Close()
	raw, err := pinged.ReadMessage()
	if err != nil {
		t.Fatalf("pinged link timed out: %v", err)
	}
	if string(raw) != `{"type":"pong"}` {
		t.Fatalf("read %s", raw)
	}
}
