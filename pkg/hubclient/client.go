// Package hubclient keeps a client session attached to the hub: it
// authenticates, rejoins rooms after a drop and gives up after a bounded
// number of reconnect attempts.
package hubclient

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/pkg/protocol"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxAttempts = 5
	DefaultAuthTimeout = 10 * time.Second
)

var (
	ErrNotConnected   = errors.New("hubclient: not connected")
	ErrAuthRejected   = errors.New("hubclient: auth rejected")
	ErrAbandoned      = errors.New("hubclient: reconnect attempts exhausted")
	ErrAlreadyStarted = errors.New("hubclient: already started")
	ErrStopped        = errors.New("hubclient: stopped")
	ErrAuthTimeout    = errors.New("hubclient: no auth reply")
)

type Config struct {
	UserID   string
	Username string
	Token    string

	// MaxAttempts is the number of consecutive failed reconnects before
	// giving up. Zero means DefaultMaxAttempts.
	MaxAttempts int
	Backoff     Backoff

	// AuthTimeout is how long a fresh connection may wait for auth_ok
	// before it is dropped and counted as a failed attempt.
	AuthTimeout time.Duration

	// Buffer sizes for Events and Messages. Full channels drop.
	EventBuffer   int
	MessageBuffer int
}

// Controller owns one logical session with the hub across any number of
// physical connections.
type Controller struct {
	cfg    Config
	dialer Dialer
	sleep  func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	state    State
	attempts int
	rooms    map[string]struct{}
	counts   map[string]int
	tr       Transport
	cancel   context.CancelFunc
	started  bool
	stopped  bool
	err      error

	events   chan StateEvent
	messages chan protocol.Envelope
	done     chan struct{}
	doneOnce sync.Once
}

func NewController(d Dialer, cfg Config) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.MessageBuffer <= 0 {
		cfg.MessageBuffer = 256
	}
	return &Controller{
		cfg:      cfg,
		dialer:   d,
		sleep:    sleepCtx,
		rooms:    make(map[string]struct{}),
		counts:   make(map[string]int),
		events:   make(chan StateEvent, cfg.EventBuffer),
		messages: make(chan protocol.Envelope, cfg.MessageBuffer),
		done:     make(chan struct{}),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start dials in the background. The controller runs until Stop, ctx
// cancellation or abandonment; Done is closed afterwards. A stopped
// controller cannot be started.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.loop(ctx)
	return nil
}

// Stop is a deliberate close: it cancels any pending attempt, closes the
// transport and never reconnects. Stop before Start leaves the controller
// stopped with Done closed.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	cancel := c.cancel
	started := c.started
	c.mu.Unlock()
	if !started {
		c.setState(StateStopped, nil)
		c.closeDone()
		return
	}
	if cancel != nil {
		cancel()
	}
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr != nil {
		_ = tr.Close()
	}
}

func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) closeDone() { c.doneOnce.Do(func() { close(c.done) }) }

// Err is ErrAbandoned or ErrAuthRejected after abandonment, nil otherwise.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) Events() <-chan StateEvent { return c.events }

// Messages carries every envelope received from the hub.
func (c *Controller) Messages() <-chan protocol.Envelope { return c.messages }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Rooms returns the rooms this session wants to be in, sorted.
func (c *Controller) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// MemberCount is the last memberCount the hub reported for room.
func (c *Controller) MemberCount(room string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.counts[room]
	return n, ok
}

// Join records room in the desired set and sends join_room when connected.
// While disconnected the join is sent after the next successful auth.
func (c *Controller) Join(room string) error {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return c.send(protocol.TypeJoinRoom, protocol.RoomData{RoomID: room})
}

func (c *Controller) Leave(room string) error {
	c.mu.Lock()
	delete(c.rooms, room)
	delete(c.counts, room)
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return c.send(protocol.TypeLeaveRoom, protocol.RoomData{RoomID: room})
}

func (c *Controller) SendChat(room, content string) error {
	return c.send(protocol.TypeChatMessage, protocol.ChatData{RoomID: room, Content: content})
}

func (c *Controller) SetTyping(room string, typing bool) error {
	t := protocol.TypeTypingStop
	if typing {
		t = protocol.TypeTypingStart
	}
	return c.send(t, protocol.RoomData{RoomID: room})
}

func (c *Controller) send(t protocol.Type, data any) error {
	c.mu.Lock()
	tr := c.tr
	connected := c.state == StateConnected
	c.mu.Unlock()
	if tr == nil || !connected {
		return ErrNotConnected
	}
	return write(tr, t, data)
}

func write(tr Transport, t protocol.Type, data any) error {
	raw, err := protocol.Encode(t, data)
	if err != nil {
		return err
	}
	return tr.WriteMessage(raw)
}

func (c *Controller) loop(ctx context.Context) {
	defer c.closeDone()
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.setState(StateStopped, nil)
			return
		}
		if errors.Is(err, ErrAuthRejected) {
			c.abandon(err)
			return
		}
		c.setState(StateDisconnected, err)

		c.mu.Lock()
		if c.attempts >= c.cfg.MaxAttempts {
			c.mu.Unlock()
			c.abandon(ErrAbandoned)
			return
		}
		c.attempts++
		n := c.attempts
		c.mu.Unlock()

		delay := c.cfg.Backoff.Delay(n)
		log.Info().Str("module", "hubclient").Int("attempt", n).Dur("delay", delay).Msg("reconnect scheduled")
		c.setState(StateReconnecting, nil)
		if err := c.sleep(ctx, delay); err != nil {
			c.setState(StateStopped, nil)
			return
		}
	}
}

// session runs one physical connection until it drops.
func (c *Controller) session(ctx context.Context) error {
	tr, err := c.dialer.Dial(ctx)
	if err != nil {
		log.Debug().Err(err).Str("module", "hubclient").Msg("dial failed")
		return err
	}
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = tr.Close()
		return ctx.Err()
	}
	c.tr = tr
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.tr = nil
		c.counts = make(map[string]int)
		c.mu.Unlock()
		_ = tr.Close()
	}()

	auth := protocol.AuthData{UserID: c.cfg.UserID, Username: c.cfg.Username, Token: c.cfg.Token}
	if err := write(tr, protocol.TypeAuth, auth); err != nil {
		return err
	}

	// Closing the transport unblocks ReadMessage when the hub never answers.
	var timedOut atomic.Bool
	authTimer := time.AfterFunc(c.cfg.AuthTimeout, func() {
		timedOut.Store(true)
		_ = tr.Close()
	})
	defer authTimer.Stop()

	authed := false
	for {
		raw, err := tr.ReadMessage()
		if err != nil {
			if timedOut.Load() {
				return ErrAuthTimeout
			}
			return err
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			log.Warn().Err(err).Str("module", "hubclient").Msg("undecodable frame from hub")
			continue
		}

		switch env.Type {
		case protocol.TypeAuthOK:
			if !authed && authTimer.Stop() {
				authed = true
				if err := c.onAuthenticated(tr); err != nil {
					return err
				}
			}
		case protocol.TypeError:
			var e protocol.ErrorData
			if env.Unmarshal(&e) == nil && e.Code == protocol.CodeAuthRejected && !authed {
				return ErrAuthRejected
			}
		case protocol.TypeRoomJoined, protocol.TypeUserJoined, protocol.TypeUserLeft:
			var p protocol.RoomStateData
			if env.Unmarshal(&p) == nil {
				c.setCount(p.RoomID, p.MemberCount)
			}
		case protocol.TypeRoomLeft:
			var p protocol.RoomStateData
			if env.Unmarshal(&p) == nil {
				c.mu.Lock()
				delete(c.counts, p.RoomID)
				c.mu.Unlock()
			}
		}
		c.deliver(env)
	}
}

// onAuthenticated resets the counter and rejoins the desired rooms.
func (c *Controller) onAuthenticated(tr Transport) error {
	c.mu.Lock()
	c.attempts = 0
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	old := c.state
	c.state = StateConnected
	c.mu.Unlock()
	c.emit(StateEvent{Old: old, New: StateConnected})

	sort.Strings(rooms)
	for _, r := range rooms {
		if err := write(tr, protocol.TypeJoinRoom, protocol.RoomData{RoomID: r}); err != nil {
			return err
		}
	}
	log.Info().Str("module", "hubclient").Str("user", c.cfg.UserID).Int("rooms", len(rooms)).Msg("session established")
	return nil
}

func (c *Controller) setCount(room string, n int) {
	c.mu.Lock()
	if _, wanted := c.rooms[room]; wanted {
		c.counts[room] = n
	}
	c.mu.Unlock()
}

func (c *Controller) abandon(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	log.Warn().Err(err).Str("module", "hubclient").Str("user", c.cfg.UserID).Msg("session abandoned")
	c.setState(StateAbandoned, err)
}

func (c *Controller) setState(s State, err error) {
	c.mu.Lock()
	old := c.state
	if old == s || old.Terminal() {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.emit(StateEvent{Old: old, New: s, Err: err})
}

func (c *Controller) emit(ev StateEvent) {
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("module", "hubclient").Str("state", ev.New.String()).Msg("state event dropped")
	}
}

func (c *Controller) deliver(env protocol.Envelope) {
	select {
	case c.messages <- env:
	default:
		log.Warn().Str("module", "hubclient").Str("type", string(env.Type)).Msg("message dropped")
	}
}
