package orch

import (
	"errors"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/app"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/metrics"
	"github.com/TournIQueT-gl/Gaminghub-sub001/pkg/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// EchoToSender delivers chat_message back to its sender instead of a chat_ack.
	EchoToSender bool
	// RequireMembership rejects chat from connections outside the room.
	RequireMembership bool
	// RequireToken makes auth fail without a verifiable token.
	RequireToken bool
	// EnforceRoomACL asks the RoomAuthorizer before joining non-public rooms.
	EnforceRoomACL bool
	PublicRooms    []domain.RoomID
	ACLTimeout     time.Duration
	MaxContentLen  int
}

// Deps are the collaborators the router dispatches to. Persister, Limiter,
// Authorizer and Verifier are optional.
type Deps struct {
	Registry   *app.Registry
	Rooms      *app.RoomManager
	Fanout     *app.Fanout
	Typing     *app.TypingTracker
	Persister  *app.Persister
	Limiter    *app.ChatRateLimiter
	Authorizer core.RoomAuthorizer
	Verifier   core.TokenVerifier
}

// Orchestrator routes decoded envelopes from one connection at a time to the
// registry, rooms and fan-out. Each connection's read loop calls Route
// synchronously, which keeps per-connection ordering.
type Orchestrator struct {
	Registry   *app.Registry
	Rooms      *app.RoomManager
	Fanout     *app.Fanout
	Typing     *app.TypingTracker
	Persister  *app.Persister
	Limiter    *app.ChatRateLimiter
	Authorizer core.RoomAuthorizer
	Verifier   core.TokenVerifier
	Opts       Options

	public map[domain.RoomID]struct{}
	now    func() time.Time
	newID  func() string
}

func New(d Deps, opts Options) *Orchestrator {
	if opts.ACLTimeout <= 0 {
		opts.ACLTimeout = 2 * time.Second
	}
	o := &Orchestrator{
		Registry:   d.Registry,
		Rooms:      d.Rooms,
		Fanout:     d.Fanout,
		Typing:     d.Typing,
		Persister:  d.Persister,
		Limiter:    d.Limiter,
		Authorizer: d.Authorizer,
		Verifier:   d.Verifier,
		Opts:       opts,
		public:     make(map[domain.RoomID]struct{}, len(opts.PublicRooms)+1),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	o.public[domain.GlobalRoom] = struct{}{}
	for _, id := range opts.PublicRooms {
		o.public[id] = struct{}{}
	}
	o.Typing.OnExpire(o.onTypingExpired)
	o.Fanout.OnKick = func(sid core.SessionID) { o.Disconnect(sid) }
	if o.Persister != nil {
		o.Persister.OnResult(o.onPersisted)
	}
	return o
}

// Route handles one inbound frame from sid. Protocol errors are answered
// with an error envelope and never close the connection.
func (o *Orchestrator) Route(sid core.SessionID, raw []byte) {
	conn, ok := o.Registry.Get(sid)
	if !ok {
		log.Warn().Str("module", "app.orch").Str("sid", string(sid)).Msg("frame for unknown session")
		return
	}

	env, err := protocol.Decode(raw)
	if err != nil {
		code := protocol.CodeBadPayload
		if errors.Is(err, protocol.ErrUnknownType) {
			code = protocol.CodeUnknownType
		}
		log.Debug().Err(err).Str("module", "app.orch").Str("sid", string(sid)).Msg("bad envelope")
		o.replyError(conn, code, err.Error())
		return
	}
	if !env.Type.FromClient() {
		o.replyError(conn, protocol.CodeUnknownType, "type not accepted from clients: "+string(env.Type))
		return
	}
	metrics.EnvelopesReceived.WithLabelValues(string(env.Type)).Inc()

	if env.Type != protocol.TypeAuth && conn.State() != core.StateAuthenticated {
		o.replyError(conn, protocol.CodeNotAuthenticated, "authenticate first")
		return
	}

	switch env.Type {
	case protocol.TypeAuth:
		o.handleAuth(conn, env)
	case protocol.TypeJoinRoom:
		o.handleJoin(conn, env)
	case protocol.TypeLeaveRoom:
		o.handleLeave(conn, env)
	case protocol.TypeChatMessage:
		o.handleChat(conn, env)
	case protocol.TypeTypingStart:
		o.handleTyping(conn, env, true)
	case protocol.TypeTypingStop:
		o.handleTyping(conn, env, false)
	case protocol.TypePing:
		o.reply(conn, protocol.TypePong, nil)
	default:
		o.replyError(conn, protocol.CodeUnknownType, "unhandled type: "+string(env.Type))
	}
}

func (o *Orchestrator) reply(conn *core.Connection, t protocol.Type, data any) {
	frame, err := protocol.Encode(t, data)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("type", string(t)).Msg("encode reply")
		return
	}
	o.Fanout.Deliver([]*core.Connection{conn}, frame)
}

func (o *Orchestrator) replyError(conn *core.Connection, code, msg string) {
	metrics.ProtocolErrors.WithLabelValues(code).Inc()
	o.reply(conn, protocol.TypeError, protocol.ErrorData{Code: code, Message: msg})
}

// broadcast sends to every member of room except exclude.
func (o *Orchestrator) broadcast(room domain.RoomID, exclude core.SessionID, t protocol.Type, data any) core.PublishResult {
	frame, err := protocol.Encode(t, data)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("type", string(t)).Msg("encode broadcast")
		return core.PublishResult{}
	}
	return o.Rooms.Broadcast(o.Fanout, room, frame, exclude)
}

// userInRoom reports whether any device of uid is still in room.
func (o *Orchestrator) userInRoom(uid domain.UserID, room domain.RoomID) bool {
	for _, c := range o.Registry.ConnectionsFor(uid) {
		if c.InRoom(room) {
			return true
		}
	}
	return false
}
