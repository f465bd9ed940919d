package orch

import (
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/app"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
	"github.com/TournIQueT-gl/Gaminghub-sub001/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// Connect registers a freshly opened transport as an unauthenticated
// connection.
func (o *Orchestrator) Connect(sid core.SessionID, sig core.SignalConnection) (*core.Connection, error) {
	c := core.NewConnection(sid, sig)
	if err := o.Registry.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (o *Orchestrator) handleAuth(conn *core.Connection, env protocol.Envelope) {
	if u, ok := conn.User(); ok {
		o.reply(conn, protocol.TypeAuthOK, protocol.AuthOKData{
			UserID:               string(u.ID),
			Username:             u.Username,
			AlreadyAuthenticated: true,
		})
		return
	}

	var p protocol.AuthData
	if err := env.Unmarshal(&p); err != nil {
		o.replyError(conn, protocol.CodeBadPayload, err.Error())
		return
	}

	if p.Token != "" || o.Opts.RequireToken {
		if o.Verifier == nil {
			o.replyError(conn, protocol.CodeAuthRejected, "token auth unavailable")
			return
		}
		sub, err := o.Verifier.Verify(p.Token)
		if err != nil {
			log.Info().Err(err).Str("module", "app.orch").Str("sid", string(conn.ID())).Msg("token rejected")
			o.replyError(conn, protocol.CodeAuthRejected, "invalid token")
			return
		}
		if p.UserID == "" {
			p.UserID = string(sub)
		} else if p.UserID != string(sub) {
			o.replyError(conn, protocol.CodeAuthRejected, "token subject mismatch")
			return
		}
	}

	u, err := domain.NewUser(p.UserID, p.Username)
	if err != nil {
		o.replyError(conn, protocol.CodeAuthRejected, err.Error())
		return
	}

	outcome, err := o.Registry.Authenticate(conn.ID(), *u)
	switch outcome {
	case app.AuthOK, app.AuthAlreadyAuthenticated:
		bound, _ := conn.User()
		o.reply(conn, protocol.TypeAuthOK, protocol.AuthOKData{
			UserID:               string(bound.ID),
			Username:             bound.Username,
			AlreadyAuthenticated: outcome == app.AuthAlreadyAuthenticated,
		})
	default:
		log.Warn().Err(err).Str("module", "app.orch").Str("sid", string(conn.ID())).Msg("auth rejected")
		o.replyError(conn, protocol.CodeAuthRejected, "authentication failed")
	}
}

// Disconnect runs the close cascade for sid: the connection leaves every
// room, remaining members get user_left and pending typing indicators of
// the user are cleared. Safe to call more than once.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	conn, ok := o.Registry.Get(sid)
	if !ok {
		return
	}
	u, authed := conn.User()
	departures := o.Registry.Unregister(sid)
	if !authed {
		return
	}
	for _, d := range departures {
		stillHere := o.userInRoom(u.ID, d.RoomID)
		if !stillHere && o.Typing.Stop(d.RoomID, u.ID) {
			o.broadcast(d.RoomID, "", protocol.TypeTypingStop, protocol.TypingData{
				RoomID: string(d.RoomID), UserID: string(u.ID), Username: u.Username,
			})
		}
		o.broadcast(d.RoomID, "", protocol.TypeUserLeft, protocol.PresenceData{
			RoomID:      string(d.RoomID),
			MemberCount: d.MemberCount,
			UserID:      string(u.ID),
			Username:    u.Username,
		})
	}
	if o.Limiter != nil && o.Registry.DeviceCount(u.ID) == 0 {
		o.Limiter.Forget(u.ID)
	}
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("user", string(u.ID)).Int("rooms", len(departures)).Msg("disconnected")
}

// Shutdown closes every connection without presence broadcasts.
func (o *Orchestrator) Shutdown() int {
	sessions := o.Registry.Sessions()
	for _, sid := range sessions {
		o.Registry.Unregister(sid)
	}
	log.Info().Str("module", "app.orch").Int("closed", len(sessions)).Msg("connections drained")
	return len(sessions)
}
