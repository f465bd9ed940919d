package orch

import (
	"context"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
	"github.com/TournIQueT-gl/Gaminghub-sub001/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// roomFrom decodes the roomId payload shared by join, leave and typing.
func (o *Orchestrator) roomFrom(conn *core.Connection, env protocol.Envelope) (domain.RoomID, bool) {
	var p protocol.RoomData
	if err := env.Unmarshal(&p); err != nil {
		o.replyError(conn, protocol.CodeBadPayload, err.Error())
		return "", false
	}
	id, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		o.replyError(conn, protocol.CodeInvalidRoom, err.Error())
		return "", false
	}
	return id, true
}

func (o *Orchestrator) needsACL(id domain.RoomID) bool {
	if o.Authorizer == nil || !o.Opts.EnforceRoomACL {
		return false
	}
	_, public := o.public[id]
	return !public
}

func (o *Orchestrator) handleJoin(conn *core.Connection, env protocol.Envelope) {
	id, ok := o.roomFrom(conn, env)
	if !ok {
		return
	}
	u, _ := conn.User()

	if !conn.InRoom(id) && o.needsACL(id) {
		ctx, cancel := context.WithTimeout(context.Background(), o.Opts.ACLTimeout)
		allowed, err := o.Authorizer.IsRoomMember(ctx, u.ID, id)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("module", "app.orch").Str("room", string(id)).Str("user", string(u.ID)).Msg("room acl lookup")
			o.replyError(conn, protocol.CodeUnavailable, "room access check failed")
			return
		}
		if !allowed {
			o.replyError(conn, protocol.CodeForbidden, "not allowed in room "+string(id))
			return
		}
	}

	count, joined, err := o.Rooms.Join(conn, id)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.orch").Str("sid", string(conn.ID())).Msg("join on closed connection")
		return
	}
	o.reply(conn, protocol.TypeRoomJoined, protocol.RoomStateData{RoomID: string(id), MemberCount: count})
	if !joined {
		return
	}
	log.Info().Str("module", "app.orch").Str("sid", string(conn.ID())).Str("user", string(u.ID)).Str("room", string(id)).Int("members", count).Msg("joined room")
	o.broadcast(id, conn.ID(), protocol.TypeUserJoined, protocol.PresenceData{
		RoomID:      string(id),
		MemberCount: count,
		UserID:      string(u.ID),
		Username:    u.Username,
	})
}

func (o *Orchestrator) handleLeave(conn *core.Connection, env protocol.Envelope) {
	id, ok := o.roomFrom(conn, env)
	if !ok {
		return
	}
	u, _ := conn.User()

	count, left := o.Rooms.Leave(conn, id)
	o.reply(conn, protocol.TypeRoomLeft, protocol.RoomStateData{RoomID: string(id), MemberCount: count})
	if !left {
		return
	}
	log.Info().Str("module", "app.orch").Str("sid", string(conn.ID())).Str("user", string(u.ID)).Str("room", string(id)).Int("members", count).Msg("left room")
	if !o.userInRoom(u.ID, id) && o.Typing.Stop(id, u.ID) {
		o.broadcast(id, "", protocol.TypeTypingStop, protocol.TypingData{
			RoomID: string(id), UserID: string(u.ID), Username: u.Username,
		})
	}
	o.broadcast(id, "", protocol.TypeUserLeft, protocol.PresenceData{
		RoomID:      string(id),
		MemberCount: count,
		UserID:      string(u.ID),
		Username:    u.Username,
	})
}

func (o *Orchestrator) handleTyping(conn *core.Connection, env protocol.Envelope, start bool) {
	id, ok := o.roomFrom(conn, env)
	if !ok {
		return
	}
	if !conn.InRoom(id) {
		o.replyError(conn, protocol.CodeNotMember, "join "+string(id)+" first")
		return
	}
	u, _ := conn.User()
	data := protocol.TypingData{RoomID: string(id), UserID: string(u.ID), Username: u.Username}
	if start {
		if o.Typing.Start(id, u) {
			o.broadcast(id, conn.ID(), protocol.TypeTypingStart, data)
		}
		return
	}
	if o.Typing.Stop(id, u.ID) {
		o.broadcast(id, conn.ID(), protocol.TypeTypingStop, data)
	}
}

func (o *Orchestrator) onTypingExpired(room domain.RoomID, u domain.User) {
	o.broadcast(room, "", protocol.TypeTypingStop, protocol.TypingData{
		RoomID: string(room), UserID: string(u.ID), Username: u.Username,
	})
}
