package orch

import (
	"strings"
	"unicode/utf8"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/app"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
	"github.com/TournIQueT-gl/Gaminghub-sub001/pkg/protocol"
	"github.com/rs/zerolog/log"
)

const persistWarning = "message delivered but not saved to history"

func (o *Orchestrator) handleChat(conn *core.Connection, env protocol.Envelope) {
	var p protocol.ChatData
	if err := env.Unmarshal(&p); err != nil {
		o.replyError(conn, protocol.CodeBadPayload, err.Error())
		return
	}
	id, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		o.replyError(conn, protocol.CodeInvalidRoom, err.Error())
		return
	}
	if strings.TrimSpace(p.Content) == "" {
		o.replyError(conn, protocol.CodeEmptyContent, "message is empty")
		return
	}
	if o.Opts.MaxContentLen > 0 && utf8.RuneCountInString(p.Content) > o.Opts.MaxContentLen {
		o.replyError(conn, protocol.CodeContentTooLong, "message too long")
		return
	}
	if o.Opts.RequireMembership && !conn.InRoom(id) {
		o.replyError(conn, protocol.CodeNotMember, "join "+string(id)+" first")
		return
	}
	u, _ := conn.User()
	if o.Limiter != nil && !o.Limiter.Allow(u.ID) {
		o.replyError(conn, protocol.CodeRateLimited, "slow down")
		return
	}

	msg := protocol.ChatData{
		RoomID:     string(id),
		Content:    p.Content,
		SenderID:   string(u.ID),
		SenderName: u.Username,
		MessageID:  o.newID(),
		Timestamp:  o.now().UnixMilli(),
	}
	exclude := conn.ID()
	if o.Opts.EchoToSender {
		exclude = ""
	}
	res := o.broadcast(id, exclude, protocol.TypeChatMessage, msg)
	if !o.Opts.EchoToSender {
		o.reply(conn, protocol.TypeChatAck, protocol.ChatAckData{
			RoomID:    msg.RoomID,
			MessageID: msg.MessageID,
			Timestamp: msg.Timestamp,
			Delivered: len(res.Delivered),
		})
	}
	log.Debug().Str("module", "app.orch").Str("room", string(id)).Str("message", msg.MessageID).Int("delivered", len(res.Delivered)).Int("failed", len(res.Failed)).Msg("chat fan-out")

	// Sending a message ends the sender's typing indicator.
	if o.Typing.Stop(id, u.ID) {
		o.broadcast(id, conn.ID(), protocol.TypeTypingStop, protocol.TypingData{
			RoomID: string(id), UserID: string(u.ID), Username: u.Username,
		})
	}

	o.persist(conn, app.PersistJob{
		SID:       conn.ID(),
		RoomID:    id,
		SenderID:  u.ID,
		Content:   p.Content,
		MessageID: msg.MessageID,
	})
}

func (o *Orchestrator) persist(conn *core.Connection, job app.PersistJob) {
	if o.Persister == nil {
		return
	}
	if err := o.Persister.Submit(job); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("message", job.MessageID).Msg("persist not queued")
		o.reply(conn, protocol.TypeWarning, protocol.WarningData{Message: persistWarning, MessageID: job.MessageID})
	}
}

func (o *Orchestrator) onPersisted(job app.PersistJob, _ string, err error) {
	if err == nil {
		return
	}
	conn, ok := o.Registry.Get(job.SID)
	if !ok {
		return
	}
	o.reply(conn, protocol.TypeWarning, protocol.WarningData{Message: persistWarning, MessageID: job.MessageID})
}
