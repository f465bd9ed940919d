package orch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
	"github.com/TournIQueT-gl/Gaminghub-sub001/pkg/protocol"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// ErrPayloadNotObject is returned for push payloads that are not a JSON
// object; clients cannot decode anything else as envelope data.
var ErrPayloadNotObject = errors.New("push payload must be a JSON object")

// PushNotification delivers payload to every live device of uid and
// returns how many accepted it. Offline users get nothing; durable
// notifications are the caller's job.
func (o *Orchestrator) PushNotification(uid domain.UserID, payload json.RawMessage) (int, error) {
	if !isObject(payload) {
		return 0, ErrPayloadNotObject
	}
	frame, err := protocol.Encode(protocol.TypeNotification, payload)
	if err != nil {
		return 0, fmt.Errorf("push notification: %w", err)
	}
	res := o.Fanout.Deliver(o.Registry.ConnectionsFor(uid), frame)
	log.Debug().Str("module", "app.orch").Str("user", string(uid)).Int("delivered", len(res.Delivered)).Msg("notification pushed")
	return len(res.Delivered), nil
}

// PushRoomEvent sends a system room_event (tournament update, clan news)
// to everyone in room.
func (o *Orchestrator) PushRoomEvent(room domain.RoomID, payload json.RawMessage) (core.PublishResult, error) {
	if !isObject(payload) {
		return core.PublishResult{}, ErrPayloadNotObject
	}
	frame, err := protocol.Encode(protocol.TypeRoomEvent, protocol.RoomEventData{RoomID: string(room), Payload: payload})
	if err != nil {
		return core.PublishResult{}, fmt.Errorf("push room event: %w", err)
	}
	res := o.Rooms.Broadcast(o.Fanout, room, frame, "")
	log.Debug().Str("module", "app.orch").Str("room", string(room)).Int("delivered", len(res.Delivered)).Msg("room event pushed")
	return res, nil
}

func isObject(payload json.RawMessage) bool {
	return gjson.ValidBytes(payload) && gjson.ParseBytes(payload).IsObject()
}
