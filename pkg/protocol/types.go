// Package protocol defines the hub wire format shared by the server and
// clients: a JSON envelope {"type": ..., "data": {...}} with a closed set
// of message types.
package protocol

type Type string

// Client to hub.
const (
	TypeAuth        Type = "auth"
	TypeJoinRoom    Type = "join_room"
	TypeLeaveRoom   Type = "leave_room"
	TypeChatMessage Type = "chat_message"
	TypeTypingStart Type = "typing_start"
	TypeTypingStop  Type = "typing_stop"
	TypePing        Type = "ping"
)

// Hub to client. chat_message and the typing types travel both ways.
const (
	TypeAuthOK       Type = "auth_ok"
	TypeRoomJoined   Type = "room_joined"
	TypeRoomLeft     Type = "room_left"
	TypeChatAck      Type = "chat_ack"
	TypeUserJoined   Type = "user_joined"
	TypeUserLeft     Type = "user_left"
	TypeRoomEvent    Type = "room_event"
	TypeNotification Type = "notification"
	TypeWarning      Type = "warning"
	TypeError        Type = "error"
	TypePong         Type = "pong"
)

var known = map[Type]struct{}{
	TypeAuth: {}, TypeJoinRoom: {}, TypeLeaveRoom: {}, TypeChatMessage: {},
	TypeTypingStart: {}, TypeTypingStop: {}, TypePing: {},
	TypeAuthOK: {}, TypeRoomJoined: {}, TypeRoomLeft: {}, TypeChatAck: {},
	TypeUserJoined: {}, TypeUserLeft: {}, TypeRoomEvent: {}, TypeNotification: {},
	TypeWarning: {}, TypeError: {}, TypePong: {},
}

// Known reports whether t is part of the protocol in either direction.
func (t Type) Known() bool {
	_, ok := known[t]
	return ok
}

// FromClient reports whether a client is allowed to send t.
func (t Type) FromClient() bool {
	switch t {
	case TypeAuth, TypeJoinRoom, TypeLeaveRoom, TypeChatMessage,
		TypeTypingStart, TypeTypingStop, TypePing:
		return true
	}
	return false
}

// Error codes carried in ErrorData.Code.
const (
	CodeBadPayload       = "bad_payload"
	CodeUnknownType      = "unknown_type"
	CodeNotAuthenticated = "not_authenticated"
	CodeAuthRejected     = "auth_rejected"
	CodeInvalidRoom      = "invalid_room"
	CodeForbidden        = "forbidden"
	CodeNotMember        = "not_member"
	CodeEmptyContent     = "empty_content"
	CodeContentTooLong   = "content_too_long"
	CodeRateLimited      = "rate_limited"
	CodeUnavailable      = "unavailable"
)
