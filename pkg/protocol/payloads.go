package protocol

import "encoding/json"

type AuthData struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

type AuthOKData struct {
	UserID               string `json:"userId"`
	Username             string `json:"username"`
	AlreadyAuthenticated bool   `json:"alreadyAuthenticated"`
}

// RoomData is the payload of join_room, leave_room and typing_* from clients.
type RoomData struct {
	RoomID string `json:"roomId"`
}

// RoomStateData answers join_room and leave_room.
type RoomStateData struct {
	RoomID      string `json:"roomId"`
	MemberCount int    `json:"memberCount"`
}

// PresenceData is broadcast as user_joined and user_left.
type PresenceData struct {
	RoomID      string `json:"roomId"`
	MemberCount int    `json:"memberCount"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
}

// ChatData is sent by clients with RoomID and Content only. The hub fills
// in the rest before fan-out.
type ChatData struct {
	RoomID     string `json:"roomId"`
	Content    string `json:"content"`
	SenderID   string `json:"senderId,omitempty"`
	SenderName string `json:"senderName,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

type ChatAckData struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
	Delivered int    `json:"delivered"`
}

type TypingData struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

type RoomEventData struct {
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`
}

type WarningData struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
