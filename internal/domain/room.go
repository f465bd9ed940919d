package domain

import (
	"errors"
	"strings"
	"time"
)

const MaxRoomIDLen = 64

// GlobalRoom is the platform-wide lobby every client may join.
const GlobalRoom RoomID = "global"

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

type RoomID string

// ParseRoomID normalizes a client-supplied room id.
func ParseRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrRoomIDEmpty
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(raw), nil
}

type Room struct {
	ID        RoomID
	CreatedAt time.Time
}

func NewRoom(id RoomID, now time.Time) *Room {
	return &Room{ID: id, CreatedAt: now}
}
