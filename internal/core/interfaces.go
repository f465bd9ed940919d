package core

import (
	"context"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
)

// PersistenceBridge stores chat history outside the hub. The hub never
// waits on it before delivering a message.
type PersistenceBridge interface {
	PersistChatMessage(ctx context.Context, roomID domain.RoomID, senderID domain.UserID, content string) (string, error)
}

// RoomAuthorizer decides whether a user may join a private room.
type RoomAuthorizer interface {
	IsRoomMember(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error)
}

// TokenVerifier resolves a bearer token presented in auth to a user id.
type TokenVerifier interface {
	Verify(token string) (domain.UserID, error)
}
