package core

import (
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
)

// DeliveryFailure is one recipient that did not get a frame.
type DeliveryFailure struct {
	SID SessionID
	Err error
}

// PublishResult reports per-recipient outcome of a fan-out.
type PublishResult struct {
	Delivered []SessionID
	Failed    []DeliveryFailure
}

func (r PublishResult) Attempted() int { return len(r.Delivered) + len(r.Failed) }

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SessionID SessionID     `json:"sessionId"`
	ID        domain.UserID `json:"id"`
	Username  string        `json:"username"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO

	// AddMember and RemoveMember report whether membership changed.
	AddMember(c *Connection) bool
	RemoveMember(sid SessionID) bool
	// Recipients snapshots the member set, skipping exclude.
	Recipients(exclude SessionID) []*Connection
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
	CreatedAt   time.Time     `json:"createdAt"`
}
