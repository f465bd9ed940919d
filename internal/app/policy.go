package app

import (
	"fmt"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a recipient whose outbound queue is full.
type Policy interface {
	OnBackPressure(member *core.Connection) BackpressureAction
}

// DropPolicy drops the newest frame and keeps the slow client connected.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(*core.Connection) BackpressureAction { return DropFrame }

// KickPolicy disconnects slow clients; they resync on reconnect.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(*core.Connection) BackpressureAction { return KickMember }

func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", name)
}
