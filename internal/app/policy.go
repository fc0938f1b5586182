package app

import (
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose signal queue is full.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

// ListenerPolicy drops frames for the broadcaster and kicks stalled listeners.
type ListenerPolicy struct{}

func (ListenerPolicy) OnBackPressure(_ core.RoomService, member core.MemberSession) BackpressureAction {
	if member.Meta().Role == domain.RoleBroadcaster {
		return DropFrame
	}
	return KickMember
}
