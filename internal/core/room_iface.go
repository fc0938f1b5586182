package core

import (
	"github.com/dkeye/Babyfoon/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID    domain.PeerID `json:"id"`
	UID   uint32        `json:"uid"`
	Role  string        `json:"role"`
	Muted bool          `json:"muted"`
}

// RoomService is the core-facing API of a live channel.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Code() domain.ChannelCode
	MemberCount() int
	MembersSnapshot() []MemberDTO
	Broadcaster() (SessionID, bool)

	AddMember(sid SessionID, ms MemberSession)
	RemoveMember(sid SessionID)
	Broadcast(from SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	Code        domain.ChannelCode `json:"code"`
	MemberCount int                `json:"client_count"`
}

type RoomManager interface {
	GetOrCreate(code domain.ChannelCode) RoomService
	GetRoom(code domain.ChannelCode) (RoomService, bool)
	List() []RoomInfo
	StopRoom(code domain.ChannelCode)
}
