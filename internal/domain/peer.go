package domain

import "github.com/google/uuid"

type PeerID string

// Peer is a participant of a live room on the server.
// No transport or lifecycle logic here.
type Peer struct {
	ID    PeerID      `json:"id"`
	UID   uint32      `json:"uid"`
	Role  Role        `json:"role"`
	Muted bool        `json:"muted"`
	Code  ChannelCode `json:"code,omitempty"`
}

func NewPeer(uid uint32, role Role) *Peer {
	return &Peer{ID: PeerID(uuid.NewString()), UID: uid, Role: role}
}

// AssignUID derives a non-zero uid for peers that joined with uid 0.
func (p *Peer) AssignUID() uint32 {
	if p.UID != 0 {
		return p.UID
	}
	u, err := uuid.Parse(string(p.ID))
	if err != nil {
		u = uuid.New()
	}
	v := uint32(u[0])<<24 | uint32(u[1])<<16 | uint32(u[2])<<8 | uint32(u[3])
	if v == 0 {
		v = 1
	}
	p.UID = v
	return v
}
