package orch

import (
	"encoding/json"

	"github.com/dkeye/Babyfoon/internal/app"
	"github.com/dkeye/Babyfoon/internal/app/sfu"
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/dkeye/Babyfoon/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Orchestrator ties signaling sessions, channel rooms and media relays together.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Relays   *sfu.RelayManager
	Tokens   core.TokenVerifier
	Channels core.ChannelLookup
	Metrics  *metrics.Metrics
}

type PeerEvent struct {
	Type  string `json:"type"`
	UID   uint32 `json:"uid"`
	Role  string `json:"role,omitempty"`
	Muted *bool  `json:"muted,omitempty"`
}

type LevelEvent struct {
	Type  string  `json:"type"`
	Level float64 `json:"level"`
}

type OfferEvent struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// OnFrame fans data out to sid's room mates, applying the backpressure policy.
func (o *Orchestrator) OnFrame(sid core.SessionID, data core.Frame) {
	code, _, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return
	}
	room, ok := o.Rooms.GetRoom(code)
	if !ok {
		return
	}
	res := room.Broadcast(sid, data)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			for _, snap := range o.Registry.MembersOf(code) {
				if snap.Session == slow {
					log.Warn().Str("module", "orch").Str("sid", string(snap.SID)).Msg("kicking stalled member")
					o.KickBySID(snap.SID)
				}
			}
		case app.DropFrame, app.NoAction:
		}
	}
}

func (o *Orchestrator) send(sess core.MemberSession, v any) {
	sig := sess.Signal()
	if sig == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal event")
		return
	}
	_ = sig.TrySend(b)
}

func (o *Orchestrator) notifyMates(sid core.SessionID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal event")
		return
	}
	o.OnFrame(sid, b)
}

// Level relays a broadcaster's volume indication to its listeners.
func (o *Orchestrator) Level(sid core.SessionID, level float64) error {
	_, sess, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return domain.E(domain.KindInvalidState, "level", domain.ErrInvalidState)
	}
	if sess.Meta().Role != domain.RoleBroadcaster {
		return domain.E(domain.KindValidation, "level", domain.ErrInvalidRole)
	}
	level = min(max(level, 0), 1)
	o.notifyMates(sid, LevelEvent{Type: "level", Level: level})
	return nil
}
