package orch

import (
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/rs/zerolog/log"
)

type JoinResult struct {
	Code    domain.ChannelCode
	UID     uint32
	Role    domain.Role
	Members []core.MemberDTO
}

// Join puts sid into the channel named by raw with the role its token grants.
func (o *Orchestrator) Join(sid core.SessionID, raw string, uid uint32, token string) (JoinResult, error) {
	const op = "join"
	code, err := domain.ParseChannelCode(raw)
	if err != nil {
		return JoinResult{}, err
	}
	role, _, err := o.Tokens.Verify(token, string(code), uid)
	if err != nil {
		o.Metrics.RecordJoinRejected("token")
		return JoinResult{}, domain.E(domain.KindValidation, op, err)
	}
	if _, ok := o.Channels.Lookup(code); !ok {
		o.Metrics.RecordJoinRejected("not_found")
		return JoinResult{}, domain.E(domain.KindNotFound, op, domain.ErrChannelNotFound)
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return JoinResult{}, domain.E(domain.KindInvalidState, op, domain.ErrInvalidState)
	}
	if current, _, ok := o.Registry.ChannelOf(sid); ok {
		o.Leave(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from", string(current)).Msg("left previous channel")
	}

	room := o.Rooms.GetOrCreate(code)
	if role == domain.RoleBroadcaster {
		if other, ok := room.Broadcaster(); ok && other != sid {
			o.dropIfEmpty(room)
			o.Metrics.RecordJoinRejected("taken")
			return JoinResult{}, domain.E(domain.KindValidation, op, domain.ErrChannelTaken)
		}
	} else if err := o.Channels.Attach(code); err != nil {
		o.dropIfEmpty(room)
		o.Metrics.RecordJoinRejected("not_found")
		return JoinResult{}, err
	}

	peer := sess.Meta()
	peer.Role = role
	peer.UID = uid
	peer.Muted = false
	peer.AssignUID()

	room.AddMember(sid, sess)
	o.Registry.SetChannel(sid, code)
	o.Metrics.AddPeers(1)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("code", string(code)).Str("role", role.String()).Uint32("uid", peer.UID).Msg("joined channel")

	o.notifyMates(sid, PeerEvent{Type: "peer_joined", UID: peer.UID, Role: role.String()})
	o.OnMediaReady(sid)

	return JoinResult{Code: code, UID: peer.UID, Role: role, Members: room.MembersSnapshot()}, nil
}

// Leave removes sid from its channel and tears down its media. The signal
// connection stays open.
func (o *Orchestrator) Leave(sid core.SessionID) bool {
	code, sess, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return false
	}
	peer := sess.Meta()
	o.notifyMates(sid, PeerEvent{Type: "peer_left", UID: peer.UID, Role: peer.Role.String()})

	o.cleanupMedia(sid)
	if room, ok := o.Rooms.GetRoom(code); ok {
		room.RemoveMember(sid)
		o.dropIfEmpty(room)
	}
	o.Registry.ClearChannel(sid)
	if peer.Role == domain.RoleAudience {
		o.Channels.Detach(code)
	}
	o.Metrics.AddPeers(-1)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("code", string(code)).Msg("left channel")
	return true
}

// dropIfEmpty forgets a room nobody ended up in.
func (o *Orchestrator) dropIfEmpty(room core.RoomService) {
	if room.MemberCount() == 0 {
		o.Rooms.StopRoom(room.Code())
	}
}

// SetMuted pauses the broadcaster's outbound audio or a listener's inbound audio.
func (o *Orchestrator) SetMuted(sid core.SessionID, on bool) error {
	_, sess, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return domain.E(domain.KindInvalidState, "mute", domain.ErrInvalidState)
	}
	peer := sess.Meta()
	peer.Muted = on
	if o.Relays != nil {
		if peer.Role == domain.RoleBroadcaster {
			o.Relays.SetSourceMuted(sid, on)
		} else {
			o.Relays.SetSubscriberMuted(sid, on)
		}
	}
	o.notifyMates(sid, PeerEvent{Type: "peer_muted", UID: peer.UID, Role: peer.Role.String(), Muted: &on})
	return nil
}

// KickBySID removes sid from its channel and closes its signal connection.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.Leave(sid)
	o.Registry.Cancel(sid)
}

// Disconnect forgets sid after its signal connection ended.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	o.Leave(sid)
	o.cleanupMedia(sid)
	o.Registry.Unbind(sid)
}

// EvictChannel drops every member of code, used when the broadcast is released.
func (o *Orchestrator) EvictChannel(code domain.ChannelCode) {
	for _, snap := range o.Registry.MembersOf(code) {
		o.send(snap.Session, map[string]any{"type": "error", "error": domain.ErrChannelNotFound.Error()})
		o.Leave(snap.SID)
	}
	o.Rooms.StopRoom(code)
}
