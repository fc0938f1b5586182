package orch

import (
	"context"

	"github.com/dkeye/Babyfoon/internal/app"
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, sid core.SessionID) {
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		o.OnTrack(trackCtx, sid, track)
	})
	mc.OnClosed(func() { o.OnMediaDisconnect(sid) })
}

func (o *Orchestrator) OnMediaDisconnect(sid core.SessionID) {
	if o.Relays == nil {
		return
	}
	o.Relays.StopRelay(sid)
	for _, snap := range o.Registry.RoomMates(sid) {
		o.Relays.Unsubscribe(snap.SID, sid)
	}
}

func (o *Orchestrator) cleanupMedia(sid core.SessionID) {
	o.OnMediaDisconnect(sid)
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	if mc := sess.Media(); mc != nil {
		sess.UpdateMedia(nil)
		mc.Close()
	}
}

// OnTrack relays a broadcaster's audio to every listener of its channel.
// Listener tracks are not relayed.
func (o *Orchestrator) OnTrack(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	if o.Relays == nil {
		return
	}
	code, sess, ok := o.Registry.ChannelOf(sid)
	if !ok || sess.Media() == nil {
		log.Info().Str("module", "sfu").Str("sid", string(sid)).Msg("track outside a channel ignored")
		return
	}
	if sess.Meta().Role != domain.RoleBroadcaster {
		log.Info().Str("module", "sfu").Str("sid", string(sid)).Msg("listener track ignored")
		return
	}
	o.Relays.StartRelay(ctx, sid, track)
	if sess.Meta().Muted {
		o.Relays.SetSourceMuted(sid, true)
	}

	for _, snap := range o.Registry.MembersOf(code) {
		if snap.SID == sid {
			continue
		}
		o.subscribe(sid, snap)
	}
}

// OnMediaReady subscribes a listener whose connection is ready to the
// broadcaster of its channel.
func (o *Orchestrator) OnMediaReady(sid core.SessionID) {
	if o.Relays == nil {
		return
	}
	code, sess, ok := o.Registry.ChannelOf(sid)
	if !ok || sess.Media() == nil || sess.Meta().Role != domain.RoleAudience {
		return
	}
	room, ok := o.Rooms.GetRoom(code)
	if !ok {
		return
	}
	src, ok := room.Broadcaster()
	if !ok {
		return
	}
	o.subscribe(src, app.Snapshot{SID: sid, Session: sess})
}

func (o *Orchestrator) subscribe(src core.SessionID, dst app.Snapshot) {
	mc := dst.Session.Media()
	if mc == nil {
		return
	}
	added, err := o.Relays.Subscribe(src, dst.SID, mc)
	if err != nil {
		log.Error().Err(err).Str("module", "sfu").Str("src", string(src)).Str("dst", string(dst.SID)).Msg("subscribe failed")
		return
	}
	if !added {
		return
	}
	if dst.Session.Meta().Muted {
		o.Relays.SetSubscriberMuted(dst.SID, true)
	}
	offer, err := mc.CreateAndSetOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "sfu").Str("dst", string(dst.SID)).Msg("renegotiation offer failed")
		return
	}
	o.send(dst.Session, OfferEvent{Type: "offer", SDP: offer.SDP})
}
