package sfu

import (
	"context"
	"sync"

	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// RelayManager owns one relay per broadcasting session.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[core.SessionID]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{relays: make(map[core.SessionID]*Relay)}
}

// StartRelay replaces any relay of sid and starts forwarding track.
func (m *RelayManager) StartRelay(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	read := func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	}
	m.start(ctx, sid, read, track.Codec().RTPCodecCapability)
}

func (m *RelayManager) start(ctx context.Context, sid core.SessionID, read ReadFunc, codec webrtc.RTPCodecCapability) *Relay {
	logger := log.With().Str("module", "sfu.relay").Str("sid", string(sid)).Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(read, codec, cancel)

	m.mu.Lock()
	if old, ok := m.relays[sid]; ok {
		logger.Info().Msg("replacing existing relay")
		old.markAllDelete()
		old.cancel()
	}
	m.relays[sid] = relay
	m.mu.Unlock()

	logger.Info().Str("codec", codec.MimeType).Msg("starting relay loop")
	go relay.loop(relayCtx, &logger)
	return relay
}

func (m *RelayManager) relay(sid core.SessionID) (*Relay, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.relays[sid]
	return r, ok
}

// Subscribe adds a local copy of src's track to dst's peer connection.
// It reports false when dst already receives src or src has no relay.
// The caller must renegotiate dst after a true result.
func (m *RelayManager) Subscribe(src, dst core.SessionID, mc core.MediaConnection) (bool, error) {
	relay, ok := m.relay(src)
	if !ok {
		return false, nil
	}
	if ot, ok := relay.outTrack(dst); ok && ot.State() != TrackStateDelete {
		return false, nil
	}
	local, err := webrtc.NewTrackLocalStaticRTP(relay.codec, "audio", "babyfoon-"+string(src))
	if err != nil {
		return false, err
	}
	sender, err := mc.AddLocalTrack(local)
	if err != nil {
		return false, err
	}
	go drainRTCP(sender)
	relay.AddOutTrack(dst, NewOutTrack(local))
	log.Info().Str("module", "sfu.relay").Str("src", string(src)).Str("dst", string(dst)).Msg("listener subscribed")
	return true, nil
}

// drainRTCP keeps the sender's interceptors running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// SetSubscriberMuted pauses or resumes every track sent to dst.
func (m *RelayManager) SetSubscriberMuted(dst core.SessionID, on bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, relay := range m.relays {
		if ot, ok := relay.outTrack(dst); ok {
			ot.SetMuted(on)
		}
	}
}

// SetSourceMuted stops forwarding src's audio to anyone.
func (m *RelayManager) SetSourceMuted(src core.SessionID, on bool) {
	if relay, ok := m.relay(src); ok {
		relay.paused.Store(on)
	}
}

// Unsubscribe marks dst's out track of src for deletion.
func (m *RelayManager) Unsubscribe(src, dst core.SessionID) {
	relay, ok := m.relay(src)
	if !ok {
		return
	}
	if ot, ok := relay.outTrack(dst); ok {
		ot.MarkDelete()
	}
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(src core.SessionID) {
	m.mu.Lock()
	relay, ok := m.relays[src]
	if ok {
		delete(m.relays, src)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	relay.cancel()
}

func (m *RelayManager) HasRelay(sid core.SessionID) bool {
	_, ok := m.relay(sid)
	return ok
}
