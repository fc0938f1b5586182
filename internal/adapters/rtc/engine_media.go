package rtc

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dkeye/Babyfoon/internal/adapters/audio"
	"github.com/dkeye/Babyfoon/internal/adapters/capture"
	"github.com/dkeye/Babyfoon/internal/app/level"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// newPeer builds the device peer connection: a PCMU send track for the
// broadcaster, a receive-only transceiver for listeners.
func (e *Engine) newPeer(ctx context.Context, role domain.Role) (*webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(e.cfg.WebRTC)
	if err != nil {
		return nil, err
	}

	if role == domain.RoleBroadcaster {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: pcmuRate, Channels: 1},
			"audio", "babyfoon",
		)
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		sender, err := pc.AddTrack(track)
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		e.wg.Go(func() { drainRTCP(sender) })
	} else {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		msg := map[string]any{"type": "candidate", "candidate": init.Candidate, "sdpMid": init.SDPMid, "sdpMLineIndex": init.SDPMLineIndex}
		if err := e.send(msg); err != nil {
			log.Debug().Err(err).Str("module", "rtc.engine").Msg("send candidate")
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc.engine").Str("codec", track.Codec().MimeType).Msg("remote track")
		e.wg.Go(func() { e.playLoop(ctx, track) })
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc.engine").Str("state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed && ctx.Err() == nil {
			if h := e.handler(); h.OnError != nil {
				h.OnError(domain.E(domain.KindTransport, "media", domain.ErrTransportDown))
			}
		}
	})
	return pc, nil
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// pump reads the PCM source for the life of the process. Reads cannot be
// interrupted, so Leave never waits on it; frames nobody consumes are dropped.
func (e *Engine) pump() {
	defer close(e.frames)
	frames := capture.NewFrameReader(e.cfg.Source, pcmuRate)
	for {
		frame, err := frames.Next()
		if len(frame) > 0 {
			select {
			case e.frames <- frame:
			default:
			}
		}
		if err != nil {
			log.Info().Err(err).Str("module", "rtc.engine").Msg("capture ended")
			return
		}
	}
}

// captureLoop packetizes captured PCM into 20ms µ-law samples.
func (e *Engine) captureLoop(ctx context.Context, pc *webrtc.PeerConnection) {
	if e.cfg.Source == nil {
		return
	}
	var track *webrtc.TrackLocalStaticSample
	for _, s := range pc.GetSenders() {
		if t, ok := s.Track().(*webrtc.TrackLocalStaticSample); ok {
			track = t
		}
	}
	if track == nil {
		return
	}
	e.pumpOnce.Do(func() {
		e.frames = make(chan []int16, 8)
		go e.pump()
	})
	dur := time.Duration(capture.FrameMillis) * time.Millisecond
	for {
		var frame []int16
		select {
		case <-ctx.Done():
			return
		case f, ok := <-e.frames:
			if !ok {
				return
			}
			frame = f
		}
		e.setLevel(level.Normalize(level.PCMLevel(frame)))
		if e.mutedLocal.Load() {
			continue
		}
		if err := track.WriteSample(media.Sample{Data: audio.EncodeUlawFrame(frame), Duration: dur}); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			log.Debug().Err(err).Str("module", "rtc.engine").Msg("write sample")
		}
	}
}

// playLoop decodes the relayed broadcaster track into the sink.
func (e *Engine) playLoop(ctx context.Context, track *webrtc.TrackRemote) {
	for ctx.Err() == nil {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if e.mutedRemote.Load() || e.cfg.Sink == nil || len(pkt.Payload) == 0 {
			continue
		}
		pcm := audio.SamplesToBytes(audio.DecodeUlawFrame(pkt.Payload))
		e.sinkMu.Lock()
		_, err = e.cfg.Sink.Write(pcm)
		e.sinkMu.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("module", "rtc.engine").Msg("sink write")
			return
		}
	}
}

// levelLoop reports the broadcaster's own level locally and to listeners.
func (e *Engine) levelLoop(ctx context.Context, role domain.Role) {
	if role != domain.RoleBroadcaster {
		return
	}
	t := time.NewTicker(e.cfg.LevelEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		v := e.currentLevel()
		if h := e.handler(); h.OnVolumeIndication != nil {
			h.OnVolumeIndication(v)
		}
		if e.mutedLocal.Load() {
			v = 0
		}
		b, err := e.levelMessage(v)
		if err != nil {
			continue
		}
		e.mu.Lock()
		ws := e.ws
		e.mu.Unlock()
		if ws == nil {
			return
		}
		e.wmu.Lock()
		_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err = ws.WriteMessage(websocket.TextMessage, b)
		e.wmu.Unlock()
		if err != nil && ctx.Err() == nil {
			log.Debug().Err(err).Str("module", "rtc.engine").Msg("send level")
		}
	}
}
