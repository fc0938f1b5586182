package signal

import (
	"context"

	"github.com/dkeye/Babyfoon/internal/adapters/rtc"
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type candidateMsg struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type sdpMsg struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func (ctl *SignalWSController) sendCandidate(c *WsSignalConn, ci webrtc.ICECandidateInit) {
	ctl.sendJSON(c, candidateMsg{
		Type:          "candidate",
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	})
}

// handleOffer answers a client offer. A live connection is renegotiated in
// place; otherwise a new peer connection is created for the member.
func (ctl *SignalWSController) handleOffer(sid core.SessionID, c *WsSignalConn, msg inbound) {
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	if _, _, joined := ctl.Orch.Registry.ChannelOf(sid); !joined {
		ctl.sendError(c, "invalid_state", nil)
		return
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP}

	mc := sess.Media()
	fresh := mc == nil || mc.IsClosed()
	if fresh {
		wc, err := rtc.NewConnection(ctl.opts.WebRTC, sid)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
			ctl.sendError(c, "internal", nil)
			return
		}
		wc.OnICECandidate(func(ci webrtc.ICECandidateInit) { ctl.sendCandidate(c, ci) })
		ctl.Orch.BindMediaHandlers(wc, sid)
		if err := wc.Start(context.Background()); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
			wc.Close()
			return
		}
		mc = wc
	}

	if err := mc.ApplyOffer(offer); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc apply offer")
		if fresh {
			mc.Close()
		}
		ctl.sendError(c, "bad_payload", nil)
		return
	}
	answer, err := mc.CreateAnswer()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc create answer")
		if fresh {
			mc.Close()
		}
		return
	}

	if fresh {
		sess.UpdateMedia(mc)
	}
	ctl.sendJSON(c, sdpMsg{Type: "answer", SDP: answer.SDP})
	if fresh {
		ctl.Orch.OnMediaReady(sid)
	}
}

// handleAnswer completes a server-initiated renegotiation.
func (ctl *SignalWSController) handleAnswer(sid core.SessionID, c *WsSignalConn, msg inbound) {
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok || sess.Media() == nil {
		return
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}
	if err := sess.Media().ApplyAnswer(answer); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("webrtc apply answer")
		ctl.sendError(c, "bad_payload", nil)
	}
}

func (ctl *SignalWSController) handleCandidate(sid core.SessionID, msg inbound) {
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok || sess.Media() == nil {
		return
	}
	ci := webrtc.ICECandidateInit{
		Candidate:     msg.Candidate,
		SDPMid:        msg.SDPMid,
		SDPMLineIndex: msg.SDPMLineIndex,
	}
	if err := sess.Media().AddICECandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("add ice candidate")
	}
}
