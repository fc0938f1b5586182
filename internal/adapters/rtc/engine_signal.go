package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// serverMsg is the union of server events.
type serverMsg struct {
	Type string `json:"type"`

	Channel string `json:"channel"`
	UID     uint32 `json:"uid"`
	Role    string `json:"role"`

	Error   string `json:"error"`
	Message string `json:"message"`

	Level float64 `json:"level"`

	SDP           string  `json:"sdp"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// joinError maps a server error code onto the domain taxonomy.
func joinError(code string) error {
	const op = "join"
	switch code {
	case "not_found":
		return domain.E(domain.KindNotFound, op, domain.ErrChannelNotFound)
	case "channel_taken":
		return domain.E(domain.KindValidation, op, domain.ErrChannelTaken)
	case "expired":
		return domain.E(domain.KindUpstream, op, domain.ErrCredentialExpired)
	case "unauthorized":
		return domain.E(domain.KindUpstream, op, domain.ErrBadToken)
	case "invalid_code":
		return domain.E(domain.KindValidation, op, domain.ErrInvalidCode)
	default:
		return domain.E(domain.KindTransport, op, fmt.Errorf("server error %q", code))
	}
}

func (e *Engine) writeTo(ws *websocket.Conn, v any) error {
	if ws == nil {
		return errors.New("not connected")
	}
	e.wmu.Lock()
	defer e.wmu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ws.WriteJSON(v)
}

func (e *Engine) send(v any) error {
	e.mu.Lock()
	ws := e.ws
	e.mu.Unlock()
	return e.writeTo(ws, v)
}

func (e *Engine) handshake(ctx context.Context, token, channel string, uid uint32) (uint32, error) {
	e.mu.Lock()
	ws := e.ws
	e.mu.Unlock()
	if err := e.writeTo(ws, map[string]any{"type": "join", "channel": channel, "uid": uid, "token": token}); err != nil {
		return 0, domain.E(domain.KindTransport, "join", err)
	}
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetReadDeadline(deadline)
	defer ws.SetReadDeadline(time.Time{})

	for {
		var msg serverMsg
		if err := ws.ReadJSON(&msg); err != nil {
			return 0, domain.E(domain.KindTransport, "join", err)
		}
		switch msg.Type {
		case "joined":
			return msg.UID, nil
		case "error":
			return 0, joinError(msg.Error)
		}
	}
}

func (e *Engine) readLoop(ctx context.Context) {
	e.mu.Lock()
	ws := e.ws
	e.mu.Unlock()
	for {
		var msg serverMsg
		if err := ws.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "rtc.engine").Msg("signal read")
				if h := e.handler(); h.OnError != nil {
					h.OnError(domain.E(domain.KindTransport, "signal", domain.ErrTransportDown))
				}
			}
			return
		}
		e.dispatch(msg)
	}
}

func (e *Engine) dispatch(msg serverMsg) {
	h := e.handler()
	switch msg.Type {
	case "peer_joined":
		if h.OnPeerJoined != nil {
			h.OnPeerJoined(msg.UID)
		}
	case "peer_left":
		if h.OnPeerLeft != nil {
			h.OnPeerLeft(msg.UID)
		}
	case "level":
		if h.OnVolumeIndication != nil {
			h.OnVolumeIndication(msg.Level)
		}
	case "error":
		log.Warn().Str("module", "rtc.engine").Str("error", msg.Error).Msg("server error")
		if msg.Error == "not_found" && h.OnError != nil {
			h.OnError(joinError(msg.Error))
		}
	case "answer":
		e.applyRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP})
	case "offer":
		e.answer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP})
	case "candidate":
		e.addCandidate(webrtc.ICECandidateInit{
			Candidate:     msg.Candidate,
			SDPMid:        msg.SDPMid,
			SDPMLineIndex: msg.SDPMLineIndex,
		})
	}
}

func (e *Engine) peer() *webrtc.PeerConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pc
}

func (e *Engine) offer(pc *webrtc.PeerConnection) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}
	return e.send(map[string]string{"type": "offer", "sdp": offer.SDP})
}

func (e *Engine) applyRemote(desc webrtc.SessionDescription) bool {
	pc := e.peer()
	if pc == nil {
		return false
	}
	if err := pc.SetRemoteDescription(desc); err != nil {
		log.Warn().Err(err).Str("module", "rtc.engine").Str("sdp_type", desc.Type.String()).Msg("set remote description")
		return false
	}
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			log.Debug().Err(err).Str("module", "rtc.engine").Msg("queued candidate")
		}
	}
	return true
}

// answer handles a server-initiated renegotiation.
func (e *Engine) answer(offer webrtc.SessionDescription) {
	if !e.applyRemote(offer) {
		return
	}
	pc := e.peer()
	ans, err := pc.CreateAnswer(nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "rtc.engine").Msg("create answer")
		return
	}
	if err := pc.SetLocalDescription(ans); err != nil {
		log.Warn().Err(err).Str("module", "rtc.engine").Msg("set local answer")
		return
	}
	if err := e.send(map[string]string{"type": "answer", "sdp": ans.SDP}); err != nil {
		log.Warn().Err(err).Str("module", "rtc.engine").Msg("send answer")
	}
}

// addCandidate queues candidates that arrive before the remote description.
func (e *Engine) addCandidate(c webrtc.ICECandidateInit) {
	e.mu.Lock()
	pc := e.pc
	if pc == nil || pc.RemoteDescription() == nil {
		e.pending = append(e.pending, c)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	if err := pc.AddICECandidate(c); err != nil {
		log.Debug().Err(err).Str("module", "rtc.engine").Msg("add candidate")
	}
}

func (e *Engine) levelMessage(level float64) ([]byte, error) {
	return json.Marshal(map[string]any{"type": "level", "level": level})
}
