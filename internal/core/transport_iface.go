package core

import (
	"context"

	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/pion/webrtc/v4"
)

type SessionID string

// Frame is one JSON signaling message.
type Frame []byte

// SignalConnection is the websocket side of a peer. The adapter owns and closes it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MediaConnection is the server end of a peer's WebRTC link.
type MediaConnection interface {
	// Start wires pion callbacks; ctx bounds the connection.
	Start(ctx context.Context) error
	Close()
	IsClosed() bool

	AddICECandidate(webrtc.ICECandidateInit) error
	// ApplyOffer takes the device's offer. CreateAnswer must follow.
	ApplyOffer(webrtc.SessionDescription) error
	CreateAnswer() (*webrtc.SessionDescription, error)
	// CreateAndSetOffer starts a server-side renegotiation after tracks change.
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error

	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack fires for the broadcaster's incoming audio.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error)
	OnClosed(func())
}

// MemberSession is what a room stores per peer: who it is and how to reach it.
type MemberSession interface {
	Meta() *domain.Peer
	Signal() SignalConnection
	Media() MediaConnection
	UpdateSignal(SignalConnection) MemberSession
	UpdateMedia(MediaConnection) MemberSession
}
