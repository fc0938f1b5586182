package sfu

import (
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

func (s TrackState) String() string {
	switch s {
	case TrackStateOk:
		return "ok"
	case TrackStateMuted:
		return "muted"
	default:
		return "delete"
	}
}

// RTPWriter is the sink side of an out track.
type RTPWriter interface {
	WriteRTP(p *rtp.Packet) error
}

var _ RTPWriter = (*webrtc.TrackLocalStaticRTP)(nil)

// OutTrack is the copy of the broadcaster's audio sent to one listener.
type OutTrack struct {
	Track RTPWriter
	state atomic.Int32
}

func NewOutTrack(track RTPWriter) *OutTrack {
	return &OutTrack{Track: track}
}

func (ot *OutTrack) State() TrackState { return TrackState(ot.state.Load()) }

// SetMuted toggles between ok and muted; a deleted track stays deleted.
func (ot *OutTrack) SetMuted(on bool) {
	from, to := TrackStateOk, TrackStateMuted
	if !on {
		from, to = TrackStateMuted, TrackStateOk
	}
	ot.state.CompareAndSwap(int32(from), int32(to))
}

func (ot *OutTrack) MarkDelete() { ot.state.Store(int32(TrackStateDelete)) }
