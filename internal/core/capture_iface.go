package core

import "context"

// Microphone is an exclusive capture device. Only one segment records at a time.
type Microphone interface {
	Acquire(ctx context.Context) error
	// StartSegment begins a new bounded recording; onMeter receives dBFS samples.
	StartSegment(ctx context.Context, onMeter func(dbfs float64)) (Segment, error)
	Release() error
}

// Segment is one in-flight recording.
type Segment interface {
	// Stop ends the recording and returns the packaged bytes.
	Stop() (data []byte, mimeType string, err error)
}

// Player plays a finished chunk fetched from url.
type Player interface {
	Play(ctx context.Context, url string) error
	Stop() error
}
