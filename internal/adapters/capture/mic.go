package capture

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dkeye/Babyfoon/internal/adapters/audio"
	"github.com/dkeye/Babyfoon/internal/app/level"
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrBusy          = errors.New("microphone already acquired")
	ErrNotAcquired   = errors.New("microphone not acquired")
	ErrSegmentActive = errors.New("a segment is already recording")
)

// Mic is a core.Microphone over a PCM stream. The stream is read by one
// goroutine for the life of the process; frames are only kept while acquired
// and a segment is open.
type Mic struct {
	frames *FrameReader
	rate   int

	once sync.Once
	mu   sync.Mutex
	acq  bool
	seg  *segment
	eof  error
}

var _ core.Microphone = (*Mic)(nil)

func NewMic(r io.Reader, sampleRate int) *Mic {
	return &Mic{frames: NewFrameReader(r, sampleRate), rate: sampleRate}
}

func (m *Mic) Acquire(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acq {
		return ErrBusy
	}
	if m.eof != nil {
		return domain.E(domain.KindTransport, "acquire microphone", m.eof)
	}
	m.acq = true
	m.once.Do(func() { go m.run() })
	return nil
}

func (m *Mic) run() {
	for {
		frame, err := m.frames.Next()
		if len(frame) > 0 {
			m.deliver(frame)
		}
		if err != nil {
			log.Info().Err(err).Str("module", "capture").Msg("capture stream ended")
			m.mu.Lock()
			m.eof = err
			m.mu.Unlock()
			return
		}
	}
}

func (m *Mic) deliver(frame []int16) {
	m.mu.Lock()
	seg := m.seg
	if !m.acq || seg == nil {
		m.mu.Unlock()
		return
	}
	seg.samples = append(seg.samples, frame...)
	meter := seg.onMeter
	m.mu.Unlock()
	if meter != nil {
		meter(level.PCMLevel(frame))
	}
}

func (m *Mic) StartSegment(_ context.Context, onMeter func(dbfs float64)) (core.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.acq {
		return nil, ErrNotAcquired
	}
	if m.seg != nil {
		return nil, ErrSegmentActive
	}
	m.seg = &segment{mic: m, onMeter: onMeter}
	return m.seg, nil
}

func (m *Mic) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.acq {
		return ErrNotAcquired
	}
	m.acq = false
	m.seg = nil
	return nil
}

type segment struct {
	mic     *Mic
	samples []int16
	onMeter func(float64)
}

// Stop closes the segment and packages what was captured as WAV.
func (s *segment) Stop() ([]byte, string, error) {
	m := s.mic
	m.mu.Lock()
	if m.seg == s {
		m.seg = nil
	}
	samples := s.samples
	s.samples = nil
	m.mu.Unlock()

	data, err := audio.EncodeWAV(samples, m.rate)
	if err != nil {
		return nil, "", err
	}
	return data, domain.MimeWAV, nil
}
