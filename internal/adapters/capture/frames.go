// Package capture records microphone audio from a raw PCM stream
// (16-bit little-endian mono), for example `arecord -f S16_LE -r 8000 -c 1`.
package capture

import (
	"io"

	"github.com/dkeye/Babyfoon/internal/adapters/audio"
)

// FrameMillis is the packetization interval of captured audio.
const FrameMillis = 20

// FrameReader cuts a PCM stream into fixed frames.
type FrameReader struct {
	r   io.Reader
	buf []byte
}

func NewFrameReader(r io.Reader, sampleRate int) *FrameReader {
	n := sampleRate * FrameMillis / 1000
	return &FrameReader{r: r, buf: make([]byte, n*2)}
}

func (f *FrameReader) Samples() int { return len(f.buf) / 2 }

// Next blocks until one full frame is read. A short final frame is returned
// with io.ErrUnexpectedEOF.
func (f *FrameReader) Next() ([]int16, error) {
	n, err := io.ReadFull(f.r, f.buf)
	if n > 0 && err == io.ErrUnexpectedEOF {
		return audio.BytesToSamples(f.buf[:n]), err
	}
	if err != nil {
		return nil, err
	}
	return audio.BytesToSamples(f.buf), nil
}
