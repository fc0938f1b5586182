// Package audio holds the sample formats the devices exchange: 16-bit mono
// PCM, WAV packaging for fallback chunks and G.711 µ-law for RTP.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderLen = 44

// wavHeader is the canonical 44-byte RIFF header of a PCM WAV file.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

var ErrEmpty = errors.New("no audio samples")

// EncodeWAV packages mono 16-bit samples.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	dataSize := uint32(len(samples) * 2)
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderLen+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("write WAV data: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWAV returns the samples and sample rate of a mono 16-bit PCM WAV.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < wavHeaderLen {
		return nil, 0, fmt.Errorf("WAV data too short: %d bytes", len(data))
	}
	var h wavHeader
	if err := binary.Read(bytes.NewReader(data[:wavHeaderLen]), binary.LittleEndian, &h); err != nil {
		return nil, 0, fmt.Errorf("read WAV header: %w", err)
	}
	switch {
	case string(h.ChunkID[:]) != "RIFF" || string(h.Format[:]) != "WAVE":
		return nil, 0, errors.New("invalid WAV file: missing RIFF/WAVE")
	case string(h.Subchunk1ID[:]) != "fmt " || string(h.Subchunk2ID[:]) != "data":
		return nil, 0, errors.New("invalid WAV file: unexpected chunk layout")
	case h.AudioFormat != 1 || h.BitsPerSample != 16 || h.NumChannels != 1:
		return nil, 0, fmt.Errorf("unsupported WAV format %d/%d bit/%d ch", h.AudioFormat, h.BitsPerSample, h.NumChannels)
	}
	n := min(int(h.Subchunk2Size), len(data)-wavHeaderLen) / 2
	if n == 0 {
		return nil, 0, ErrEmpty
	}
	return BytesToSamples(data[wavHeaderLen : wavHeaderLen+n*2]), int(h.SampleRate), nil
}

// SamplesToBytes renders samples as little-endian PCM.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples reads little-endian PCM; a trailing odd byte is ignored.
func BytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
