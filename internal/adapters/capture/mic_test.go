package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Babyfoon/internal/adapters/audio"
	"github.com/dkeye/Babyfoon/internal/domain"
)

func constant(n int, v int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestFrameReader(t *testing.T) {
	pcm := audio.SamplesToBytes(constant(160+40, 7))
	fr := NewFrameReader(bytes.NewReader(pcm), 8000)
	if fr.Samples() != 160 {
		t.Fatalf("samples per frame = %d", fr.Samples())
	}
	f, err := fr.Next()
	if err != nil || len(f) != 160 || f[0] != 7 {
		t.Fatalf("first frame = %d, %v", len(f), err)
	}
	f, err = fr.Next()
	if !errors.Is(err, io.ErrUnexpectedEOF) || len(f) != 40 {
		t.Fatalf("tail = %d, %v", len(f), err)
	}
	if _, err = fr.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("after tail err = %v", err)
	}
}

func TestMicSegments(t *testing.T) {
	ctx := context.Background()
	pr, pw := io.Pipe()
	mic := NewMic(pr, 8000)

	if _, err := mic.StartSegment(ctx, nil); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("segment before acquire err = %v", err)
	}
	if err := mic.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := mic.Acquire(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("second acquire err = %v", err)
	}

	var (
		mu     sync.Mutex
		meters []float64
	)
	seg, err := mic.StartSegment(ctx, func(db float64) {
		mu.Lock()
		meters = append(meters, db)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mic.StartSegment(ctx, nil); !errors.Is(err, ErrSegmentActive) {
		t.Fatalf("overlapping segment err = %v", err)
	}

	// Two full frames; the pipe write returns once the reader consumed them.
	if _, err := pw.Write(audio.SamplesToBytes(constant(320, 16384))); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(meters)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("meter callbacks = %d, want 2", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	data, mime, err := seg.Stop()
	if err != nil || mime != domain.MimeWAV {
		t.Fatalf("Stop = %s, %v", mime, err)
	}
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil || rate != 8000 || len(samples) != 320 {
		t.Fatalf("segment = %d samples @%d, %v", len(samples), rate, err)
	}
	mu.Lock()
	if meters[0] < -7 || meters[0] > -5 { // half scale is about -6 dBFS
		t.Errorf("meter = %v dBFS", meters[0])
	}
	mu.Unlock()

	next, err := mic.StartSegment(ctx, nil)
	if err != nil {
		t.Fatalf("segment after stop: %v", err)
	}
	if _, _, err := next.Stop(); !errors.Is(err, audio.ErrEmpty) {
		t.Fatalf("empty segment err = %v", err)
	}

	if err := mic.Release(); err != nil {
		t.Fatal(err)
	}
	if err := mic.Release(); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("double release err = %v", err)
	}
	_ = pw.Close()
}
