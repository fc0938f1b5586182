package fallback

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/dkeye/Babyfoon/internal/domain"
)

func TestPipelineUploadFailureDoesNotStopCapture(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	mic := &fakeMic{}
	store := newFakeStore()
	store.failOn = "seg-2"

	p := NewPipeline(mic, store, "4821", PipelineConfig{Now: clock.Now, Ticker: noTicks})
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		clock.Advance(3 * time.Second)
		p.Rotate()
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	p.Wait()

	if got := mic.Started(); got != 5 {
		t.Fatalf("segments started = %d, want 5", got)
	}
	want := []string{"seg-1", "seg-3", "seg-4", "seg-5"}
	if got := store.Payloads(); !reflect.DeepEqual(got, want) {
		t.Fatalf("uploaded = %v, want %v", got, want)
	}
	if store.puts != 5 {
		t.Fatalf("puts = %d, want 5", store.puts)
	}
	key := domain.ChunkKey("4821", 1_700_000_006_000, domain.MimeWAV)
	if string(store.objects[key]) != "seg-3" || store.types[key] != domain.MimeWAV {
		t.Fatalf("object %s = %q (%s)", key, store.objects[key], store.types[key])
	}
	if !mic.Released() {
		t.Fatal("microphone not released")
	}
}

func TestPipelineRetriesFailedStartOnNextTick(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.UnixMilli(1_000)}
	mic := &fakeMic{failStart: map[int]bool{1: true}}
	store := newFakeStore()

	p := NewPipeline(mic, store, "1234", PipelineConfig{Now: clock.Now, Ticker: noTicks})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	p.Rotate()
	clock.Advance(3 * time.Second)
	p.Rotate()
	_ = p.Stop(ctx)
	p.Wait()

	if got := store.Payloads(); !reflect.DeepEqual(got, []string{"seg-2", "seg-3"}) {
		t.Fatalf("uploaded = %v", got)
	}
}

func TestPipelineMutedSkipsUploads(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.UnixMilli(1_000)}
	mic := &fakeMic{}
	store := newFakeStore()

	p := NewPipeline(mic, store, "1234", PipelineConfig{Now: clock.Now, Ticker: noTicks})
	_ = p.Start(ctx)
	p.SetMuted(true)
	clock.Advance(time.Second)
	p.Rotate()
	p.SetMuted(false)
	clock.Advance(time.Second)
	p.Rotate()
	_ = p.Stop(ctx)
	p.Wait()

	if got := store.Payloads(); !reflect.DeepEqual(got, []string{"seg-2", "seg-3"}) {
		t.Fatalf("uploaded = %v", got)
	}
	if mic.Started() != 3 {
		t.Fatalf("started = %d", mic.Started())
	}
}

func TestPipelineSequenceStrictlyIncreases(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.UnixMilli(5_000)}
	store := newFakeStore()
	p := NewPipeline(&fakeMic{}, store, "1234", PipelineConfig{Now: clock.Now, Ticker: noTicks})
	_ = p.Start(ctx)
	p.Rotate()
	p.Rotate()
	_ = p.Stop(ctx)
	p.Wait()

	for _, seq := range []int64{5_000, 5_001, 5_002} {
		if _, ok := store.objects[domain.ChunkKey("1234", seq, domain.MimeWAV)]; !ok {
			t.Fatalf("missing chunk %d in %v", seq, store.objects)
		}
	}
}

func TestPipelineStopReleasesMicAfterPanic(t *testing.T) {
	ctx := context.Background()
	mic := &fakeMic{}
	p := NewPipeline(mic, newFakeStore(), "1234", PipelineConfig{Ticker: noTicks})
	_ = p.Start(ctx)
	mic.panicStop = true

	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if !mic.Released() {
		t.Fatal("microphone not released")
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("second Stop() = %v", err)
	}
}

func TestPipelineRotatesOnTimer(t *testing.T) {
	ctx := context.Background()
	mic := &fakeMic{}
	store := newFakeStore()
	p := NewPipeline(mic, store, "1234", PipelineConfig{Interval: 5 * time.Millisecond})
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for mic.Started() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if mic.Started() < 3 {
		t.Fatalf("timer did not rotate: %d segments", mic.Started())
	}
	started := mic.Started()
	time.Sleep(20 * time.Millisecond)
	if mic.Started() != started {
		t.Fatal("segments started after Stop")
	}
}

func TestPipelineStopReleasesMicWithStalledUpload(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.UnixMilli(1_000)}
	mic := &fakeMic{}
	store := newFakeStore()
	store.block = make(chan struct{})

	p := NewPipeline(mic, store, "1234", PipelineConfig{Now: clock.Now, Ticker: noTicks})
	_ = p.Start(ctx)
	clock.Advance(time.Second)
	p.Rotate()

	stopped := make(chan error, 1)
	go func() { stopped <- p.Stop(ctx) }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop() = %v", err)
		}
	case <-time.After(time.Second):
		close(store.block)
		t.Fatal("Stop blocked on a stalled upload")
	}
	if !mic.Released() {
		t.Fatal("microphone not released while upload is stalled")
	}

	close(store.block)
	p.Wait()
	if got := store.Payloads(); !reflect.DeepEqual(got, []string{"seg-1", "seg-2"}) {
		t.Fatalf("uploaded = %v", got)
	}
}
