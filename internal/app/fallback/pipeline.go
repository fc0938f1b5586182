// Package fallback records, uploads and polls fixed-length audio chunks when
// no real-time transport is available.
package fallback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/dkeye/Babyfoon/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const (
	DefaultInterval = 3 * time.Second
	uploadTimeout   = 30 * time.Second
)

// Ticker yields rotation ticks until stop is called.
type Ticker func(d time.Duration) (ticks <-chan time.Time, stop func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type PipelineConfig struct {
	Interval time.Duration
	Now      func() time.Time
	Ticker   Ticker
	// OnMeter receives dBFS metering samples of the live segment.
	OnMeter func(dbfs float64)
	Metrics *metrics.Metrics
}

// Pipeline is the broadcaster side: it keeps one segment recording and
// rotates it on every tick.
type Pipeline struct {
	mic   core.Microphone
	store core.ChunkStore
	code  domain.ChannelCode
	cfg   PipelineConfig

	mu       sync.Mutex
	running  bool
	muted    bool
	seg      core.Segment
	segStart time.Time
	lastSeq  int64
	baseCtx  context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	uploads  conc.WaitGroup
}

func NewPipeline(mic core.Microphone, store core.ChunkStore, code domain.ChannelCode, cfg PipelineConfig) *Pipeline {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Ticker == nil {
		cfg.Ticker = realTicker
	}
	return &Pipeline{mic: mic, store: store, code: code, cfg: cfg}
}

// Start acquires the microphone and begins the capture loop. A failing first
// segment is retried on the next tick.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return domain.E(domain.KindInvalidState, "pipeline start", domain.ErrInvalidState)
	}
	if err := p.mic.Acquire(ctx); err != nil {
		return domain.E(domain.KindTransport, "acquire microphone", err)
	}
	p.baseCtx = context.WithoutCancel(ctx)
	runCtx, cancel := context.WithCancel(p.baseCtx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.startSegmentLocked()

	ticks, stopTicker := p.cfg.Ticker(p.cfg.Interval)
	go p.loop(runCtx, ticks, stopTicker, p.done)
	log.Info().Str("module", "fallback.pipeline").Str("code", string(p.code)).Dur("interval", p.cfg.Interval).Msg("capture started")
	return nil
}

func (p *Pipeline) loop(ctx context.Context, ticks <-chan time.Time, stopTicker func(), done chan struct{}) {
	defer close(done)
	defer stopTicker()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			p.Rotate()
		}
	}
}

// Rotate stops the live segment, starts the next one and uploads the finished one.
func (p *Pipeline) Rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	chunk, ok := p.finishSegmentLocked()
	p.startSegmentLocked()
	if ok && !p.muted {
		ctx := p.baseCtx
		p.uploads.Go(func() {
			_ = p.upload(ctx, chunk)
		})
	}
}

// SetMuted keeps segments rotating but stops uploading them.
func (p *Pipeline) SetMuted(on bool) {
	p.mu.Lock()
	p.muted = on
	p.mu.Unlock()
}

func (p *Pipeline) startSegmentLocked() {
	seg, err := p.mic.StartSegment(p.baseCtx, p.cfg.OnMeter)
	if err != nil {
		log.Warn().Err(err).Str("module", "fallback.pipeline").Str("code", string(p.code)).Msg("segment start failed, retry on next tick")
		return
	}
	p.seg = seg
	p.segStart = p.cfg.Now()
}

func (p *Pipeline) finishSegmentLocked() (domain.AudioChunk, bool) {
	seg := p.seg
	if seg == nil {
		return domain.AudioChunk{}, false
	}
	p.seg = nil
	data, mime, err := seg.Stop()
	if err != nil {
		log.Warn().Err(err).Str("module", "fallback.pipeline").Str("code", string(p.code)).Msg("segment stop failed")
		return domain.AudioChunk{}, false
	}
	if len(data) == 0 {
		return domain.AudioChunk{}, false
	}
	seq := p.segStart.UnixMilli()
	if seq <= p.lastSeq {
		seq = p.lastSeq + 1
	}
	p.lastSeq = seq
	return domain.AudioChunk{Channel: p.code, Sequence: seq, Data: data, MimeType: mime}, true
}

func (p *Pipeline) upload(ctx context.Context, c domain.AudioChunk) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	err := p.store.Put(ctx, c.Key(), c.Data, c.MimeType)
	p.cfg.Metrics.RecordUpload(len(c.Data), err)
	if err != nil {
		log.Warn().Err(err).Str("module", "fallback.pipeline").Str("key", c.Key()).Msg("chunk upload failed")
		return domain.E(domain.KindStorage, "upload chunk", err)
	}
	log.Debug().Str("module", "fallback.pipeline").Str("key", c.Key()).Int("bytes", len(c.Data)).Msg("chunk uploaded")
	return nil
}

// Stop cancels the timer, hands the partial segment to a best-effort upload
// and releases the microphone. Uploads still running are not waited for; see
// Wait. Every step runs even if an earlier one panics.
func (p *Pipeline) Stop(_ context.Context) (err error) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	defer func() {
		if rerr := p.step("release microphone", p.mic.Release); rerr != nil {
			err = domain.E(domain.KindTransport, "release microphone", rerr)
		}
		log.Info().Str("module", "fallback.pipeline").Str("code", string(p.code)).Msg("capture stopped")
	}()
	defer func() {
		_ = p.step("final segment", func() error {
			chunk, ok, muted := p.takeFinal()
			if ok && !muted {
				ctx := p.baseCtx
				p.uploads.Go(func() {
					_ = p.upload(ctx, chunk)
				})
			}
			return nil
		})
	}()
	_ = p.step("cancel timer", func() error {
		cancel()
		<-done
		return nil
	})
	return nil
}

// Wait blocks until every queued upload has finished.
func (p *Pipeline) Wait() {
	p.uploads.Wait()
}

func (p *Pipeline) takeFinal() (domain.AudioChunk, bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	chunk, ok := p.finishSegmentLocked()
	return chunk, ok, p.muted
}

func (p *Pipeline) step(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
		if err != nil {
			log.Warn().Err(err).Str("module", "fallback.pipeline").Str("step", name).Msg("teardown step failed")
		}
	}()
	return fn()
}
