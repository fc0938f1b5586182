package fallback

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Babyfoon/internal/app/level"
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/dkeye/Babyfoon/internal/metrics"
	"github.com/rs/zerolog/log"
)

type EngineConfig struct {
	Interval  time.Duration
	MaxMisses int
	Metrics   *metrics.Metrics
}

// Engine runs the chunked pipeline behind the same interface as the
// real-time transport. Broadcasters capture and upload, audiences poll.
type Engine struct {
	mic    core.Microphone
	player core.Player
	store  core.ChunkStore
	cfg    EngineConfig

	mu       sync.Mutex
	appID    string
	enabled  bool
	role     domain.Role
	handler  core.EngineHandler
	pipeline *Pipeline
	stopped  []*Pipeline
	poller   *Poller
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ core.Engine = (*Engine)(nil)

func NewEngine(mic core.Microphone, player core.Player, store core.ChunkStore, cfg EngineConfig) *Engine {
	return &Engine{mic: mic, player: player, store: store, cfg: cfg}
}

func (e *Engine) Initialize(appID string) error {
	e.mu.Lock()
	e.appID = appID
	e.mu.Unlock()
	return nil
}

func (e *Engine) EnableAudio() error {
	e.mu.Lock()
	e.enabled = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) SetRole(role domain.Role) error {
	if !role.Valid() {
		return domain.ErrInvalidRole
	}
	e.mu.Lock()
	e.role = role
	e.mu.Unlock()
	return nil
}

func (e *Engine) SetHandler(h core.EngineHandler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

// Join ignores the token: storage access is authorized out of band.
func (e *Engine) Join(ctx context.Context, _ string, channel string, uid uint32) error {
	code, err := domain.ParseChannelCode(channel)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return domain.E(domain.KindTransport, "join", domain.ErrTransportDown)
	}
	if e.pipeline != nil || e.poller != nil {
		return domain.E(domain.KindInvalidState, "join", domain.ErrInvalidState)
	}
	h := e.handler

	if e.role == domain.RoleBroadcaster {
		p := NewPipeline(e.mic, e.store, code, PipelineConfig{
			Interval: e.cfg.Interval,
			Metrics:  e.cfg.Metrics,
			OnMeter: func(dbfs float64) {
				if h.OnVolumeIndication != nil {
					h.OnVolumeIndication(level.Normalize(dbfs))
				}
			},
		})
		if err := p.Start(ctx); err != nil {
			return err
		}
		e.pipeline = p
	} else {
		p := NewPoller(e.store, e.player, code, PollerConfig{
			Interval:  e.cfg.Interval,
			MaxMisses: e.cfg.MaxMisses,
			Metrics:   e.cfg.Metrics,
		})
		if _, err := p.Poll(ctx); err != nil {
			return notFound(err)
		}
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := p.Loop(runCtx); err != nil && h.OnError != nil {
				h.OnError(err)
			}
		}()
		e.poller, e.cancel, e.done = p, cancel, done
	}
	log.Info().Str("module", "fallback.engine").Str("code", string(code)).Str("role", e.role.String()).Msg("joined chunked channel")
	if h.OnJoined != nil {
		h.OnJoined(channel, uid)
	}
	return nil
}

func (e *Engine) Leave(ctx context.Context) error {
	e.mu.Lock()
	pipeline, poller, cancel, done := e.pipeline, e.poller, e.cancel, e.done
	e.pipeline, e.poller, e.cancel, e.done = nil, nil, nil, nil
	e.mu.Unlock()

	var err error
	if pipeline != nil {
		err = pipeline.Stop(ctx)
		e.mu.Lock()
		e.stopped = append(e.stopped, pipeline)
		e.mu.Unlock()
	}
	if poller != nil {
		cancel()
		<-done
		if perr := e.player.Stop(); perr != nil {
			log.Warn().Err(perr).Str("module", "fallback.engine").Msg("player stop failed")
		}
	}
	return err
}

// Flush waits for uploads left running by Leave, or until ctx is done.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	pending := e.stopped
	e.stopped = nil
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, p := range pending {
			p.Wait()
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) MuteLocal(muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipeline == nil {
		return domain.E(domain.KindTransport, "mute local", domain.ErrTransportDown)
	}
	e.pipeline.SetMuted(muted)
	return nil
}

func (e *Engine) MuteRemote(muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.poller == nil {
		return domain.E(domain.KindTransport, "mute remote", domain.ErrTransportDown)
	}
	e.poller.SetMuted(muted)
	return nil
}
