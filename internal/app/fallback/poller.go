package fallback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/dkeye/Babyfoon/internal/metrics"
	"github.com/rs/zerolog/log"
)

const DefaultMaxMisses = 3

type PollerConfig struct {
	Interval time.Duration
	// MaxMisses is the number of consecutive failed polls tolerated after the first success.
	MaxMisses int
	Ticker    Ticker
	Metrics   *metrics.Metrics
}

// Poller is the listener side: it plays every new chunk of a channel once.
type Poller struct {
	store  core.ChunkStore
	player core.Player
	code   domain.ChannelCode
	cfg    PollerConfig

	mu      sync.Mutex
	lastKey string
	muted   bool
}

func NewPoller(store core.ChunkStore, player core.Player, code domain.ChannelCode, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxMisses <= 0 {
		cfg.MaxMisses = DefaultMaxMisses
	}
	if cfg.Ticker == nil {
		cfg.Ticker = realTicker
	}
	return &Poller{store: store, player: player, code: code, cfg: cfg}
}

// SetMuted keeps polling but skips playback.
func (p *Poller) SetMuted(on bool) {
	p.mu.Lock()
	p.muted = on
	p.mu.Unlock()
}

// Latest resolves the newest chunk of the channel and its public URL.
func (p *Poller) Latest(ctx context.Context) (core.ObjectInfo, string, error) {
	obj, err := p.store.Latest(ctx, p.code.StoragePrefix())
	p.cfg.Metrics.RecordPoll(err)
	if err != nil {
		if errors.Is(err, domain.ErrStreamNotFound) {
			return core.ObjectInfo{}, "", domain.E(domain.KindNotFound, "latest chunk", err)
		}
		return core.ObjectInfo{}, "", domain.E(domain.KindStorage, "latest chunk", err)
	}
	url, err := p.store.PublicURL(ctx, obj.Key)
	if err != nil {
		return core.ObjectInfo{}, "", domain.E(domain.KindStorage, "chunk url", err)
	}
	return obj, url, nil
}

// Poll plays the newest chunk if it was not played yet.
func (p *Poller) Poll(ctx context.Context) (played bool, err error) {
	obj, url, err := p.Latest(ctx)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	fresh := obj.Key != p.lastKey
	muted := p.muted
	p.mu.Unlock()
	if !fresh {
		return false, nil
	}
	if !muted {
		if err := p.player.Play(ctx, url); err != nil {
			return false, domain.E(domain.KindStorage, "play chunk", err)
		}
	}
	p.mu.Lock()
	p.lastKey = obj.Key
	p.mu.Unlock()
	log.Debug().Str("module", "fallback.poller").Str("key", obj.Key).Bool("muted", muted).Msg("chunk played")
	return !muted, nil
}

// Run polls until ctx ends. A failing first poll is returned at once; later
// it takes MaxMisses consecutive failures. The last failure is returned as
// stream not found.
func (p *Poller) Run(ctx context.Context) error {
	if _, err := p.Poll(ctx); err != nil {
		return notFound(err)
	}
	return p.Loop(ctx)
}

// Loop is Run without the initial poll.
func (p *Poller) Loop(ctx context.Context) error {
	ticks, stop := p.cfg.Ticker(p.cfg.Interval)
	defer stop()
	misses := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
		}
		if _, err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			misses++
			log.Warn().Err(err).Str("module", "fallback.poller").Str("code", string(p.code)).Int("misses", misses).Msg("poll failed")
			if misses >= p.cfg.MaxMisses {
				return notFound(err)
			}
			continue
		}
		misses = 0
	}
}

func notFound(err error) error {
	if errors.Is(err, domain.ErrStreamNotFound) {
		return err
	}
	return domain.E(domain.KindNotFound, "poll", errors.Join(domain.ErrStreamNotFound, err))
}
