// Package playback plays fallback chunks fetched over HTTP as raw PCM.
package playback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/dkeye/Babyfoon/internal/adapters/audio"
	"github.com/dkeye/Babyfoon/internal/app/level"
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxChunkBytes = 16 << 20

// HTTPPlayer downloads a WAV chunk and writes its samples to out.
type HTTPPlayer struct {
	client *http.Client
	out    io.Writer
	// OnLevel, when set, receives the chunk's RMS level in dBFS.
	OnLevel func(dbfs float64)

	mu     sync.Mutex
	cancel context.CancelFunc
}

var _ core.Player = (*HTTPPlayer)(nil)

func NewHTTPPlayer(client *http.Client, out io.Writer) *HTTPPlayer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPlayer{client: client, out: out}
}

// Play replaces any chunk still playing.
func (p *HTTPPlayer) Play(ctx context.Context, url string) error {
	const op = "play chunk"
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.E(domain.KindValidation, op, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return domain.E(domain.KindStorage, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.E(domain.KindStorage, op, fmt.Errorf("GET %s: %s", url, resp.Status))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxChunkBytes))
	if err != nil {
		return domain.E(domain.KindStorage, op, err)
	}
	samples, _, err := audio.DecodeWAV(data)
	if err != nil {
		return domain.E(domain.KindValidation, op, err)
	}
	if p.OnLevel != nil {
		p.OnLevel(level.PCMLevel(samples))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.out.Write(audio.SamplesToBytes(samples)); err != nil {
		return domain.E(domain.KindTransport, op, err)
	}
	log.Debug().Str("module", "playback").Int("samples", len(samples)).Msg("chunk played")
	return nil
}

func (p *HTTPPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return nil
}
