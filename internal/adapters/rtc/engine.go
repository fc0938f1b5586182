package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const (
	DefaultLevelEvery = 200 * time.Millisecond
	handshakeTimeout  = 10 * time.Second
	pcmuRate          = 8000
)

type EngineConfig struct {
	// SignalURL is the server's websocket endpoint, ws://host/api/ws/signal.
	SignalURL string
	WebRTC    webrtc.Configuration
	// Source is read as 8 kHz 16-bit mono PCM while broadcasting.
	Source io.Reader
	// Sink receives decoded PCM while listening.
	Sink       io.Writer
	LevelEvery time.Duration
	Dialer     *websocket.Dialer
}

// Engine is the device side of the WebRTC transport: websocket signaling to
// the SFU plus one pion peer connection carrying a PCMU track.
type Engine struct {
	cfg EngineConfig

	mu      sync.Mutex
	h       core.EngineHandler
	appID   string
	audio   bool
	role    domain.Role
	joined  bool
	ws      *websocket.Conn
	pc      *webrtc.PeerConnection
	pending []webrtc.ICECandidateInit
	cancel  context.CancelFunc
	wg      conc.WaitGroup

	wmu sync.Mutex // websocket writes

	mutedLocal  atomic.Bool
	mutedRemote atomic.Bool
	level       atomic.Uint64 // float64 bits
	sinkMu      sync.Mutex

	pumpOnce sync.Once
	frames   chan []int16
}

var _ core.Engine = (*Engine)(nil)

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.LevelEvery <= 0 {
		cfg.LevelEvery = DefaultLevelEvery
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Initialize(appID string) error {
	if appID == "" {
		return domain.E(domain.KindConfiguration, "initialize engine", domain.ErrNotConfigured)
	}
	e.mu.Lock()
	e.appID = appID
	e.mu.Unlock()
	return nil
}

func (e *Engine) EnableAudio() error {
	e.mu.Lock()
	e.audio = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) SetRole(role domain.Role) error {
	if !role.Valid() {
		return domain.E(domain.KindValidation, "set role", domain.ErrInvalidRole)
	}
	e.mu.Lock()
	e.role = role
	e.mu.Unlock()
	return nil
}

func (e *Engine) SetHandler(h core.EngineHandler) {
	e.mu.Lock()
	e.h = h
	e.mu.Unlock()
}

func (e *Engine) handler() core.EngineHandler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.h
}

// Join dials the signaling server, waits for the join verdict and starts media.
func (e *Engine) Join(ctx context.Context, token, channel string, uid uint32) error {
	const op = "join"
	e.mu.Lock()
	if !e.audio || e.appID == "" {
		e.mu.Unlock()
		return domain.E(domain.KindTransport, op, domain.ErrTransportDown)
	}
	if e.joined {
		e.mu.Unlock()
		return domain.E(domain.KindInvalidState, op, domain.ErrInvalidState)
	}
	role := e.role
	e.mu.Unlock()

	ws, _, err := e.cfg.Dialer.DialContext(ctx, e.cfg.SignalURL, nil)
	if err != nil {
		return domain.E(domain.KindTransport, op, fmt.Errorf("dial signal: %w", err))
	}
	e.mu.Lock()
	e.ws = ws
	e.mu.Unlock()

	fail := func(err error) error {
		_ = ws.Close()
		e.mu.Lock()
		e.ws = nil
		e.mu.Unlock()
		return err
	}
	assigned, err := e.handshake(ctx, token, channel, uid)
	if err != nil {
		return fail(err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pc, err := e.newPeer(runCtx, role)
	if err != nil {
		cancel()
		return fail(domain.E(domain.KindTransport, op, err))
	}

	e.mu.Lock()
	e.pc = pc
	e.cancel = cancel
	e.joined = true
	e.mu.Unlock()

	e.wg.Go(func() { e.readLoop(runCtx) })
	e.wg.Go(func() { e.levelLoop(runCtx, role) })
	if role == domain.RoleBroadcaster {
		e.wg.Go(func() { e.captureLoop(runCtx, pc) })
	}

	if err := e.offer(pc); err != nil {
		log.Warn().Err(err).Str("module", "rtc.engine").Msg("initial offer")
	}

	log.Info().Str("module", "rtc.engine").Str("channel", channel).Uint32("uid", assigned).Str("role", role.String()).Msg("joined")
	if h := e.handler(); h.OnJoined != nil {
		h.OnJoined(channel, assigned)
	}
	return nil
}

// Leave is idempotent.
func (e *Engine) Leave(context.Context) error {
	e.mu.Lock()
	if !e.joined {
		e.mu.Unlock()
		return nil
	}
	e.joined = false
	ws, pc, cancel := e.ws, e.pc, e.cancel
	e.ws, e.pc, e.cancel, e.pending = nil, nil, nil, nil
	e.mu.Unlock()

	_ = e.writeTo(ws, map[string]string{"type": "leave"})
	cancel()
	var errs []error
	if err := pc.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := ws.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		errs = append(errs, err)
	}
	e.wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return domain.E(domain.KindTransport, "leave", err)
	}
	return nil
}

// MuteLocal and MuteRemote change the local flag only once the server has
// been told, so a failed write leaves the engine as it was.
func (e *Engine) MuteLocal(muted bool) error {
	if err := e.sendMute(domain.RoleBroadcaster, muted); err != nil {
		return err
	}
	e.mutedLocal.Store(muted)
	return nil
}

func (e *Engine) MuteRemote(muted bool) error {
	if err := e.sendMute(domain.RoleAudience, muted); err != nil {
		return err
	}
	e.mutedRemote.Store(muted)
	return nil
}

func (e *Engine) sendMute(role domain.Role, muted bool) error {
	e.mu.Lock()
	ws, joined, current := e.ws, e.joined, e.role
	e.mu.Unlock()
	if !joined || current != role {
		return nil
	}
	if err := e.writeTo(ws, map[string]any{"type": "mute", "on": muted}); err != nil {
		return domain.E(domain.KindTransport, "mute", err)
	}
	return nil
}

func (e *Engine) setLevel(v float64) { e.level.Store(math.Float64bits(v)) }

func (e *Engine) currentLevel() float64 { return math.Float64frombits(e.level.Load()) }
