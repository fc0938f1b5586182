// Package session drives one device's participation in a channel.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Babyfoon/internal/app/level"
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/dkeye/Babyfoon/internal/metrics"
	"github.com/rs/zerolog/log"
)

type State int

const (
	StateIdle State = iota
	StateInitializing
	StateJoined
	StateMuted
	StateLeft
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateJoined:
		return "joined"
	case StateMuted:
		return "muted"
	case StateLeft:
		return "left"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type EventKind int

const (
	EventState EventKind = iota
	EventLevel
	EventLoudNoise
	EventPeerJoined
	EventPeerLeft
	EventError
)

// Event is emitted to the session's handler. Handlers must not call back into the session.
type Event struct {
	Kind  EventKind
	State State
	Level float64
	UID   uint32
	Err   error
	At    time.Time
}

type Option func(*Session)

func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// WithUID sets the uid requested for credentials. Zero lets the transport assign one.
func WithUID(uid uint32) Option { return func(s *Session) { s.uid = uid } }

func WithDetector(d *level.Detector) Option { return func(s *Session) { s.detector = d } }

func WithEventHandler(fn func(Event)) Option { return func(s *Session) { s.onEvent = fn } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Session) { s.metrics = m } }

// Session owns one transport handle for the lifetime of a broadcast or listen attempt.
// Every public call holds mu for the whole transition.
type Session struct {
	engine core.Engine
	tokens core.TokenIssuer
	dir    core.Directory

	now      func() time.Time
	uid      uint32
	detector *level.Detector
	onEvent  func(Event)
	metrics  *metrics.Metrics

	mu      sync.Mutex
	state   State
	role    domain.Role
	code    domain.ChannelCode
	cred    *domain.JoinCredential
	claimed bool
	joined  bool
	lastErr error

	live atomic.Bool
}

func New(engine core.Engine, tokens core.TokenIssuer, dir core.Directory, opts ...Option) *Session {
	s := &Session{
		engine: engine,
		tokens: tokens,
		dir:    dir,
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.detector == nil {
		s.detector = level.NewDetector(level.DefaultThreshold, level.DefaultCooldown)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Role() domain.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) Code() domain.ChannelCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Credential returns the credential held while joined.
func (s *Session) Credential() (domain.JoinCredential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return domain.JoinCredential{}, false
	}
	return *s.cred, true
}

// Err is the failure that moved the session to StateError.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start joins channel raw with role. Allowed from Idle, Left and Error.
func (s *Session) Start(ctx context.Context, role domain.Role, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle, StateLeft, StateError:
	default:
		return invalidState("start", s.state)
	}
	s.lastErr = nil
	s.setState(StateInitializing)

	if err := s.join(ctx, role, raw); err != nil {
		s.abort(ctx, err)
		return err
	}
	s.setState(StateJoined)
	log.Info().Str("module", "app.session").Str("code", string(s.code)).Str("role", role.String()).Msg("joined")
	return nil
}

func (s *Session) join(ctx context.Context, role domain.Role, raw string) error {
	if !role.Valid() {
		return domain.E(domain.KindValidation, "start", domain.ErrInvalidRole)
	}
	code, err := domain.ParseChannelCode(raw)
	if err != nil {
		return err
	}
	s.role = role
	s.code = code

	if role == domain.RoleAudience {
		v, err := s.dir.Validate(ctx, string(code))
		if err != nil {
			return upstream("validate", err)
		}
		switch v {
		case core.InvalidFormat:
			return domain.E(domain.KindValidation, "validate", domain.ErrInvalidCode)
		case core.NotFound:
			return domain.E(domain.KindNotFound, "validate", domain.ErrChannelNotFound)
		}
	} else {
		if _, err := s.dir.Claim(ctx, code, s.now()); err != nil {
			return upstream("claim", err)
		}
		s.claimed = true
	}

	cred, err := s.tokens.Issue(ctx, string(code), s.uid, role)
	if err != nil {
		return upstream("issue token", err)
	}
	s.cred = &cred

	s.detector.Reset()
	s.engine.SetHandler(s.handler(role))

	if err := s.engine.Initialize(cred.AppID); err != nil {
		return domain.E(domain.KindTransport, "initialize", err)
	}
	if err := s.engine.EnableAudio(); err != nil {
		return domain.E(domain.KindTransport, "enable audio", err)
	}
	if err := s.engine.SetRole(role); err != nil {
		return domain.E(domain.KindTransport, "set role", err)
	}
	if cred.Expired(s.now()) {
		return domain.E(domain.KindUpstream, "join", domain.ErrCredentialExpired)
	}
	// Engines may report peers before Join returns.
	s.live.Store(true)
	if err := s.engine.Join(ctx, cred.Token, cred.ChannelName, cred.UID); err != nil {
		return domain.E(domain.KindTransport, "join", err)
	}
	s.joined = true
	return nil
}

// abort undoes whatever join managed before failing.
func (s *Session) abort(ctx context.Context, cause error) {
	s.teardown(ctx)
	s.lastErr = cause
	s.setState(StateError)
	log.Error().Err(cause).Str("module", "app.session").Str("code", string(s.code)).Msg("start failed")
}

func (s *Session) Mute(_ context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateJoined && s.state != StateMuted {
		return invalidState("mute", s.state)
	}
	var err error
	if s.role == domain.RoleBroadcaster {
		err = s.engine.MuteLocal(on)
	} else {
		err = s.engine.MuteRemote(on)
	}
	if err != nil {
		return domain.E(domain.KindTransport, "mute", err)
	}
	if on {
		s.setState(StateMuted)
	} else {
		s.setState(StateJoined)
	}
	return nil
}

func (s *Session) Unmute(ctx context.Context) error { return s.Mute(ctx, false) }

// Stop leaves the channel. Leave and release failures are returned but the
// session always ends in StateLeft.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle || s.state == StateLeft {
		return nil
	}
	err := s.teardown(ctx)
	s.setState(StateLeft)
	log.Info().Str("module", "app.session").Str("code", string(s.code)).Msg("left")
	return err
}

func (s *Session) teardown(ctx context.Context) error {
	s.live.Store(false)
	var errs []error
	if s.joined {
		if err := s.engine.Leave(ctx); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Str("code", string(s.code)).Msg("leave failed")
			errs = append(errs, domain.E(domain.KindTransport, "leave", err))
		}
		s.joined = false
	}
	if s.claimed {
		if err := s.dir.Release(ctx, s.code); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Str("code", string(s.code)).Msg("release failed")
			errs = append(errs, upstream("release", err))
		}
		s.claimed = false
	}
	s.cred = nil
	return errors.Join(errs...)
}

func (s *Session) handler(role domain.Role) core.EngineHandler {
	return core.EngineHandler{
		OnVolumeIndication: func(lvl float64) {
			if !s.live.Load() {
				return
			}
			now := s.now()
			s.emit(Event{Kind: EventLevel, Level: lvl, At: now})
			if role == domain.RoleBroadcaster && s.detector.Observe(lvl, now) {
				log.Info().Str("module", "app.session").Float64("level", lvl).Msg("loud noise")
				s.metrics.RecordLoudAlert()
				s.emit(Event{Kind: EventLoudNoise, Level: lvl, At: now})
			}
		},
		OnPeerJoined: func(uid uint32) {
			if !s.live.Load() {
				return
			}
			s.emit(Event{Kind: EventPeerJoined, UID: uid, At: s.now()})
		},
		OnPeerLeft: func(uid uint32) {
			if !s.live.Load() {
				return
			}
			s.emit(Event{Kind: EventPeerLeft, UID: uid, At: s.now()})
		},
		OnError: func(err error) {
			if !s.live.Load() {
				return
			}
			log.Warn().Err(err).Str("module", "app.session").Msg("transport error")
			s.emit(Event{Kind: EventError, Err: err, At: s.now()})
		},
		OnJoined: func(channel string, uid uint32) {
			log.Debug().Str("module", "app.session").Str("channel", channel).Uint32("uid", uid).Msg("transport joined")
		},
	}
}

func (s *Session) setState(st State) {
	s.state = st
	s.emit(Event{Kind: EventState, State: st, At: s.now()})
}

func (s *Session) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

func invalidState(op string, st State) error {
	return domain.E(domain.KindInvalidState, op, fmt.Errorf("%w: %s", domain.ErrInvalidState, st))
}

// upstream keeps an existing kind and marks bare errors as upstream failures.
func upstream(op string, err error) error {
	if domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	return domain.E(domain.KindUpstream, op, err)
}

// StartBroadcast allocates a code and starts s as its broadcaster, drawing a
// new code when the allocated one was claimed in between.
func StartBroadcast(ctx context.Context, s *Session, dir core.Directory, attempts int) (domain.ChannelCode, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		var code domain.ChannelCode
		code, err = dir.AllocateCode(ctx)
		if err != nil {
			return "", err
		}
		err = s.Start(ctx, domain.RoleBroadcaster, string(code))
		if errors.Is(err, domain.ErrChannelTaken) {
			continue
		}
		return code, err
	}
	return "", err
}
