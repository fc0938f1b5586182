package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Babyfoon/internal/app"
	"github.com/dkeye/Babyfoon/internal/app/level"
	"github.com/dkeye/Babyfoon/internal/app/token"
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/core/mocks"
	"github.com/dkeye/Babyfoon/internal/domain"
	"go.uber.org/mock/gomock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type failingIssuer struct{ err error }

func (f failingIssuer) Issue(context.Context, string, uint32, domain.Role) (domain.JoinCredential, error) {
	return domain.JoinCredential{}, f.err
}

type staticIssuer struct{ cred domain.JoinCredential }

func (s staticIssuer) Issue(_ context.Context, channel string, uid uint32, role domain.Role) (domain.JoinCredential, error) {
	c := s.cred
	c.ChannelName, c.UID, c.Role = channel, uid, role
	return c, nil
}

func expectJoin(eng *mocks.MockEngine, role domain.Role, code string) {
	eng.EXPECT().SetHandler(gomock.Any())
	eng.EXPECT().Initialize("app-id").Return(nil)
	eng.EXPECT().EnableAudio().Return(nil)
	eng.EXPECT().SetRole(role).Return(nil)
	eng.EXPECT().Join(gomock.Any(), gomock.Any(), code, uint32(0)).Return(nil)
}

func TestStopFromIdleIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := New(mocks.NewMockEngine(ctrl), failingIssuer{}, app.NewDirectory())

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() = %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %v", s.State())
	}
}

func TestMuteFromIdleIsInvalidState(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := New(mocks.NewMockEngine(ctrl), failingIssuer{}, app.NewDirectory())

	err := s.Mute(context.Background(), true)
	if !errors.Is(err, domain.ErrInvalidState) || domain.KindOf(err) != domain.KindInvalidState {
		t.Fatalf("Mute() = %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %v", s.State())
	}
}

func TestTokenFailureLandsInError(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	dir := app.NewDirectory()
	cause := errors.New("signer offline")
	s := New(mocks.NewMockEngine(ctrl), failingIssuer{err: cause}, dir)

	err := s.Start(ctx, domain.RoleBroadcaster, "4821")
	if !errors.Is(err, cause) || domain.KindOf(err) != domain.KindUpstream {
		t.Fatalf("Start() = %v", err)
	}
	if s.State() != StateError || !errors.Is(s.Err(), cause) {
		t.Fatalf("state = %v, err = %v", s.State(), s.Err())
	}
	if v, _ := dir.Validate(ctx, "4821"); v != core.NotFound {
		t.Fatalf("claim not released: %v", v)
	}
	if _, ok := s.Credential(); ok {
		t.Fatal("credential kept after failure")
	}

	cfgErr := domain.E(domain.KindConfiguration, "issue token", domain.ErrNotConfigured)
	s = New(mocks.NewMockEngine(ctrl), failingIssuer{err: cfgErr}, dir)
	if err := s.Start(ctx, domain.RoleBroadcaster, "4821"); domain.KindOf(err) != domain.KindConfiguration {
		t.Fatalf("configuration kind lost: %v", err)
	}
}

func TestStartRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	s := New(mocks.NewMockEngine(ctrl), failingIssuer{}, app.NewDirectory())

	if err := s.Start(ctx, domain.RoleAudience, "48a1"); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("bad code: %v", err)
	}
	if s.State() != StateError {
		t.Fatalf("state = %v", s.State())
	}
	err := s.Start(ctx, domain.RoleAudience, "4821")
	if !errors.Is(err, domain.ErrChannelNotFound) || domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("unknown channel: %v", err)
	}
	if err := s.Start(ctx, domain.Role(9), "4821"); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("bad role: %v", err)
	}
}

func TestJoinFailureCleansUpAndCanRestart(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clock := newFakeClock()
	dir := app.NewDirectory()
	eng := mocks.NewMockEngine(ctrl)
	tokens := token.NewService("app-id", "secret", token.WithClock(clock.Now))
	s := New(eng, tokens, dir, WithClock(clock.Now))

	joinErr := errors.New("ice failed")
	gomock.InOrder(
		eng.EXPECT().SetHandler(gomock.Any()),
		eng.EXPECT().Initialize("app-id").Return(nil),
		eng.EXPECT().EnableAudio().Return(nil),
		eng.EXPECT().SetRole(domain.RoleBroadcaster).Return(nil),
		eng.EXPECT().Join(gomock.Any(), gomock.Any(), "4821", uint32(0)).Return(joinErr),
	)
	err := s.Start(ctx, domain.RoleBroadcaster, "4821")
	if !errors.Is(err, joinErr) || domain.KindOf(err) != domain.KindTransport {
		t.Fatalf("Start() = %v", err)
	}
	if s.State() != StateError {
		t.Fatalf("state = %v", s.State())
	}
	if _, ok := dir.Lookup("4821"); ok {
		t.Fatal("record still active")
	}

	expectJoin(eng, domain.RoleBroadcaster, "4821")
	if err := s.Start(ctx, domain.RoleBroadcaster, "4821"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if s.State() != StateJoined {
		t.Fatalf("state = %v", s.State())
	}
	if err := s.Start(ctx, domain.RoleBroadcaster, "4821"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("start while joined: %v", err)
	}
}

func TestExpiredCredentialIsNeverUsed(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clock := newFakeClock()
	eng := mocks.NewMockEngine(ctrl)
	issuer := staticIssuer{cred: domain.JoinCredential{Token: "t", AppID: "app-id", ExpiresAt: clock.Now()}}
	s := New(eng, issuer, app.NewDirectory(), WithClock(clock.Now))

	eng.EXPECT().SetHandler(gomock.Any())
	eng.EXPECT().Initialize("app-id").Return(nil)
	eng.EXPECT().EnableAudio().Return(nil)
	eng.EXPECT().SetRole(domain.RoleBroadcaster).Return(nil)

	err := s.Start(ctx, domain.RoleBroadcaster, "1234")
	if !errors.Is(err, domain.ErrCredentialExpired) {
		t.Fatalf("Start() = %v", err)
	}
	if s.State() != StateError {
		t.Fatalf("state = %v", s.State())
	}
}

func TestStopSurfacesLeaveErrorButCleansUp(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clock := newFakeClock()
	dir := app.NewDirectory()
	eng := mocks.NewMockEngine(ctrl)
	s := New(eng, token.NewService("app-id", "secret", token.WithClock(clock.Now)), dir, WithClock(clock.Now))

	expectJoin(eng, domain.RoleBroadcaster, "2222")
	if err := s.Start(ctx, domain.RoleBroadcaster, "2222"); err != nil {
		t.Fatal(err)
	}
	leaveErr := errors.New("socket closed")
	eng.EXPECT().Leave(gomock.Any()).Return(leaveErr)

	if err := s.Stop(ctx); !errors.Is(err, leaveErr) {
		t.Fatalf("Stop() = %v", err)
	}
	if s.State() != StateLeft {
		t.Fatalf("state = %v", s.State())
	}
	if _, ok := s.Credential(); ok {
		t.Fatal("credential kept")
	}
	if v, _ := dir.Validate(ctx, "2222"); v != core.NotFound {
		t.Fatalf("record kept: %v", v)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop() = %v", err)
	}
}

func TestMuteTransportFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clock := newFakeClock()
	dir := app.NewDirectory()
	tokens := token.NewService("app-id", "secret", token.WithClock(clock.Now))
	if _, err := dir.Claim(ctx, "3333", clock.Now()); err != nil {
		t.Fatal(err)
	}
	eng := mocks.NewMockEngine(ctrl)
	s := New(eng, tokens, dir, WithClock(clock.Now))

	expectJoin(eng, domain.RoleAudience, "3333")
	if err := s.Start(ctx, domain.RoleAudience, " 3333 "); err != nil {
		t.Fatal(err)
	}
	eng.EXPECT().MuteRemote(true).Return(errors.New("no track"))
	if err := s.Mute(ctx, true); domain.KindOf(err) != domain.KindTransport {
		t.Fatalf("Mute() = %v", err)
	}
	if s.State() != StateJoined {
		t.Fatalf("state = %v", s.State())
	}
	eng.EXPECT().MuteRemote(true).Return(nil)
	eng.EXPECT().MuteRemote(false).Return(nil)
	if err := s.Mute(ctx, true); err != nil || s.State() != StateMuted {
		t.Fatalf("Mute() = %v, state %v", err, s.State())
	}
	if err := s.Unmute(ctx); err != nil || s.State() != StateJoined {
		t.Fatalf("Unmute() = %v, state %v", err, s.State())
	}
}

func TestLoudNoiseEventsAreDebounced(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clock := newFakeClock()
	eng := mocks.NewMockEngine(ctrl)

	var mu sync.Mutex
	var alerts []time.Time
	levels := 0
	onEvent := func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Kind {
		case EventLoudNoise:
			alerts = append(alerts, ev.At)
		case EventLevel:
			levels++
		}
	}
	s := New(eng, token.NewService("app-id", "secret", token.WithClock(clock.Now)), app.NewDirectory(),
		WithClock(clock.Now), WithEventHandler(onEvent), WithDetector(level.NewDetector(0.65, 10*time.Second)))

	var h core.EngineHandler
	eng.EXPECT().SetHandler(gomock.Any()).Do(func(got core.EngineHandler) { h = got })
	eng.EXPECT().Initialize("app-id").Return(nil)
	eng.EXPECT().EnableAudio().Return(nil)
	eng.EXPECT().SetRole(domain.RoleBroadcaster).Return(nil)
	eng.EXPECT().Join(gomock.Any(), gomock.Any(), "5555", uint32(0)).Return(nil)
	if err := s.Start(ctx, domain.RoleBroadcaster, "5555"); err != nil {
		t.Fatal(err)
	}

	start := clock.Now()
	for i := 0; i < 30; i++ {
		h.OnVolumeIndication(0.9)
		clock.Advance(time.Second)
	}

	mu.Lock()
	defer mu.Unlock()
	if levels != 30 {
		t.Fatalf("levels = %d", levels)
	}
	if len(alerts) != 3 {
		t.Fatalf("alerts = %d, want 3", len(alerts))
	}
	for i, at := range alerts {
		if want := start.Add(time.Duration(i) * 10 * time.Second); !at.Equal(want) {
			t.Errorf("alert %d at %v, want %v", i, at, want)
		}
	}
}

func TestEndToEndMonitorAndListener(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clock := newFakeClock()
	dir := app.NewDirectory()
	tokens := token.NewService("app-id", "secret", token.WithClock(clock.Now))

	monitorEng := mocks.NewMockEngine(ctrl)
	listenerEng := mocks.NewMockEngine(ctrl)
	monitor := New(monitorEng, tokens, dir, WithClock(clock.Now))
	listener := New(listenerEng, tokens, dir, WithClock(clock.Now))

	expectJoin(monitorEng, domain.RoleBroadcaster, "4821")
	if err := monitor.Start(ctx, domain.RoleBroadcaster, "4821"); err != nil {
		t.Fatal(err)
	}
	if monitor.State() != StateJoined {
		t.Fatalf("monitor state = %v", monitor.State())
	}
	cred, ok := monitor.Credential()
	if !ok || !cred.ExpiresAt.After(clock.Now()) {
		t.Fatalf("credential = %+v, %v", cred, ok)
	}

	if v, _ := dir.Validate(ctx, "4821"); v != core.Valid {
		t.Fatalf("Validate = %v", v)
	}

	expectJoin(listenerEng, domain.RoleAudience, "4821")
	if err := listener.Start(ctx, domain.RoleAudience, "4821"); err != nil {
		t.Fatal(err)
	}
	if listener.State() != StateJoined {
		t.Fatalf("listener state = %v", listener.State())
	}

	monitorEng.EXPECT().MuteLocal(true).Return(nil)
	if err := monitor.Mute(ctx, true); err != nil {
		t.Fatal(err)
	}
	if monitor.State() != StateMuted {
		t.Fatalf("monitor state = %v", monitor.State())
	}

	monitorEng.EXPECT().Leave(gomock.Any()).Return(nil)
	if err := monitor.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if monitor.State() != StateLeft {
		t.Fatalf("monitor state = %v", monitor.State())
	}
	if v, _ := dir.Validate(ctx, "4821"); v != core.NotFound {
		t.Fatalf("Validate after stop = %v", v)
	}
}

type takenDirectory struct {
	*app.Directory
	codes []domain.ChannelCode
}

func (d *takenDirectory) AllocateCode(context.Context) (domain.ChannelCode, error) {
	c := d.codes[0]
	d.codes = d.codes[1:]
	return c, nil
}

func TestStartBroadcastRetriesTakenCode(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clock := newFakeClock()
	dir := &takenDirectory{Directory: app.NewDirectory(), codes: []domain.ChannelCode{"1111", "2468"}}
	if _, err := dir.Claim(ctx, "1111", clock.Now()); err != nil {
		t.Fatal(err)
	}
	eng := mocks.NewMockEngine(ctrl)
	s := New(eng, token.NewService("app-id", "secret", token.WithClock(clock.Now)), dir, WithClock(clock.Now))

	expectJoin(eng, domain.RoleBroadcaster, "2468")
	code, err := StartBroadcast(ctx, s, dir, 3)
	if err != nil || code != "2468" {
		t.Fatalf("StartBroadcast = %q, %v", code, err)
	}
	if s.Code() != "2468" || s.Role() != domain.RoleBroadcaster {
		t.Fatalf("session on %q as %v", s.Code(), s.Role())
	}
}

func TestPeerEventsStopAfterStop(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	eng := mocks.NewMockEngine(ctrl)

	var mu sync.Mutex
	var peers []Event
	onEvent := func(ev Event) {
		if ev.Kind != EventPeerJoined && ev.Kind != EventPeerLeft {
			return
		}
		mu.Lock()
		peers = append(peers, ev)
		mu.Unlock()
	}
	dir := app.NewDirectory()
	if _, err := dir.Claim(ctx, "4821", time.Now()); err != nil {
		t.Fatal(err)
	}
	s := New(eng, token.NewService("app-id", "secret"), dir, WithEventHandler(onEvent))

	var h core.EngineHandler
	eng.EXPECT().SetHandler(gomock.Any()).Do(func(got core.EngineHandler) { h = got })
	eng.EXPECT().Initialize("app-id").Return(nil)
	eng.EXPECT().EnableAudio().Return(nil)
	eng.EXPECT().SetRole(domain.RoleAudience).Return(nil)
	eng.EXPECT().Join(gomock.Any(), gomock.Any(), "4821", uint32(0)).DoAndReturn(
		func(context.Context, string, string, uint32) error {
			h.OnPeerJoined(7)
			return nil
		})
	eng.EXPECT().Leave(gomock.Any()).Return(nil)

	if err := s.Start(ctx, domain.RoleAudience, "4821"); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	h.OnPeerJoined(8)
	h.OnPeerLeft(7)

	mu.Lock()
	defer mu.Unlock()
	if len(peers) != 1 || peers[0].Kind != EventPeerJoined || peers[0].UID != 7 {
		t.Fatalf("peer events = %+v", peers)
	}
}
