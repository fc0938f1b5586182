package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Babyfoon/internal/app"
	"github.com/dkeye/Babyfoon/internal/app/orch"
	"github.com/dkeye/Babyfoon/internal/app/sfu"
	"github.com/dkeye/Babyfoon/internal/app/token"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type harness struct {
	srv    *httptest.Server
	tokens *token.Service
	dir    *app.Directory
	orch   *orch.Orchestrator
}

func newHarness(t *testing.T, limiter *JoinLimiter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := token.NewService("app", "secret")
	dir := app.NewDirectory()
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.ListenerPolicy{},
		Relays:   sfu.NewRelayManager(),
		Tokens:   tokens,
		Channels: dir,
	}
	ctl := NewSignalWSController(o, limiter, nil, Options{PingPeriod: time.Minute})

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("client_token", "client-1")
		ctl.HandleSignal(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, tokens: tokens, dir: dir, orch: o}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (h *harness) token(t *testing.T, code string, role domain.Role) string {
	t.Helper()
	cred, err := h.tokens.Issue(context.Background(), code, 0, role)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return cred.Token
}

func roundTrip(t *testing.T, ws *websocket.Conn, req any) map[string]any {
	t.Helper()
	if err := ws.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}
	return next(t, ws)
}

func next(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return out
}

func TestPingWhoAmI(t *testing.T) {
	h := newHarness(t, nil)
	ws := h.dial(t)

	if got := roundTrip(t, ws, map[string]any{"type": "ping"}); got["type"] != "pong" {
		t.Fatalf("got %v, want pong", got)
	}
	got := roundTrip(t, ws, map[string]any{"type": "whoami"})
	if got["type"] != "whoami" || !strings.HasPrefix(got["sid"].(string), "client-1/") {
		t.Fatalf("whoami = %v", got)
	}
	if _, ok := got["channel"]; ok {
		t.Fatalf("unjoined member reports channel: %v", got)
	}
}

func TestJoinFlow(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.dir.Claim(context.Background(), "4821", time.Now()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	parent := h.dial(t)
	got := roundTrip(t, parent, map[string]any{
		"type": "join", "channel": "4821", "token": h.token(t, "4821", domain.RoleAudience),
	})
	if got["type"] != "joined" || got["role"] != "audience" || got["channel"] != "4821" {
		t.Fatalf("join = %v", got)
	}
	if got["uid"].(float64) == 0 {
		t.Fatal("joined member must get a non-zero uid")
	}

	baby := h.dial(t)
	got = roundTrip(t, baby, map[string]any{
		"type": "join", "channel": " 4821 ", "token": h.token(t, "4821", domain.RoleBroadcaster),
	})
	if got["type"] != "joined" || got["role"] != "broadcaster" {
		t.Fatalf("join = %v", got)
	}
	if ev := next(t, parent); ev["type"] != "peer_joined" || ev["role"] != "broadcaster" {
		t.Fatalf("parent saw %v, want peer_joined", ev)
	}

	if err := baby.WriteJSON(map[string]any{"type": "level", "level": 1.7}); err != nil {
		t.Fatal(err)
	}
	if ev := next(t, parent); ev["type"] != "level" || ev["level"].(float64) != 1 {
		t.Fatalf("parent saw %v, want clamped level", ev)
	}

	if got := roundTrip(t, baby, map[string]any{"type": "leave"}); got["type"] != "left" {
		t.Fatalf("leave = %v", got)
	}
	if ev := next(t, parent); ev["type"] != "peer_left" {
		t.Fatalf("parent saw %v, want peer_left", ev)
	}
}

func TestJoinErrors(t *testing.T) {
	h := newHarness(t, nil)
	ws := h.dial(t)

	got := roundTrip(t, ws, map[string]any{"type": "join", "channel": "12a4", "token": "x"})
	if got["type"] != "error" || got["error"] != "invalid_code" {
		t.Fatalf("bad code = %v", got)
	}
	got = roundTrip(t, ws, map[string]any{"type": "join", "channel": "1234", "token": "nope"})
	if got["error"] != "unauthorized" {
		t.Fatalf("bad token = %v", got)
	}
	got = roundTrip(t, ws, map[string]any{
		"type": "join", "channel": "1234", "token": h.token(t, "1234", domain.RoleAudience),
	})
	if got["error"] != "not_found" {
		t.Fatalf("unknown channel = %v", got)
	}
	got = roundTrip(t, ws, map[string]any{"type": "mute", "on": true})
	if got["error"] != "invalid_state" {
		t.Fatalf("mute before join = %v", got)
	}
}

func TestJoinRateLimited(t *testing.T) {
	h := newHarness(t, NewJoinLimiter(1, time.Minute))
	ws := h.dial(t)

	roundTrip(t, ws, map[string]any{"type": "join", "channel": "1234", "token": "x"})
	got := roundTrip(t, ws, map[string]any{"type": "join", "channel": "1234", "token": "x"})
	if got["error"] != "rate_limited" {
		t.Fatalf("second join = %v", got)
	}
}
