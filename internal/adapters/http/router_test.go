package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Babyfoon/internal/adapters/storage"
	"github.com/dkeye/Babyfoon/internal/app"
	"github.com/dkeye/Babyfoon/internal/app/token"
	"github.com/dkeye/Babyfoon/internal/config"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/dkeye/Babyfoon/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type evictions struct{ codes []domain.ChannelCode }

func (e *evictions) EvictChannel(code domain.ChannelCode) { e.codes = append(e.codes, code) }

type fixture struct {
	router  *gin.Engine
	dir     *app.Directory
	evicted *evictions
}

func newFixture(t *testing.T, tokens *token.Service) *fixture {
	t.Helper()
	root := t.TempDir()
	st, err := storage.NewLocal(root, "http://example.test/media")
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	dir := app.NewDirectory()
	ev := &evictions{}
	api := &API{
		Tokens:    tokens,
		Directory: dir,
		Store:     st,
		Evictor:   ev,
		Metrics:   metrics.New(reg),
		Now:       func() time.Time { return time.Unix(1_700_000_000, 0).UTC() },
	}
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	r := SetupRouter(context.Background(), cfg, Deps{API: api, Gatherer: reg, MediaRoot: root})
	return &fixture{router: r, dir: dir, evicted: ev}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil && header["Content-Type"] == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestIssueToken(t *testing.T) {
	f := newFixture(t, token.NewService("app", "cert"))

	w := f.do(t, http.MethodPost, "/api/token", []byte(`{"channelName":"4821","uid":0,"role":2}`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body)
	}
	got := decode(t, w)
	if got["appId"] != "app" || got["channelName"] != "4821" || !strings.HasPrefix(got["token"].(string), "007app") {
		t.Fatalf("body = %v", got)
	}
	if got["expiration"].(float64) <= float64(time.Now().Unix()) {
		t.Fatalf("expiration = %v", got["expiration"])
	}

	w = f.do(t, http.MethodPost, "/api/token", []byte(`{"channelName":"  ","role":1}`), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty channel status = %d", w.Code)
	}
	w = f.do(t, http.MethodPost, "/api/token", []byte(`{"channelName":"4821","role":7}`), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad role status = %d", w.Code)
	}
}

func TestIssueTokenNotConfigured(t *testing.T) {
	f := newFixture(t, token.NewService("", ""))
	w := f.do(t, http.MethodPost, "/api/token", []byte(`{"channelName":"4821"}`), nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode(t, w); got["message"] != domain.UserMessage(domain.ErrNotConfigured) {
		t.Fatalf("body = %v", got)
	}
}

func TestChannelLifecycle(t *testing.T) {
	f := newFixture(t, token.NewService("app", "cert"))

	w := f.do(t, http.MethodPost, "/api/channels", []byte(`{"code":"4821"}`), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("claim status = %d %s", w.Code, w.Body)
	}
	created := decode(t, w)
	key, _ := created["releaseKey"].(string)
	if created["code"] != "4821" || created["link"] != "babyfoon://watch/4821" || key == "" {
		t.Fatalf("created = %v", created)
	}

	if w := f.do(t, http.MethodPost, "/api/channels", []byte(`{"code":"4821"}`), nil); w.Code != http.StatusConflict {
		t.Fatalf("second claim status = %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/channels/4821", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if _, leaked := decode(t, w)["releaseKey"]; leaked {
		t.Fatal("release key leaked to readers")
	}
	if w := f.do(t, http.MethodGet, "/api/channels/48a1", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid format status = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/channels/1111", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown status = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/watch/4821", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("watch status = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/watch/48", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad link status = %d", w.Code)
	}

	if w := f.do(t, http.MethodDelete, "/api/channels/4821", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("delete without key = %d", w.Code)
	}
	auth := map[string]string{"Authorization": "Bearer " + key}
	if w := f.do(t, http.MethodDelete, "/api/channels/4821", nil, auth); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d %s", w.Code, w.Body)
	}
	if len(f.evicted.codes) != 1 || f.evicted.codes[0] != "4821" {
		t.Fatalf("evicted = %v", f.evicted.codes)
	}
	if w := f.do(t, http.MethodGet, "/watch/4821", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("watch after release = %d", w.Code)
	}
}

func TestAllocateChannel(t *testing.T) {
	f := newFixture(t, token.NewService("app", "cert"))
	w := f.do(t, http.MethodPost, "/api/channels", nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d %s", w.Code, w.Body)
	}
	code, _ := decode(t, w)["code"].(string)
	if !domain.IsCode(code) || code < "1000" {
		t.Fatalf("allocated %q", code)
	}
}

func TestChunks(t *testing.T) {
	f := newFixture(t, token.NewService("app", "cert"))
	rec, err := f.dir.Claim(context.Background(), "4821", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if w := f.do(t, http.MethodGet, "/api/channels/4821/chunks/latest", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("latest on empty = %d", w.Code)
	}

	wav := map[string]string{"Content-Type": domain.MimeWAV, "Authorization": "Bearer " + rec.ReleaseKey}
	for _, seq := range []string{"1700000000000", "1700000003000"} {
		w := f.do(t, http.MethodPut, "/api/channels/4821/chunks/"+seq, []byte("RIFF-data"), wav)
		if w.Code != http.StatusCreated {
			t.Fatalf("put %s = %d %s", seq, w.Code, w.Body)
		}
	}
	noKey := map[string]string{"Content-Type": domain.MimeWAV}
	if w := f.do(t, http.MethodPut, "/api/channels/4821/chunks/1", []byte("x"), noKey); w.Code != http.StatusUnauthorized {
		t.Fatalf("put without key = %d", w.Code)
	}
	if w := f.do(t, http.MethodPut, "/api/channels/4821/chunks/abc", []byte("x"), wav); w.Code != http.StatusBadRequest {
		t.Fatalf("put bad seq = %d", w.Code)
	}

	w := f.do(t, http.MethodGet, "/api/channels/4821/chunks/latest", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("latest = %d", w.Code)
	}
	got := decode(t, w)
	if got["key"] != "4821/1700000003000.wav" || got["url"] != "http://example.test/media/4821/1700000003000.wav" {
		t.Fatalf("latest = %v", got)
	}

	w = f.do(t, http.MethodGet, "/media/4821/1700000003000.wav", nil, nil)
	if w.Code != http.StatusOK || w.Body.String() != "RIFF-data" {
		t.Fatalf("media = %d %q", w.Code, w.Body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, token.NewService("app", "cert"))
	f.do(t, http.MethodPost, "/api/token", []byte(`{"channelName":"4821","role":1}`), nil)
	w := f.do(t, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "babyfoon_tokens_issued_total") {
		t.Fatalf("metrics = %d\n%s", w.Code, w.Body)
	}
}
