package playback

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/Babyfoon/internal/adapters/audio"
	"github.com/dkeye/Babyfoon/internal/domain"
)

func TestHTTPPlayerPlay(t *testing.T) {
	wav, err := audio.EncodeWAV([]int16{1, -2, 3, 16384}, 8000)
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.wav", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write(wav) })
	mux.HandleFunc("/junk.wav", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("not audio")) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var out bytes.Buffer
	var dbfs float64
	p := NewHTTPPlayer(srv.Client(), &out)
	p.OnLevel = func(v float64) { dbfs = v }

	if err := p.Play(context.Background(), srv.URL+"/ok.wav"); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), audio.SamplesToBytes([]int16{1, -2, 3, 16384})) {
		t.Fatalf("out = %v", out.Bytes())
	}
	if dbfs >= 0 || dbfs < -20 {
		t.Fatalf("level = %v", dbfs)
	}

	if err := p.Play(context.Background(), srv.URL+"/missing.wav"); domain.KindOf(err) != domain.KindStorage {
		t.Fatalf("404 err = %v", err)
	}
	if err := p.Play(context.Background(), srv.URL+"/junk.wav"); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("junk err = %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
}
