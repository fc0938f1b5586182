package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Babyfoon/internal/adapters/http"
	"github.com/dkeye/Babyfoon/internal/adapters/rtc"
	sig "github.com/dkeye/Babyfoon/internal/adapters/signal"
	"github.com/dkeye/Babyfoon/internal/adapters/storage"
	"github.com/dkeye/Babyfoon/internal/app"
	"github.com/dkeye/Babyfoon/internal/app/orch"
	"github.com/dkeye/Babyfoon/internal/app/sfu"
	"github.com/dkeye/Babyfoon/internal/app/token"
	"github.com/dkeye/Babyfoon/internal/config"
	"github.com/dkeye/Babyfoon/internal/logging"
	"github.com/dkeye/Babyfoon/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		log.Fatal().Err(err).Msg("bad log level")
	}
	if cfg.Secret == "" {
		cfg.Secret = randomSecret()
		log.Warn().Str("module", "main").Msg("no cookie secret configured, using an ephemeral one")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("chunk storage")
	}
	mediaRoot := ""
	if local, ok := store.(*storage.Local); ok {
		mediaRoot = local.Root()
	}

	tokens := token.NewService(cfg.Token.AppID, cfg.Token.Certificate, token.WithTTL(cfg.Token.TTL))
	if cfg.Token.AppID == "" || cfg.Token.Certificate == "" {
		log.Warn().Str("module", "main").Msg("token credentials missing, joins will be refused")
	}
	dir := app.NewDirectory()

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.ListenerPolicy{},
		Relays:   sfu.NewRelayManager(),
		Tokens:   tokens,
		Channels: dir,
		Metrics:  m,
	}
	limiter := sig.NewJoinLimiter(cfg.Signal.JoinLimit, cfg.Signal.JoinWindow)
	ws := sig.NewSignalWSController(o, limiter, m, sig.Options{
		ReadLimit:  cfg.Signal.ReadLimit,
		PingPeriod: cfg.Signal.PingPeriod,
		WebRTC:     rtc.Configuration(cfg.Signal.ICEServers),
	})
	api := &router.API{
		Tokens:    tokens,
		Directory: dir,
		Store:     store,
		Evictor:   o,
		Metrics:   m,
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{API: api, Signal: ws, Gatherer: reg, MediaRoot: mediaRoot})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				limiter.Forget()
			}
		}
	}()

	go func() {
		log.Info().Str("addr", addr).Str("storage", cfg.Storage.Backend).Msg("Babyfoon server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
