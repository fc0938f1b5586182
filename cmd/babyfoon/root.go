package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dkeye/Babyfoon/internal/adapters/api"
	"github.com/dkeye/Babyfoon/internal/adapters/capture"
	"github.com/dkeye/Babyfoon/internal/adapters/playback"
	"github.com/dkeye/Babyfoon/internal/adapters/rtc"
	"github.com/dkeye/Babyfoon/internal/app/fallback"
	"github.com/dkeye/Babyfoon/internal/app/level"
	"github.com/dkeye/Babyfoon/internal/app/session"
	"github.com/dkeye/Babyfoon/internal/config"
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/dkeye/Babyfoon/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const flushTimeout = 10 * time.Second

// flusher is an engine with uploads that may outlive Leave.
type flusher interface {
	Flush(ctx context.Context) error
}

type options struct {
	configFile string
	server     string
	transport  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "babyfoon",
		Short:         "Baby monitor audio device",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	root.PersistentFlags().StringVar(&opts.server, "server", "", "server base URL, overrides device.server")
	root.PersistentFlags().StringVar(&opts.transport, "transport", "", "rtc or chunked, overrides device.transport")

	root.AddCommand(newBroadcastCmd(opts), newListenCmd(opts))
	return root
}

func (o *options) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFile(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if o.server != "" {
		cfg.Device.Server = o.server
	}
	if o.transport != "" {
		cfg.Device.Transport = o.transport
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// stdout may carry audio, logs go to stderr.
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		return nil, err
	}
	return cfg, nil
}

// signalURL turns the server base URL into its websocket endpoint.
func signalURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws/signal"
	return u.String(), nil
}

// newEngine selects the transport once per run.
func newEngine(cfg *config.Config, client *api.Client, in io.Reader, out io.Writer) (core.Engine, error) {
	switch cfg.Device.Transport {
	case config.TransportChunked:
		mic := capture.NewMic(in, cfg.Device.SampleRate)
		player := playback.NewHTTPPlayer(nil, out)
		return fallback.NewEngine(mic, player, client, fallback.EngineConfig{
			Interval:  cfg.Device.ChunkInterval,
			MaxMisses: cfg.Device.MaxMisses,
		}), nil
	default:
		ws, err := signalURL(cfg.Device.Server)
		if err != nil {
			return nil, err
		}
		return rtc.NewEngine(rtc.EngineConfig{
			SignalURL: ws,
			WebRTC:    rtc.Configuration(cfg.Signal.ICEServers),
			Source:    in,
			Sink:      out,
		}), nil
	}
}

// run drives one session until the context ends or the transport fails.
func run(cmd *cobra.Command, cfg *config.Config, start func(ctx context.Context, s *session.Session, client *api.Client) error) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := api.New(cfg.Device.Server, nil)
	engine, err := newEngine(cfg, client, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}

	events := make(chan session.Event, 64)
	s := session.New(engine, client, client,
		session.WithDetector(level.NewDetector(cfg.Device.LoudThreshold, cfg.Device.AlertDebounce)),
		session.WithEventHandler(func(ev session.Event) {
			select {
			case events <- ev:
			default:
			}
		}),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return report(ctx, events) })
	g.Go(func() error { return toggleMute(ctx, s) })
	g.Go(func() error {
		if err := start(ctx, s, client); err != nil {
			return fmt.Errorf("%s", domain.UserMessage(err))
		}
		<-ctx.Done()
		return nil
	})

	err = g.Wait()
	if stopErr := s.Stop(context.Background()); stopErr != nil {
		log.Warn().Err(stopErr).Str("module", "cmd").Msg("stop")
	}
	if f, ok := engine.(flusher); ok {
		fctx, fcancel := context.WithTimeout(context.Background(), flushTimeout)
		defer fcancel()
		if ferr := f.Flush(fctx); ferr != nil {
			log.Warn().Err(ferr).Str("module", "cmd").Msg("pending uploads dropped")
		}
	}
	return err
}

// report logs session events until a transport error ends the run.
func report(ctx context.Context, events <-chan session.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			switch ev.Kind {
			case session.EventState:
				log.Info().Str("module", "cmd").Str("state", ev.State.String()).Msg("session")
			case session.EventLoudNoise:
				log.Warn().Str("module", "cmd").Float64("level", ev.Level).Msg("LOUD NOISE")
			case session.EventPeerJoined:
				log.Info().Str("module", "cmd").Uint32("uid", ev.UID).Msg("peer joined")
			case session.EventPeerLeft:
				log.Info().Str("module", "cmd").Uint32("uid", ev.UID).Msg("peer left")
			case session.EventLevel:
				log.Trace().Str("module", "cmd").Float64("level", ev.Level).Msg("level")
			case session.EventError:
				return fmt.Errorf("%s", domain.UserMessage(ev.Err))
			}
		}
	}
}

// toggleMute flips mute on SIGUSR1.
func toggleMute(ctx context.Context, s *session.Session) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			on := s.State() != session.StateMuted
			if err := s.Mute(ctx, on); err != nil {
				log.Warn().Err(err).Str("module", "cmd").Msg("mute")
				continue
			}
			log.Info().Str("module", "cmd").Bool("muted", on).Msg("mute toggled")
		}
	}
}
