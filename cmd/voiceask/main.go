package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"voiceask/internal/capture"
	"voiceask/internal/config"
	"voiceask/internal/device"
	"voiceask/internal/fault"
	"voiceask/internal/metrics"
	"voiceask/internal/playback"
	"voiceask/internal/server"
	"voiceask/internal/session"
	"voiceask/internal/status"
	"voiceask/internal/upload"
)

func main() {
	var cfgPath string
	var once bool

	flag.StringVar(&cfgPath, "config", "config.yaml", "Path to config YAML")
	flag.BoolVar(&once, "once", false, "Run a single session and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	var missing *config.MissingFileError
	if err != nil && !errors.As(err, &missing) {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	var logger zerolog.Logger
	if cfg.Log.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	log.Logger = logger

	if missing != nil {
		log.Warn().Str("path", missing.Path).Msg("config file not found, using defaults")
	}

	// Secrets from env
	var apiKey string
	if cfg.Endpoint.APIKeyEnv != "" {
		apiKey = strings.TrimSpace(os.Getenv(cfg.Endpoint.APIKeyEnv))
		if apiKey == "" {
			log.Warn().Str("env", cfg.Endpoint.APIKeyEnv).Msg("api key env var is empty, sending requests without a token")
		}
	}

	// Context / shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var m *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsHandler = m.Handler()
	}

	mic := device.NewMicrophone(device.MicConfig{
		SampleRate:      cfg.Capture.SampleRate,
		Channels:        cfg.Capture.Channels,
		FramesPerBuffer: cfg.Capture.FramesPerBuffer,
	}, log.Logger)
	capturer := capture.NewController(capture.Config{
		Duration:    cfg.Capture.Duration.ToDuration(),
		ContentType: cfg.Capture.ContentType,
		Filename:    cfg.Capture.Filename,
	}, mic, log.Logger)

	uploader, err := upload.NewClient(upload.Config{
		BaseURL:   cfg.Endpoint.BaseURL,
		Path:      cfg.Endpoint.Path,
		FieldName: cfg.Endpoint.FieldName,
		APIKey:    apiKey,
		Timeout:   cfg.Endpoint.Timeout.ToDuration(),
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init upload client")
	}

	speaker := device.NewSpeaker(cfg.Playback.FramesPerBuffer, log.Logger)
	player := playback.NewController(playback.NewHTTPOpener(playback.HTTPConfig{
		Timeout:         cfg.Playback.Timeout.ToDuration(),
		FramesPerBuffer: cfg.Playback.FramesPerBuffer,
	}, speaker, log.Logger), log.Logger)

	reporters := status.Multi{status.NewLog(log.Logger)}

	// Web control page
	var srv *server.Server
	if cfg.Server.Enabled && !once {
		srv = server.New(server.Config{
			Bind:              cfg.Server.Bind,
			Port:              cfg.Server.Port,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.ToDuration(),
		}, metricsHandler, log.Logger)
		reporters = append(reporters, srv)
	}

	runner := session.NewRunner(session.Deps{
		Capturer: capturer,
		Uploader: uploader,
		Player:   player,
		Reporter: reporters,
		Metrics:  m,
	}, log.Logger)

	log.Info().
		Str("endpoint", cfg.Endpoint.EndpointURL()).
		Dur("record", capturer.Duration()).
		Bool("server", srv != nil).
		Msg("voiceask starting")

	// No trigger surface: one session, then exit.
	if srv == nil {
		s, err := runner.Run(ctx)
		if err != nil {
			log.Error().Err(err).Str("kind", fault.KindOf(err).String()).Msg("session failed")
			cancel()
			os.Exit(1)
		}
		log.Info().Str("session", s.ID).Str("audio_url", s.AudioURL).Msg("done")
		return
	}

	srv.Attach(runner)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		runner.Wait()
		return nil
	})
	log.Info().Str("url", srv.Addr()).Msg("open the control page to ask")

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("http server stopped with error")
	}
	log.Info().Msg("shutdown complete")
}
