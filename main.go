package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/d1nch8g/voxloop/audio"
	"github.com/d1nch8g/voxloop/config"
	"github.com/d1nch8g/voxloop/engine"
	"github.com/d1nch8g/voxloop/observe"
	"github.com/d1nch8g/voxloop/pipeline"
	"github.com/d1nch8g/voxloop/server"
	"github.com/d1nch8g/voxloop/sound"
	"github.com/d1nch8g/voxloop/turn"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	mode := flag.String("mode", "listen", "listen: talk through the microphone; serve: run the HTTP API")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	slog.Info("voxloop starting", "version", version, "mode", *mode, "pipeline", cfg.Pipeline.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mode, logger); err != nil {
		slog.Error("run error", "err", err)
		os.Exit(1)
	}
	slog.Info("goodbye")
}

func run(ctx context.Context, cfg *config.Config, mode string, logger *slog.Logger) (err error) {
	if mode != "listen" && mode != "serve" {
		return fmt.Errorf("unknown mode %q", mode)
	}
	if mode == "serve" && cfg.Pipeline.Mode == "remote" {
		return errors.New("serve mode needs pipeline.mode local")
	}

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		if serr := shutdownMetrics(context.Background()); serr != nil {
			slog.Warn("metrics shutdown error", "err", serr)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	var processor pipeline.Processor
	var client *pipeline.Client
	if cfg.Pipeline.Mode == "remote" {
		processor, err = pipeline.NewRemote(cfg.Pipeline.RemoteURL, cfg.Pipeline.MaxAudioBytes, cfg.Pipeline.RemoteTimeout)
		if err != nil {
			return err
		}
	} else {
		b, err := buildBackends(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := b.Close(); cerr != nil {
				slog.Warn("close backends", "err", cerr)
			}
		}()

		client = pipeline.NewClient(b.transcriber, b.answers, b.synthesizer, pipelineConfig(cfg),
			pipeline.WithLogger(logger), pipeline.WithMetrics(metrics))
		if err := client.Prepare(ctx); err != nil {
			slog.Warn("fallback phrase not pre-rendered, will synthesize on demand", "err", err)
		}
		processor = client
	}

	g, gctx := errgroup.WithContext(ctx)

	if mode == "serve" {
		srv := server.New(server.Config{
			ListenAddr:    cfg.Server.ListenAddr,
			MaxAudioBytes: cfg.Pipeline.MaxAudioBytes,
			CORSOrigins:   cfg.Server.CORSOrigins,
		}, client, logger)
		g.Go(func() error { return srv.Start(gctx) })
	} else {
		source, output := buildAudio(cfg)
		if err := output.Initialize(); err != nil {
			return fmt.Errorf("initialize audio output: %w", err)
		}
		defer output.Terminate()

		player := sound.NewController(output, sound.Config{FramesPerBuffer: cfg.Playback.FramesPerBuffer})
		eng := engine.NewEngine(engine.EngineConfig{
			SampleRate:        cfg.Audio.SampleRate,
			QueueSize:         cfg.Audio.QueueSize,
			VADThreshold:      cfg.Turn.VADThreshold,
			BargeInMultiplier: cfg.Turn.BargeInMultiplier,
			Turn: turn.Config{
				SilenceDuration: cfg.Turn.SilenceDuration,
				MinBytes:        cfg.Turn.MinUtteranceBytes,
				MaxDuration:     cfg.Turn.MaxUtteranceDuration,
			},
			MaxHistorySize: cfg.HistorySize,
		}, source, processor, player, engine.WithLogger(logger), engine.WithMetrics(metrics))

		slog.Info("listening, press Ctrl+C to stop")
		g.Go(func() error { return eng.Start(gctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		slog.Info("shutdown signal received, stopping")
		return nil
	}
	return err
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	pc := pipeline.GetDefaultConfig()
	pc.MaxAudioBytes = cfg.Pipeline.MaxAudioBytes
	pc.TranscribeTimeout = cfg.Pipeline.TranscribeTimeout
	pc.AnswerTimeout = cfg.Pipeline.AnswerTimeout
	pc.SynthesizeTimeout = cfg.Pipeline.SynthesizeTimeout
	if cfg.Pipeline.FallbackText != "" {
		pc.FallbackText = cfg.Pipeline.FallbackText
	}
	if cfg.Pipeline.ApologyText != "" {
		pc.ApologyText = cfg.Pipeline.ApologyText
	}
	return pc
}

func buildAudio(cfg *config.Config) (audio.Source, sound.Output) {
	ac := audio.Config{
		SampleRate:      float64(cfg.Audio.SampleRate),
		FramesPerBuffer: cfg.Audio.FrameSize,
		InputChannels:   1,
	}

	var source audio.Source
	switch cfg.Audio.Backend {
	case "malgo":
		source = audio.NewMalgoSource(ac)
	default:
		source = audio.NewPortaudioSource(ac)
	}

	var output sound.Output
	switch cfg.Playback.Backend {
	case "malgo":
		output = sound.NewMalgoOutput()
	default:
		output = sound.NewPortaudioOutput(sound.Config{FramesPerBuffer: cfg.Playback.FramesPerBuffer})
	}
	return source, output
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
