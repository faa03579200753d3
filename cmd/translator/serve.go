package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/skypro1111/live-translator/internal/audio"
	"github.com/skypro1111/live-translator/internal/config"
	"github.com/skypro1111/live-translator/internal/metrics"
	"github.com/skypro1111/live-translator/internal/pipeline"
	"github.com/skypro1111/live-translator/internal/recognition"
	"github.com/skypro1111/live-translator/internal/server"
	"github.com/skypro1111/live-translator/internal/sink"
	"github.com/skypro1111/live-translator/internal/translation"
)

const shutdownTimeout = 10 * time.Second

var serveOpts struct {
	configPath string
	language   string
	autostart  bool
	console    bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the translator with its HTTP control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(serveOpts.configPath, serveOpts.language)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

// loadConfig reads the config file, or the defaults when path is empty,
// and applies the language flag
func loadConfig(path, language string) (*config.Config, error) {
	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if language != "" {
		cfg.Translation.DefaultLanguage = language
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// input is the live audio source with its optional UDP receiver
type input struct {
	source   audio.Source
	receiver *server.UDPReceiver
	closer   io.Closer
}

// openInput builds the chunk source selected by cfg.Source. A WAV file
// dictates the sample rate, so cfg.Audio.SampleRate may be updated.
func openInput(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*input, error) {
	switch cfg.Source.Type {
	case "stdin":
		return &input{source: audio.NewReaderSource("stdin", os.Stdin, cfg.Audio.SampleRate)}, nil

	case "file":
		src, err := audio.OpenWAVFile(cfg.Source.Path, cfg.Source.Pace)
		if err != nil {
			return nil, err
		}
		if src.SampleRate() != cfg.Audio.SampleRate {
			logger.Warn("Using the sample rate of the WAV file",
				slog.Int("configured", cfg.Audio.SampleRate),
				slog.Int("file", src.SampleRate()),
			)
			cfg.Audio.SampleRate = src.SampleRate()
		}
		return &input{source: src, closer: src}, nil

	case "udp":
		udp := cfg.Source.UDP
		buffer := audio.NewBuffer(cfg.Audio.SampleRate, udp.GetMaxBufferedDuration())
		receiver := server.NewUDPReceiver(udp, logger.With("component", "udp"), buffer, m)
		return &input{
			source:   audio.NewBufferSource(buffer, udp.GetIdleTimeoutDuration()),
			receiver: receiver,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Source.Type)
	}
}

// serve runs the service until ctx ends or a shutdown signal arrives
func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", version),
	)

	logger.Info("Configuration loaded",
		slog.String("source", cfg.Source.Type),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Duration("chunk_duration", cfg.Audio.GetChunkDuration()),
		slog.Int("queue_capacity", cfg.Queue.Capacity),
		slog.String("queue_policy", cfg.Queue.GetQueuePolicy().String()),
		slog.String("recognition_endpoint", cfg.Recognition.Endpoint),
		slog.String("translation_endpoint", cfg.Translation.Endpoint),
		slog.String("default_language", cfg.Translation.DefaultLanguage),
		slog.String("log_level", cfg.Logging.Level),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)

	in, err := openInput(cfg, logger, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to open audio input: %w", err)
	}
	if in.closer != nil {
		defer in.closer.Close()
	}

	recognizer, err := recognition.NewClient(recognition.Config{
		Endpoint:      cfg.Recognition.Endpoint,
		APIKey:        cfg.Recognition.APIKey,
		Model:         cfg.Recognition.Model,
		Language:      cfg.Recognition.Language,
		BeamSize:      cfg.Recognition.BeamSize,
		Temperature:   cfg.Recognition.Temperature,
		Timeout:       cfg.Recognition.GetTimeoutDuration(),
		MaxRetries:    cfg.Recognition.MaxRetries,
		BackoffBase:   cfg.Recognition.GetBackoffBaseDuration(),
		MaxConcurrent: cfg.Recognition.MaxConcurrent,
	}, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create recognition client: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := recognizer.Close(closeCtx); err != nil {
			logger.Warn("Recognition requests still active at exit", slog.String("error", err.Error()))
		}
	}()

	translator, err := translation.NewClient(translation.Config{
		Endpoint:       cfg.Translation.Endpoint,
		APIKey:         cfg.Translation.APIKey,
		SourceLanguage: cfg.Translation.SourceLanguage,
		Timeout:        cfg.Translation.GetTimeoutDuration(),
		MaxRetries:     cfg.Translation.MaxRetries,
		BackoffBase:    cfg.Translation.GetBackoffBaseDuration(),
	}, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create translation client: %w", err)
	}

	transcript := sink.NewTranscript(0)
	events := server.NewEventHub(logger.With("component", "websocket"), cfg.HTTP.AllowedOrigins)
	sinks := sink.Multi{transcript, events, sink.NewLog(logger.With("component", "results"))}

	// The console drains until the pipeline has exited so no result blocks
	consoleDone := make(chan struct{})
	defer close(consoleDone)
	if serveOpts.console {
		console := sink.NewChannel(64)
		sinks = append(sinks, console)
		go sink.Drain(console.Events(), sink.NewWriter(os.Stdout, os.Stdout, os.Stderr), consoleDone)
	}

	p, err := pipeline.New(logger.With("component", "pipeline"), pipeline.Config{
		SampleRate:    cfg.Audio.SampleRate,
		ChunkDuration: cfg.Audio.GetChunkDuration(),
		QueueCapacity: cfg.Queue.Capacity,
		QueuePolicy:   cfg.Queue.GetQueuePolicy(),
	}, pipeline.Deps{
		Source:     in.source,
		Recognizer: recognizer,
		Translator: translator,
		Sink:       sinks,
		Metrics:    appMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	if in.receiver != nil {
		if err := in.receiver.Start(); err != nil {
			return fmt.Errorf("failed to start UDP receiver: %w", err)
		}
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg, logger.With("component", "http"), server.HTTPDeps{
			Controller:  p,
			Transcript:  transcript,
			Receiver:    in.receiver,
			Events:      events,
			Recognition: recognizer,
			Translation: translator,
			Gatherer:    registry,
			Metrics:     appMetrics,
			BaseContext: ctx,
		})
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	if httpServer == nil && !serveOpts.autostart {
		return fmt.Errorf("HTTP API is disabled; use --autostart to start listening")
	}

	if serveOpts.autostart {
		lang, err := translation.ParseLanguage(cfg.Translation.DefaultLanguage)
		if err != nil {
			return err
		}
		if err := p.Start(ctx, lang); err != nil {
			return fmt.Errorf("failed to start pipeline: %w", err)
		}
	}

	logger.Info("Service started successfully, waiting for signals...")

	// Without the HTTP API nothing can restart a finished run
	var runDone <-chan struct{}
	if httpServer == nil {
		runDone = p.Done()
	}

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case <-runDone:
		logger.Info("Pipeline run finished")
	}

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}
	events.Close()

	p.Stop()
	runErr := p.Wait(shutdownCtx)
	if errors.Is(runErr, context.DeadlineExceeded) {
		logger.Warn("Pipeline did not exit before the shutdown timeout")
	}

	if in.receiver != nil {
		if err := in.receiver.Stop(); err != nil {
			logger.Error("Error stopping UDP receiver", slog.String("error", err.Error()))
		}
	}

	stats := p.Stats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("runs", stats.Runs),
		slog.Uint64("chunks_captured", stats.ChunksCaptured),
		slog.Uint64("chunks_processed", stats.ChunksProcessed),
		slog.Uint64("chunks_failed", stats.ChunksFailed),
		slog.Uint64("results_emitted", stats.ResultsEmitted),
		slog.Uint64("translation_failures", stats.TranslationFailures),
	)

	recStats := recognizer.GetStats()
	trStats := translator.GetStats()
	logger.Info("Final backend statistics",
		slog.Uint64("recognition_requests", recStats.TotalRequests),
		slog.Uint64("recognition_failed", recStats.FailedRequests),
		slog.Uint64("recognition_retries", recStats.TotalRetries),
		slog.Duration("recognition_avg_response_time", recStats.AvgResponseTime),
		slog.Uint64("translation_requests", trStats.TotalRequests),
		slog.Uint64("translation_failed", trStats.FailedRequests),
		slog.Uint64("translation_retries", trStats.TotalRetries),
		slog.Duration("translation_avg_response_time", trStats.AvgResponseTime),
	)

	logger.Info("Service stopped")

	var deviceErr *audio.DeviceError
	if errors.As(runErr, &deviceErr) && !errors.Is(runErr, audio.ErrStreamClosed) {
		return runErr
	}
	return nil
}
