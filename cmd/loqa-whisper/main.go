// loqa-whisper is a local speech-to-text server. It reads one JSON request
// per document on stdin and answers with one JSON line on stdout. Logs go
// to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-whisper/internal/bus"
	"github.com/loqalabs/loqa-whisper/internal/config"
	"github.com/loqalabs/loqa-whisper/internal/natsserver"
	"github.com/loqalabs/loqa-whisper/internal/server"
	"github.com/loqalabs/loqa-whisper/internal/stt"
	"github.com/loqalabs/loqa-whisper/internal/telemetry"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

var (
	configPath string
	threads    int
	cpuOnly    bool
	engineMode string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "loqa-whisper <model-path>",
		Short: "Local Whisper transcription server speaking JSON over stdio",
		Long: `loqa-whisper loads a Whisper model and serves transcription requests.

The parent process writes JSON requests to stdin and reads one JSON result
line per request from stdout. The first stdout line announces the server.

Examples:
  loqa-whisper models/ggml-base.en.bin
  loqa-whisper models/ggml-small.bin --threads 4 --cpu-only
  loqa-whisper models/ggml-base.bin --config loqa-whisper.yaml`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.Flags().IntVarP(&threads, "threads", "t", 0, "Number of inference threads")
	rootCmd.Flags().BoolVar(&cpuOnly, "cpu-only", false, "Disable GPU acceleration")
	rootCmd.Flags().StringVar(&engineMode, "engine", "", "Engine backend (mock, exec, whisper)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("threads") && threads <= 0 {
		return errors.New("--threads must be greater than 0")
	}

	cfg, err := config.Load(configPath, config.Overrides{
		ModelPath:  args[0],
		Threads:    threads,
		CPUOnly:    cpuOnly,
		EngineMode: engineMode,
		LogLevel:   logLevel,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg, version, logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer shutdown(logger, "telemetry", tel.Shutdown)

	var listener *telemetry.Listener
	if bind := strings.TrimSpace(cfg.Telemetry.PrometheusBind); bind != "" {
		listener, err = telemetry.Listen(bind, tel.MetricsHandler, logger)
		if err != nil {
			return err
		}
		defer shutdown(logger, "telemetry listener", listener.Close)
	}

	publisher, stopBus, err := startBus(cfg.Bus, logger)
	if err != nil {
		return err
	}
	defer stopBus()

	engine, err := stt.NewEngine(cfg.Engine, logger)
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	info, err := server.BuildInfo(cfg.Engine, engine.Info(), version)
	if err != nil {
		_ = engine.Close()
		return err
	}

	opts := server.Options{
		Engine:          engine,
		Defaults:        stt.OptionsFromConfig(cfg.Transcription, cfg.Engine.Threads),
		Info:            info,
		Input:           os.Stdin,
		Output:          os.Stdout,
		MaxRequestBytes: cfg.Protocol.MaxRequestBytes,
		Logger:          logger,
		Tracer:          tel.Tracer,
		Recorder:        tel.Recorder,
	}
	if publisher != nil {
		opts.Publisher = publisher
	}
	if listener != nil {
		opts.Readiness = listener
	}

	if err := server.New(opts).Run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// startBus connects the result mirror when enabled, starting the embedded
// broker first if asked to.
func startBus(cfg config.BusConfig, logger *slog.Logger) (*bus.Publisher, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	embedded, err := natsserver.Start(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if embedded != nil {
		cfg.Servers = []string{embedded.ClientURL()}
	}

	publisher, err := bus.Connect(cfg, logger.With(slog.String("component", "bus")))
	if err != nil {
		embedded.Shutdown()
		return nil, nil, err
	}
	return publisher, func() {
		publisher.Close()
		embedded.Shutdown()
	}, nil
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func shutdown(logger *slog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Error(name+" shutdown error", slog.String("error", err.Error()))
	}
}
