// main package for the voice-worker service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/flowsmartly/voice-worker/internal/config"
	"github.com/flowsmartly/voice-worker/internal/fetch"
	"github.com/flowsmartly/voice-worker/internal/objectstore"
	"github.com/flowsmartly/voice-worker/internal/pipeline"
	"github.com/flowsmartly/voice-worker/internal/recolor"
	"github.com/flowsmartly/voice-worker/internal/synth"
	"github.com/flowsmartly/voice-worker/internal/transcode"
	"github.com/flowsmartly/voice-worker/internal/worker"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "voice-worker.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process.
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		// If the bootstrap logger fails, we can only print to stderr.
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	// 2. Load configuration using the central configurator.
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration.
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return serve(cfg, finalLog)
}

func serve(cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(
		jetstreamContext,
		cfg.NATS.AudioObjectStoreBucket,
		cfg.NATS.PublicURLBase,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	jobPipeline := pipeline.New(
		fetch.New(
			time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second,
			cfg.Fetch.MaxDownloadBytes,
		),
		synth.New(cfg.Synthesis, log),
		recolor.New(cfg.VoiceColor, log),
		transcode.New(cfg.Transcode, log),
		store,
		log,
		pipeline.Options{
			WorkDir:          cfg.Pipeline.WorkDir,
			LocalFallbackDir: cfg.Pipeline.LocalFallbackDir,
		},
	)

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.JobsSubject,
		jobPipeline,
		time.Duration(cfg.Pipeline.JobTimeoutSeconds)*time.Second,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.System("Voice worker initialized. Listening for jobs on subject: %s", cfg.NATS.JobsSubject)

	err = natsWorker.Run(ctx)
	if err != nil {
		return fmt.Errorf("worker stopped with error: %w", err)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
