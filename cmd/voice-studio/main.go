// main package for the voice-studio service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/config"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/ledger"
	"github.com/book-expert/voice-studio/internal/metrics"
	"github.com/book-expert/voice-studio/internal/objectstore"
	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/book-expert/voice-studio/internal/tts"
	"github.com/book-expert/voice-studio/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 10 * time.Second

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// stores opens the blob store and the ledger snapshot store selected by the configuration.
// The returned closer releases local resources.
func stores(cfg *config.Config, jetstreamContext nats.JetStreamContext) (core.BlobStore, ledger.SnapshotStore, func() error, error) {
	if cfg.Storage.Backend == config.BackendLocal {
		blobs, err := objectstore.NewFileStore(filepath.Join(cfg.Storage.DataDir, config.DefaultBlobDirName))
		if err != nil {
			return nil, nil, nil, err
		}

		snapshots, err := ledger.OpenSQLite(filepath.Join(cfg.Storage.DataDir, config.DefaultLedgerFileName))
		if err != nil {
			return nil, nil, nil, err
		}

		return blobs, snapshots, snapshots.Close, nil
	}

	blobs, err := objectstore.New(jetstreamContext, cfg.NATS.ObjectStoreBucket)
	if err != nil {
		return nil, nil, nil, err
	}

	snapshots, err := ledger.NewKVSnapshotStore(jetstreamContext, cfg.NATS.LedgerBucket)
	if err != nil {
		return nil, nil, nil, err
	}

	return blobs, snapshots, func() error { return nil }, nil
}

func startMetricsServer(cfg *config.Config, registry *prometheus.Registry, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	mux.HandleFunc("/healthz", metrics.HealthHandler)

	server := &http.Server{
		Addr:              cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server stopped: %v", err)
		}
	}()

	log.Info("Serving metrics on %s", cfg.Metrics.ListenAddr)

	return server
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "voice-studio-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "voice-studio.log")
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

	// 4. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	studioMetrics, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	// 5. NATS connection, storage and backend client
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("voice-studio"))
	if err != nil {
		finalLog.Error("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)

		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	blobs, snapshots, closeStores, err := stores(cfg, jetstreamContext)
	if err != nil {
		finalLog.Error("Failed to open %s storage: %v", cfg.Storage.Backend, err)

		return fmt.Errorf("failed to open storage: %w", err)
	}

	defer func() {
		closeErr := closeStores()
		if closeErr != nil {
			finalLog.Error("Failed to close storage: %v", closeErr)
		}
	}()

	client, err := tts.NewGeminiClient(tts.ClientOptions{
		APIKey:            cfg.Generation.APIKey,
		BaseURL:           cfg.Generation.BaseURL,
		SpeechModel:       cfg.Generation.SpeechModel,
		AnalysisModel:     cfg.Generation.AnalysisModel,
		Timeout:           time.Duration(cfg.Generation.TimeoutSeconds) * time.Second,
		RequestsPerMinute: cfg.Generation.RequestsPerMinute,
	})
	if err != nil {
		finalLog.Error("Failed to create generation client (set %s): %v", cfg.Generation.APIKeyEnv, err)

		return fmt.Errorf("failed to create generation client: %w", err)
	}

	// 6. Studio and worker
	voiceStudio, err := studio.New(studio.Dependencies{
		Blobs:     blobs,
		Snapshots: snapshots,
		Generator: client,
		Analyzer:  client,
		Logger:    finalLog,
		Metrics:   studioMetrics,
		Format:    cfg.Audio,
		Limits: studio.Limits{
			MaxTextLength:     cfg.Library.MaxTextLength,
			DisplayTextLength: cfg.Library.DisplayTextLength,
			HydrationWorkers:  cfg.Library.HydrationWorkers,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create studio: %w", err)
	}
	defer voiceStudio.Close()

	natsWorker, err := worker.NewNatsWorker(natsConnection, cfg.NATS.GenerateSubject, cfg.NATS.QueueGroup, voiceStudio, finalLog)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg, registry, finalLog)
	}

	finalLog.System("Voice-Studio successfully initialized. Listening for jobs on subject: %s", cfg.NATS.GenerateSubject)

	runErr := natsWorker.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := metricsServer.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			finalLog.Error("Failed to stop metrics server: %v", shutdownErr)
		}
	}

	finalLog.System("Voice-Studio stopped.")

	return runErr
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
