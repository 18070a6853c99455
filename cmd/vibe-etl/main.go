// Command vibe-etl runs the news-vibe ingestion pipeline: it pulls recent
// GDELT GKG files, normalizes and classifies their records, aggregates them
// into H3 vibe cells, and publishes the resulting data layers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/signalatlas/vibe-etl/internal/adapter/export"
	"github.com/signalatlas/vibe-etl/internal/adapter/gdelt"
	httpadapter "github.com/signalatlas/vibe-etl/internal/adapter/http"
	kafkaadapter "github.com/signalatlas/vibe-etl/internal/adapter/kafka"
	s3adapter "github.com/signalatlas/vibe-etl/internal/adapter/s3"
	"github.com/signalatlas/vibe-etl/internal/config"
	"github.com/signalatlas/vibe-etl/internal/domain"
	"github.com/signalatlas/vibe-etl/internal/observability"
	"github.com/signalatlas/vibe-etl/internal/pipeline"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "vibe-etl",
		Short:   "Aggregate GDELT news records into spatial vibe scores",
		Long:    "vibe-etl ingests GDELT GKG files, classifies each story against progress and noise vocabularies, and aggregates the batch into per-hexagon vibe scores for the map frontend.",
		Version: version,
	}

	rootCmd.SetVersionTemplate("vibe-etl version {{.Version}}\n")
	rootCmd.AddCommand(newRunCmd())

	return rootCmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute the ingestion batch (once, or on RUN_INTERVAL)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// A local .env is a convenience for development; absence is fine.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	source := gdelt.NewClient(cfg, logger, metrics)
	parser := domain.NewParser(cfg.Resolution)
	classifier := domain.NewClassifier(cfg.ProgressWeights, cfg.NoiseWeights)
	aggregator := domain.NewAggregator(cfg.InsightCount)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exporters := []pipeline.Exporter{
		export.NewFileExporter(cfg.ExportDir, cfg.Resolution, logger),
	}

	if cfg.S3Bucket != "" {
		uploader, err := s3adapter.NewUploader(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.Resolution, logger)
		if err != nil {
			return fmt.Errorf("init s3 uploader: %w", err)
		}
		exporters = append(exporters, uploader)
		logger.Info("s3 publish enabled", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
	}

	var publisher *kafkaadapter.Publisher
	if cfg.KafkaSinkTopic != "" {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaSinkTopic, logger)
		exporters = append(exporters, publisher)
		logger.Info("kafka publish enabled", "topic", cfg.KafkaSinkTopic)
	}

	p := pipeline.New(source, parser, classifier, aggregator, exporters, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runErr := p.RunLoop(ctx, cfg.RunInterval)
	switch {
	case errors.Is(runErr, domain.ErrNoEvents):
		// Nothing to aggregate is a clean no-op, not a failure.
		logger.Warn("run produced no events")
		runErr = nil
	case runErr != nil:
		logger.Error("pipeline failed", "error", runErr)
	}

	shutdown(cfg, srv, publisher, logger)
	return runErr
}

func shutdown(cfg *config.Config, srv *httpadapter.Server, publisher *kafkaadapter.Publisher, logger *slog.Logger) {
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
