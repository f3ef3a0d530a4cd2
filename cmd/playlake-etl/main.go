package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/malbeclabs/playlake/pkg/config"
	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/malbeclabs/playlake/pkg/etl/job"
	"github.com/malbeclabs/playlake/pkg/logger"
	"github.com/malbeclabs/playlake/pkg/metrics"
	"github.com/malbeclabs/playlake/pkg/schema"
	"github.com/malbeclabs/playlake/pkg/storage"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const metricsPushTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.Run.Verbose)
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var s3cfg *duck.S3Config
	if cfg.UsesS3() {
		s3cfg = cfg.S3()
	}

	engine, err := duck.NewEngine(ctx, duck.EngineConfig{
		Logger:      log,
		S3:          s3cfg,
		Threads:     cfg.Run.Threads,
		MemoryLimit: cfg.Run.MemoryLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer engine.Close()

	store, err := storage.New(ctx, storage.Config{Logger: log, S3: s3cfg})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.EnsureBucket(ctx, cfg.Paths.Output); err != nil {
		return err
	}

	j, err := job.New(job.Config{
		Logger:         log,
		Engine:         engine,
		Store:          store,
		InputURI:       cfg.Paths.Input,
		OutputURI:      cfg.Paths.Output,
		MaxConcurrency: cfg.Run.MaxConcurrency,
	})
	if err != nil {
		return err
	}

	log.Info("playlake: starting run",
		"version", version,
		"input", duck.RedactedStorageURI(cfg.Paths.Input),
		"output", duck.RedactedStorageURI(cfg.Paths.Output))

	summary, runErr := j.Run(ctx)

	if err := metrics.PushAfterRun(ctx, cfg.Run.PushgatewayURL, metricsPushTimeout); err != nil {
		log.Warn("playlake: metrics push failed", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	for _, table := range schema.Star.Tables {
		w := summary.Writes[table.Name]
		log.Info("playlake: table written", "table", table.Name, "rows", w.Rows, "partitions", w.Partitions)
	}
	return nil
}
