package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/candled/internal/api"
	"github.com/rickgao/candled/internal/config"
	"github.com/rickgao/candled/internal/database"
	"github.com/rickgao/candled/internal/history"
	"github.com/rickgao/candled/internal/metrics"
	"github.com/rickgao/candled/internal/store"
	"github.com/rickgao/candled/internal/writer"
)

// configPath is the --config flag value.
type configPath string

// app is the object graph of the download commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	loader    *writer.CandleLoader
	scheduler *history.Scheduler
	server    *metrics.Server
}

// migration is the object graph of the migrate command.
type migration struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// storeEnv is the object graph of the instruments command.
type storeEnv struct {
	store  *store.Store
	logger *slog.Logger
}

func provideConfig(path configPath) (*config.Config, error) {
	cfg, err := config.LoadAndValidate(string(path))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	logger := newLogger(os.Stderr, cfg.Log)
	slog.SetDefault(logger)
	return logger
}

func providePool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, func(), error) {
	pool, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}

func provideMigrator(cfg *config.Config, logger *slog.Logger) (*migrate.Migrate, func(), error) {
	m, err := database.NewMigrator(cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("close migrator", "source_error", srcErr, "database_error", dbErr)
		}
	}
	return m, cleanup, nil
}

func provideClient(cfg *config.Config, logger *slog.Logger) *api.Client {
	return api.NewClient(cfg.API.HistoryURL, cfg.API.Token,
		api.WithTimeout(cfg.API.Timeout),
		api.WithRequestRate(cfg.API.RequestRate),
		api.WithLogger(logger),
	)
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func provideSessionOpener(loader *writer.CandleLoader) history.SessionOpener {
	return func(ctx context.Context) (history.LoadSession, error) {
		return loader.Begin(ctx)
	}
}

func provideDownloader(source history.ArchiveSource, open history.SessionOpener, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *history.Downloader {
	return history.NewDownloader(source, open, cfg.History.PipeBufferSize, m, logger)
}

func provideScheduler(s history.CandleStore, d history.HistoryDownloader, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *history.Scheduler {
	return history.NewScheduler(s, d, cfg.History.AssetTypes, logger, history.WithMetrics(m))
}

// provideMetricsServer starts the metrics server when enabled. The server
// is nil otherwise.
func provideMetricsServer(cfg *config.Config, reg *prometheus.Registry, s *store.Store, logger *slog.Logger) (*metrics.Server, func()) {
	if !cfg.Metrics.Enabled {
		return nil, func() {}
	}

	srv := metrics.NewServer(cfg.Metrics.Port, metrics.NewHandler(cfg.Metrics.Path, reg, s), logger)
	srv.Start()
	return srv, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			logger.Warn("stop metrics server", "error", err)
		}
	}
}
