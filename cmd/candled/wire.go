//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/rickgao/candled/internal/api"
	"github.com/rickgao/candled/internal/history"
	"github.com/rickgao/candled/internal/store"
	"github.com/rickgao/candled/internal/writer"
)

var baseSet = wire.NewSet(provideConfig, provideLogger)

var storeSet = wire.NewSet(providePool, store.New)

func initApp(ctx context.Context, path configPath) (*app, func(), error) {
	panic(wire.Build(
		baseSet,
		storeSet,
		provideClient,
		provideRegistry,
		provideMetrics,
		writer.NewCandleLoader,
		provideSessionOpener,
		provideDownloader,
		provideScheduler,
		provideMetricsServer,
		wire.Bind(new(history.ArchiveSource), new(*api.Client)),
		wire.Bind(new(history.CandleStore), new(*store.Store)),
		wire.Bind(new(history.HistoryDownloader), new(*history.Downloader)),
		wire.Struct(new(app), "*"),
	))
}

func initMigrator(path configPath) (*migration, func(), error) {
	panic(wire.Build(
		baseSet,
		provideMigrator,
		wire.Struct(new(migration), "*"),
	))
}

func initStore(ctx context.Context, path configPath) (*storeEnv, func(), error) {
	panic(wire.Build(
		baseSet,
		storeSet,
		wire.Struct(new(storeEnv), "*"),
	))
}
