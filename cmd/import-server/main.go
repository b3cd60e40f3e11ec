// Command import-server accepts product batches over HTTP and imports them
// into the catalog.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/catalog-importer/internal/app"
	"github.com/mohammed-shakir/catalog-importer/internal/core/config"
	"github.com/mohammed-shakir/catalog-importer/internal/core/server"
	"github.com/mohammed-shakir/catalog-importer/internal/logger"
	"github.com/mohammed-shakir/catalog-importer/internal/metrics"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:   cfg.LogLevel,
		Console: !cfg.LogJSON,
		Service: "import-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("setup failed", "err", err)
		return 1
	}
	defer func() { _ = a.Close() }()

	p := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	if cfg.Metrics.Enabled {
		metrics.Serve(ctx, p, metrics.Config{Addr: cfg.Metrics.Addr, Path: cfg.Metrics.Path}, appLog)
	}

	appLog.Info("starting import server", "addr", cfg.Addr, "version", Version, "api", cfg.APIURL)
	if err := server.Run(ctx, cfg, appLog, server.Deps{
		Importer: a.Importer,
		Checks:   a.Checks,
		Metrics:  p.Handler(),
	}); err != nil {
		appLog.Error("server exited", "err", err)
		return 1
	}
	return 0
}
