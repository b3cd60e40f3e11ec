// Command importer imports a file of product records into the catalog.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/catalog-importer/internal/app"
	"github.com/mohammed-shakir/catalog-importer/internal/core/config"
	"github.com/mohammed-shakir/catalog-importer/internal/logger"
	"github.com/mohammed-shakir/catalog-importer/internal/metrics"
	"github.com/mohammed-shakir/catalog-importer/internal/product"
)

var Version = "dev"

const (
	exitOK      = 0
	exitSetup   = 1
	exitAborted = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := config.FromEnv()

	fs := flag.NewFlagSet("importer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var productMode bool
	fs.StringVar(&cfg.InputPath, "input", cfg.InputPath, "JSON file of product records")
	fs.StringVar(&cfg.InputPath, "i", cfg.InputPath, "shorthand for -input")
	fs.StringVar(&cfg.APIURL, "api", cfg.APIURL, "catalog API base url")
	fs.StringVar(&cfg.APIURL, "a", cfg.APIURL, "shorthand for -api")
	fs.BoolVar(&productMode, "product", false, "import products (collection import is not implemented)")
	fs.BoolVar(&productMode, "p", false, "shorthand for -product")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent records")
	fs.StringVar(&cfg.OnFailure, "on-failure", cfg.OnFailure, "continue or abort after a failed record")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "timeout per catalog request")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitSetup
	}

	zl := logger.Build(logger.Config{
		Level:   cfg.LogLevel,
		Console: !cfg.LogJSON,
		Service: "importer",
	}, stderr)
	log := logger.NewSlog(&zl)
	ctx = logger.WithRunID(ctx, logger.NewID())

	if cfg.InputPath == "" {
		log.Error("no input file, use -input")
		return exitSetup
	}

	if cfg.Metrics.Enabled {
		mcfg := metrics.Config{
			Enabled: true,
			Addr:    cfg.Metrics.Addr,
			Path:    cfg.Metrics.Path,
			Build:   metrics.BuildInfo{Version: Version},
		}
		metrics.Serve(ctx, metrics.Init(mcfg), mcfg, log)
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("setup failed", "err", err)
		return exitSetup
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close failed", "err", err)
		}
	}()

	if !productMode {
		err := a.Importer.ImportCollection(ctx, cfg.InputPath)
		log.Error("import failed", "input", cfg.InputPath, "err", err)
		return exitSetup
	}

	outcomes, err := a.Importer.ImportFile(ctx, cfg.InputPath)
	var pe *product.InputParseError
	if errors.As(err, &pe) {
		log.Error("input rejected, nothing imported", "err", err)
		return exitSetup
	}

	enc := json.NewEncoder(stdout)
	for _, o := range outcomes {
		if encErr := enc.Encode(o); encErr != nil {
			fmt.Fprintf(stderr, "write outcome: %v\n", encErr)
			return exitSetup
		}
	}
	if err != nil {
		return exitAborted
	}
	return exitOK
}
