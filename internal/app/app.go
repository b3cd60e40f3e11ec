// Package app wires the importer and its optional collaborators from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohammed-shakir/catalog-importer/internal/catalog"
	"github.com/mohammed-shakir/catalog-importer/internal/core/config"
	"github.com/mohammed-shakir/catalog-importer/internal/core/health"
	"github.com/mohammed-shakir/catalog-importer/internal/core/httpclient"
	"github.com/mohammed-shakir/catalog-importer/internal/events"
	"github.com/mohammed-shakir/catalog-importer/internal/footprint"
	"github.com/mohammed-shakir/catalog-importer/internal/importer"
	"github.com/mohammed-shakir/catalog-importer/internal/ledger"
	h3mapper "github.com/mohammed-shakir/catalog-importer/internal/mapper/h3"
)

const (
	tokenSubject = "catalog-importer"
	tokenRole    = "importer"
)

type App struct {
	Importer *importer.Importer
	// Checks back the readiness probe.
	Checks map[string]health.Check

	closers []func() error
}

// Build opens every collaborator cfg enables. On error, whatever was opened
// is closed again.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	a := &App{Checks: map[string]health.Check{}}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	norm, err := a.normalizer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []catalog.Option{catalog.WithRequestTimeout(cfg.RequestTimeout)}
	if cfg.JWTSecret != "" {
		ts, err := catalog.NewHMACTokenSource(cfg.JWTSecret, tokenSubject, 0, tokenRole)
		if err != nil {
			return nil, err
		}
		opts = append(opts, catalog.WithTokenSource(ts))
	}
	hc := httpclient.NewOutbound(httpclient.Options{Timeout: cfg.RequestTimeout, Parallel: cfg.Workers})
	cat, err := catalog.New(log, hc, cfg.APIURL, opts...)
	if err != nil {
		return nil, err
	}

	led, err := a.ledger(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var pub importer.ChangePublisher
	if cfg.Events.Enabled {
		p, err := events.NewPublisher(events.Config{
			Brokers:      cfg.Events.Brokers,
			Topic:        cfg.Events.Topic,
			Res:          cfg.Events.H3Res,
			DefaultLayer: cfg.DefaultCollection,
		}, log, h3mapper.New())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		pub = p
	}

	policy, err := importer.ParsePolicy(cfg.OnFailure)
	if err != nil {
		return nil, err
	}
	imp, err := importer.New(norm, cat, importer.Options{
		Logger:                          log,
		Workers:                         cfg.Workers,
		Policy:                          policy,
		MaxConsecutiveTransportFailures: cfg.MaxConsecutiveTransportFailures,
		DefaultCollection:               cfg.DefaultCollection,
		DefaultCRS:                      cfg.FootprintDefaultCRS,
		Ledger:                          led,
		Publisher:                       pub,
	})
	if err != nil {
		return nil, err
	}
	a.Importer = imp

	log.Info("importer ready",
		"api", cfg.APIURL,
		"normalizer", cfg.Normalizer,
		"ledger", cfg.Ledger.Driver,
		"events", cfg.Events.Enabled,
		"workers", cfg.Workers,
		"on_failure", string(policy))
	return a, nil
}

func (a *App) normalizer(ctx context.Context, cfg config.Config) (footprint.Normalizer, error) {
	if cfg.Normalizer != "postgis" {
		return footprint.NewEmbedded(), nil
	}
	pool, err := pgxpool.New(ctx, cfg.PostGISDSN)
	if err != nil {
		return nil, fmt.Errorf("postgis pool: %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgis ping: %w", err)
	}
	a.Checks["postgis"] = pool.Ping
	return footprint.NewPostGIS(pool), nil
}

func (a *App) ledger(ctx context.Context, cfg config.Config) (ledger.Ledger, error) {
	switch cfg.Ledger.Driver {
	case "memory":
		return ledger.NewMemory(cfg.Ledger.Size), nil
	case "redis":
		r, err := ledger.NewRedis(ctx, cfg.Ledger.RedisAddr, cfg.Ledger.Prefix, cfg.Ledger.TTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		a.Checks["redis"] = r.Ping
		return r, nil
	default:
		return ledger.Nop{}, nil
	}
}

// Close releases collaborators in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
