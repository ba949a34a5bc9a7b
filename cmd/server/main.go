package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Clark-Hu/kvartali/internal/auth"
	"github.com/Clark-Hu/kvartali/internal/catalog"
	"github.com/Clark-Hu/kvartali/internal/config"
	"github.com/Clark-Hu/kvartali/internal/fault"
	httpserver "github.com/Clark-Hu/kvartali/internal/http"
	"github.com/Clark-Hu/kvartali/internal/logging"
	"github.com/Clark-Hu/kvartali/internal/metrics"
	"github.com/Clark-Hu/kvartali/internal/ratingstore"
	"github.com/Clark-Hu/kvartali/internal/repository"
	"github.com/Clark-Hu/kvartali/internal/store"
)

func main() {
	if err := run(); err != nil {
		logger := logging.Logger()
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stdout})
	logger := logging.Component("server")

	cat, diags := loadCatalog(ctx, cfg, logger)
	for _, d := range diags {
		metrics.CatalogDiagnostics.WithLabelValues(d.Field).Inc()
	}

	g, gctx := errgroup.WithContext(ctx)

	var (
		ratings ratingstore.Store
		db      *store.Store
	)
	if cfg.DBURL == "" {
		logger.Warn().Msg("DB_URL not set, ratings are kept in memory and lost on restart")
		ratings = ratingstore.NewMemory()
	} else {
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		db, err = store.New(dbCtx, cfg.DBURL, store.OptionsFromConfig(cfg, logging.Logger()))
		cancel()
		if err != nil {
			return err
		}
		defer db.Close()

		pg := ratingstore.NewPostgres(db, repository.New(db), logging.Logger())
		ratings = pg
		g.Go(func() error {
			return fault.Guard(logger, "ratingstore", func() error { return pg.Run(gctx) })
		})
	}

	snapshot, err := ratingstore.Attach(ratings)
	if err != nil {
		return err
	}
	defer snapshot.Close()

	issuer, err := auth.NewIssuer(cfg.AuthSecret, cfg.TokenTTL())
	if err != nil {
		return err
	}

	server := httpserver.New(cfg, httpserver.Dependencies{
		DB:       db,
		Ratings:  ratings,
		Snapshot: snapshot,
		Catalog:  cat,
		Notices:  diags,
		Issuer:   issuer,
	}, logging.Logger())

	g.Go(func() error {
		err := fault.Guard(logger, "http", func() error { return server.Start(gctx) })
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.Warn().Err(serr).Msg("graceful shutdown error")
	}
	logger.Info().Msg("server stopped")
	return err
}

func loadCatalog(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*catalog.Catalog, []catalog.Diagnostic) {
	src := catalog.Sources{Path: cfg.CatalogPath}
	if cfg.CatalogURL != "" {
		remote, err := catalog.NewHTTPSource(cfg.CatalogURL, cfg.CatalogTimeout(), logging.Component("catalog"))
		if err != nil {
			logger.Warn().Err(err).Msg("ignoring CATALOG_URL")
		} else {
			src.Remote = remote
		}
	}
	loadCtx, cancel := context.WithTimeout(ctx, 4*cfg.CatalogTimeout())
	defer cancel()
	return catalog.Load(loadCtx, src, logging.Component("catalog"))
}
