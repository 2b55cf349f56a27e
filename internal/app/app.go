// Package app assembles the report engine from configuration. The server and
// the reportctl tool share it so both run the same cache and pipeline.
package app

import (
	"context"
	"errors"
	"fmt"

	reportapp "github.com/orchard/backend/internal/application/report"
	"github.com/orchard/backend/internal/infrastructure/cache"
	"github.com/orchard/backend/internal/infrastructure/config"
	"github.com/orchard/backend/internal/infrastructure/export"
	"github.com/orchard/backend/internal/infrastructure/logger"
	"github.com/orchard/backend/internal/infrastructure/persistence"
	"github.com/orchard/backend/internal/infrastructure/storage"
	"github.com/orchard/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Components holds everything built by New. Close releases them in reverse
// order of creation.
type Components struct {
	DB       *persistence.Database
	Repo     *persistence.GormFarmQueryRepository
	Cache    *cache.Backend
	Pipeline *export.Pipeline
	Service  *reportapp.ReportService

	closers []func() error
}

// Options tunes New for the calling binary
type Options struct {
	// Metrics records cache and export outcomes; nil disables them
	Metrics *telemetry.ReportMetrics
	// DBTracing registers otelgorm on the connection when set
	DBTracing *telemetry.DBTracingPlugin
	// SkipPDF leaves the pipeline without a Chrome converter
	SkipPDF bool
}

// New connects the database, builds the cache backend and export pipeline,
// and wires the report service on top of them.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*Components, error) {
	c := &Components{}

	dbOpts := []persistence.Option{
		persistence.WithLogger(log, logger.MapGormLogLevel(cfg.Log.Level)),
		persistence.WithSlowQueryThreshold(cfg.Telemetry.DBSlowQueryThresh),
	}
	if opts.DBTracing != nil {
		dbOpts = append(dbOpts, persistence.WithTracing(opts.DBTracing))
	}
	db, err := persistence.NewDatabase(&cfg.Database, dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	c.DB = db
	c.closers = append(c.closers, db.Close)
	c.Repo = persistence.NewGormFarmQueryRepository(db.DB)

	backend, err := cache.NewBackendFromConfig(cfg.Report, cfg.Redis, log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("build report cache: %w", err)
	}
	c.Cache = backend
	c.closers = append(c.closers, backend.Close)

	artifacts, err := storage.NewFromConfig(ctx, &cfg.Storage, log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("build artifact storage: %w", err)
	}

	pipelineOpts := []export.Option{
		export.WithTitle(cfg.Export.Title),
		export.WithPipelineLogger(log),
	}
	if artifacts != nil {
		pipelineOpts = append(pipelineOpts, export.WithArtifactStorage(artifacts))
	}
	if cfg.Export.PDFEnabled && !opts.SkipPDF {
		converter := export.NewChromedpConverter(export.ChromedpConfig{
			RemoteURL: cfg.Export.ChromeURL,
			Timeout:   cfg.Export.RenderTimeout,
			Logger:    log,
		})
		c.closers = append(c.closers, converter.Close)
		pipelineOpts = append(pipelineOpts, export.WithPDFConverter(converter))
	}

	cacheOpts := []cache.ReportCacheOption{
		cache.WithTTL(cfg.Report.CacheTTL),
		cache.WithComputeTimeout(cfg.Report.ComputeTimeout),
		cache.WithReportCacheLogger(log),
	}
	if opts.Metrics != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics(opts.Metrics))
		pipelineOpts = append(pipelineOpts, export.WithMetrics(opts.Metrics))
	}
	c.Pipeline = export.NewPipeline(pipelineOpts...)

	aggregator := reportapp.NewAggregator(c.Repo,
		reportapp.WithCurrency(cfg.Report.Currency),
		reportapp.WithLoadWorkers(cfg.Report.LoadWorkers),
		reportapp.WithAggregatorLogger(log),
	)
	c.Service = reportapp.NewReportService(
		reportapp.NewAccessGate(c.Repo, log),
		aggregator,
		cache.NewReportCache(backend.Store, cacheOpts...),
		backend.Versions,
		reportapp.WithExporter(c.Pipeline),
		reportapp.WithForceRefreshEnabled(cfg.Report.ForceRefreshEnabled),
		reportapp.WithServiceLogger(log),
	)
	return c, nil
}

// Close releases every component, newest first
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
