// Package app wires the chunk store components together from configuration.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/arkilian/chunkstore/internal/archive"
	"github.com/arkilian/chunkstore/internal/chunk"
	"github.com/arkilian/chunkstore/internal/config"
	storeerrors "github.com/arkilian/chunkstore/internal/errors"
	"github.com/arkilian/chunkstore/internal/logger"
	"github.com/arkilian/chunkstore/internal/manifest"
	"github.com/arkilian/chunkstore/internal/observability"
	"github.com/arkilian/chunkstore/internal/query"
	"github.com/arkilian/chunkstore/internal/storage"
	"github.com/arkilian/chunkstore/internal/store"
	"github.com/arkilian/chunkstore/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// App owns one in-memory store together with the archive it is loaded from
// and saved to.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	registry *prometheus.Registry
	objects  storage.ObjectStorage
	catalog  *manifest.SQLiteCatalog
	archiver *archive.Archiver
	store    *store.ChunkStore
	engine   *query.Engine
	stats    *observability.QueryStats

	restoreGlobals func()
}

// New resolves and validates cfg, then opens storage and the manifest.
// Logs are written to logOutput. The app logger also becomes zap's global
// logger until Close, so package-level warnings reach the same output.
func New(ctx context.Context, cfg *config.Config, logOutput io.Writer) (*App, error) {
	// Resolve paths and validate
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	log := logger.NewWithConfig(logOutput, cfg.Logging)
	a := &App{
		cfg:      cfg,
		logger:   log,
		registry: prometheus.NewRegistry(),
		stats:    observability.NewQueryStats(cfg.Query.StatsWindow),
	}

	objects, err := openStorage(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.objects = objects

	a.catalog, err = manifest.NewCatalog(cfg.ManifestPath(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	storeMetrics := store.NewMetrics()
	queryMetrics := query.NewMetrics()
	archiveMetrics := archive.NewMetrics()
	for _, collectors := range [][]prometheus.Collector{
		storeMetrics.PrometheusCollectors(),
		queryMetrics.PrometheusCollectors(),
		archiveMetrics.PrometheusCollectors(),
	} {
		a.registry.MustRegister(collectors...)
	}

	a.store = store.New(store.Config{Metrics: storeMetrics}, log)
	a.engine = query.NewEngine(a.store, query.Config{Metrics: queryMetrics, Stats: a.stats}, log)
	a.archiver = archive.New(objects, a.catalog, archive.Config{
		Prefix:      cfg.Archive.Prefix,
		Concurrency: cfg.Archive.Concurrency,
		CacheDir:    cfg.Archive.CacheDir,
		Metrics:     archiveMetrics,
	}, log)

	a.restoreGlobals = zap.ReplaceGlobals(log)
	log.Debug("Chunk store opened",
		zap.String("data_dir", cfg.DataDir),
		zap.String("storage", cfg.Storage.Type),
		zap.String("store_id", string(a.store.ID())))
	return a, nil
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.ObjectStorage, error) {
	switch cfg.Storage.Type {
	case config.StorageLocal:
		return storage.NewLocalStorage(cfg.Storage.Path)
	case config.StorageS3:
		s3Cfg := storage.DefaultS3Config()
		if cfg.Storage.S3.Region != "" {
			s3Cfg.Region = cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = cfg.Storage.S3.UsePathStyle
		s3Cfg.MultipartConfig.PartSize = int64(cfg.Storage.S3.PartSizeMB) * 1024 * 1024
		s3Cfg.Retry.MaxRetries = cfg.Storage.S3.MaxRetries
		return storage.NewS3Storage(ctx, cfg.Storage.S3.Bucket, s3Cfg, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Logger() *zap.Logger { return a.logger }

// Registry holds the store, query and archive metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

func (a *App) Store() *store.ChunkStore { return a.store }

func (a *App) Engine() *query.Engine { return a.engine }

func (a *App) Archiver() *archive.Archiver { return a.archiver }

func (a *App) Catalog() manifest.Catalog { return a.catalog }

// QueryStats tracks which columns and indexes queries touch.
func (a *App) QueryStats() *observability.QueryStats { return a.stats }

// Ingest inserts chunks into the store and archives them.
func (a *App) Ingest(ctx context.Context, chunks []*chunk.Chunk) ([]*manifest.Entry, error) {
	var errs []error
	accepted := make([]*chunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, err := a.store.InsertChunk(c); err != nil {
			a.logger.Warn("Rejected chunk", zap.Stringer("chunk_id", c.ID()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if c.IsEmpty() {
			continue
		}
		accepted = append(accepted, c)
	}

	entries, err := a.archiver.Save(ctx, accepted)
	if err != nil {
		errs = append(errs, err)
	}
	return entries, storeerrors.Combine(errs...)
}

// LoadFor loads from the archive every chunk expr could read.
func (a *App) LoadFor(ctx context.Context, expr query.QueryExpression) (*archive.LoadResult, error) {
	total := &archive.LoadResult{}
	var errs []error
	for _, f := range archiveFilters(expr) {
		res, err := a.archiver.Load(ctx, f, a.store)
		if err != nil {
			errs = append(errs, err)
		}
		if res != nil {
			total.Matched += res.Matched
			total.Loaded += res.Loaded
			total.Rows += res.Rows
			total.CacheHits += res.CacheHits
			total.Fetches += res.Fetches
		}
	}
	return total, storeerrors.Combine(errs...)
}

// archiveFilters translates the data needs of expr into catalog filters,
// one per viewed entity.
func archiveFilters(expr query.QueryExpression) []manifest.Filter {
	base := manifest.Filter{StaticOnly: true}
	if expr.FilteredIndex != nil {
		base = manifest.Filter{
			Timeline:      expr.FilteredIndex.Name,
			Range:         expr.IndexRange(),
			ExcludeStatic: !expr.IncludesStatic(),
		}
	}

	if expr.ViewContents == nil {
		return []manifest.Filter{base}
	}
	filters := make([]manifest.Filter, 0, len(expr.ViewContents))
	for entity, components := range expr.ViewContents {
		f := base
		f.EntityPath = types.ParseEntityPath(string(entity))
		if len(components) == 1 {
			f.Component = string(components[0])
		}
		filters = append(filters, f)
	}
	return filters
}

// LoadAll loads the whole archive into the store.
func (a *App) LoadAll(ctx context.Context) (*archive.LoadResult, error) {
	return a.archiver.Load(ctx, manifest.Filter{}, a.store)
}

// Reconcile compares the manifest with the objects under the archive prefix.
func (a *App) Reconcile(ctx context.Context) (*manifest.ReconciliationReport, error) {
	return manifest.Reconcile(ctx, a.catalog, a.objects, a.cfg.Archive.Prefix)
}

// Close releases the manifest and flushes the logger.
func (a *App) Close() error {
	err := a.catalog.Close()
	_ = a.logger.Sync()
	if a.restoreGlobals != nil {
		a.restoreGlobals()
		a.restoreGlobals = nil
	}
	return err
}
