package archive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/arkilian/chunkstore/internal/chunk"
	storeerrors "github.com/arkilian/chunkstore/internal/errors"
	"github.com/arkilian/chunkstore/internal/manifest"
	"github.com/arkilian/chunkstore/internal/storage"
	"github.com/arkilian/chunkstore/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// objectSuffix is appended to every archived chunk's key.
const objectSuffix = ".chunk.sz"

// Inserter receives loaded chunks. *store.ChunkStore implements it.
type Inserter interface {
	InsertChunk(c *chunk.Chunk) ([]store.Event, error)
}

// Config configures an Archiver.
type Config struct {
	// Prefix is the object key prefix chunks are stored under.
	Prefix string
	// Concurrency bounds parallel object transfers.
	Concurrency int
	// CacheDir caches downloaded objects on local disk when set.
	CacheDir string

	Metrics *Metrics
}

// Archiver saves chunks to object storage and loads them back, keeping the
// manifest catalog in step.
type Archiver struct {
	storage storage.ObjectStorage
	catalog manifest.Catalog
	fetcher *storage.BatchFetcher
	cfg     Config
	logger  *zap.Logger
}

// New creates an archiver over objects and catalog.
func New(objects storage.ObjectStorage, catalog manifest.Catalog, cfg Config, logger *zap.Logger) *Archiver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		storage: objects,
		catalog: catalog,
		fetcher: storage.NewBatchFetcher(objects, cfg.Concurrency, cfg.CacheDir),
		cfg:     cfg,
		logger:  logger.Named("archive"),
	}
}

// Key returns the object key c is archived under.
func (a *Archiver) Key(c *chunk.Chunk) string {
	key := path.Join(a.cfg.Prefix, c.EntityPath().String(), c.ID().String()+objectSuffix)
	return strings.TrimPrefix(key, "/")
}

// Save uploads chunks and registers them in the catalog. It returns the
// catalog entries in the order of chunks. Saving an archived chunk again
// is harmless.
func (a *Archiver) Save(ctx context.Context, chunks []*chunk.Chunk) ([]*manifest.Entry, error) {
	entries := make([]*manifest.Entry, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			entry, err := a.save(ctx, c)
			if err != nil {
				a.cfg.Metrics.observeFailure("save")
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.Info("Saved chunks", zap.Int("num_chunks", len(chunks)))
	return entries, nil
}

func (a *Archiver) save(ctx context.Context, c *chunk.Chunk) (*manifest.Entry, error) {
	data, err := Encode(c)
	if err != nil {
		return nil, err
	}

	key := a.Key(c)
	if _, err := a.storage.Put(ctx, key, data); err != nil {
		return nil, storeerrors.NewStorageError(storeerrors.CodeUploadFailed,
			fmt.Sprintf("failed to upload chunk %s", c.ID()), err)
	}

	entry := manifest.EntryFor(c, key)
	if err := a.catalog.Register(ctx, entry); err != nil {
		return nil, err
	}

	a.cfg.Metrics.observeSave(len(data))
	a.logger.Debug("Saved chunk",
		zap.Stringer("chunk_id", c.ID()),
		zap.String("object_key", key),
		zap.Int("size_bytes", len(data)))
	return entry, nil
}

// LoadResult summarizes a Load.
type LoadResult struct {
	// Matched is the number of catalog entries that passed the filter.
	Matched int
	// Loaded is the number of chunks inserted.
	Loaded int
	// Rows is the number of rows inserted.
	Rows      int
	CacheHits int
	Fetches   int
}

// Load inserts every archived chunk matching filter into dst. Static chunks
// are fetched first. Chunks that fail to load are skipped and their errors
// combined into the returned error, alongside a result for what succeeded.
func (a *Archiver) Load(ctx context.Context, filter manifest.Filter, dst Inserter) (*LoadResult, error) {
	entries, err := a.catalog.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	req := &storage.BatchRequest{
		Keys:     make([]string, len(entries)),
		Priority: make([]int, len(entries)),
	}
	for i, e := range entries {
		req.Keys[i] = e.ObjectKey
		if !e.IsStatic {
			req.Priority[i] = 1
		}
	}
	fetched, err := a.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, storeerrors.NewArchiveError(storeerrors.CodeDownloadFailed, "failed to fetch chunks", err)
	}
	a.cfg.Metrics.observeCacheHits(fetched.CacheHits)

	res := &LoadResult{
		Matched:   len(entries),
		CacheHits: fetched.CacheHits,
		Fetches:   fetched.Fetches,
	}
	var errs []error
	for _, e := range entries {
		c, err := a.load(e, fetched)
		if err == nil {
			_, err = dst.InsertChunk(c)
		}
		if err != nil {
			a.cfg.Metrics.observeFailure("load")
			errs = append(errs, err)
			continue
		}
		a.cfg.Metrics.observeLoad(len(fetched.Objects[e.ObjectKey]))
		res.Loaded++
		res.Rows += c.NumRows()
	}

	a.logger.Info("Loaded chunks",
		zap.Int("matched", res.Matched),
		zap.Int("loaded", res.Loaded),
		zap.Int("cache_hits", res.CacheHits),
		zap.Int("num_errors", len(errs)))
	return res, storeerrors.Combine(errs...)
}

func (a *Archiver) load(e *manifest.Entry, fetched *storage.BatchResult) (*chunk.Chunk, error) {
	if err, ok := fetched.Errors[e.ObjectKey]; ok {
		return nil, storeerrors.NewStorageError(storeerrors.CodeDownloadFailed,
			fmt.Sprintf("failed to download chunk %s", e.ChunkID), err)
	}
	data, ok := fetched.Objects[e.ObjectKey]
	if !ok {
		return nil, storeerrors.NewStorageError(storeerrors.CodeObjectNotFound,
			fmt.Sprintf("chunk %s was not fetched", e.ChunkID), nil)
	}

	c, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if c.ID() != e.ChunkID {
		return nil, storeerrors.NewManifestError(storeerrors.CodeCorruptionDetected,
			fmt.Sprintf("object %s holds chunk %s, catalog expects %s", e.ObjectKey, c.ID(), e.ChunkID), nil)
	}
	return c, nil
}

// Remove deletes an archived chunk's object and forgets it in the catalog.
func (a *Archiver) Remove(ctx context.Context, id chunk.ChunkID) error {
	entry, err := a.catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := a.storage.Delete(ctx, entry.ObjectKey); err != nil {
		return storeerrors.NewStorageError(storeerrors.CodeUnexpected,
			fmt.Sprintf("failed to delete chunk %s", id), err)
	}
	return a.catalog.Delete(ctx, id)
}
