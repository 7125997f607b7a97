package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arkilian/chunkstore/internal/bloom"
	"github.com/arkilian/chunkstore/internal/chunk"
	storeerrors "github.com/arkilian/chunkstore/internal/errors"
	"github.com/arkilian/chunkstore/pkg/types"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Component blooms share one shape so that entity zone maps can be merged
// from them.
const (
	componentFilterBits   = 2048
	componentFilterHashes = 5
)

// Catalog tracks archived chunks in manifest.db.
type Catalog interface {
	// Register records an archived chunk. Registering a chunk id twice is a
	// no-op.
	Register(ctx context.Context, entry *Entry) error

	// Get retrieves a single entry by chunk id.
	Get(ctx context.Context, id chunk.ChunkID) (*Entry, error)

	// Find returns the entries matching filter, ordered by entity path then
	// chunk id.
	Find(ctx context.Context, filter Filter) ([]*Entry, error)

	// Delete forgets a chunk. The archived object is left untouched.
	Delete(ctx context.Context, id chunk.ChunkID) error

	// Count returns the number of registered chunks.
	Count(ctx context.Context) (int64, error)

	// Close closes the catalog database connection.
	Close() error
}

// TimelineRange is the span of one timeline within a chunk.
type TimelineRange struct {
	Timeline types.Timeline
	Range    types.TimeRange
}

// Entry describes one archived chunk.
type Entry struct {
	ChunkID       chunk.ChunkID
	EntityPath    types.EntityPath
	ObjectKey     string
	NumRows       int
	HeapSizeBytes uint64
	IsStatic      bool

	// MinRowID and MaxRowID are zero for empty chunks.
	MinRowID chunk.RowID
	MaxRowID chunk.RowID

	// TimeRanges is sorted by timeline name.
	TimeRanges []TimelineRange

	// Components holds every component name and descriptor of the chunk.
	Components *bloom.Filter

	CreatedAt time.Time
}

// EntryFor describes c as stored under objectKey.
func EntryFor(c *chunk.Chunk, objectKey string) *Entry {
	e := &Entry{
		ChunkID:       c.ID(),
		EntityPath:    c.EntityPath(),
		ObjectKey:     objectKey,
		NumRows:       c.NumRows(),
		HeapSizeBytes: c.HeapSizeBytes(),
		IsStatic:      c.IsStatic(),
		Components:    componentFilter(c.ComponentDescriptors()),
		CreatedAt:     time.Now(),
	}
	if lo, hi, ok := c.RowIDRange(); ok {
		e.MinRowID, e.MaxRowID = lo, hi
	}
	for _, tc := range c.Timelines() {
		r := tc.TimeRange()
		if r.IsEmpty() {
			continue
		}
		e.TimeRanges = append(e.TimeRanges, TimelineRange{Timeline: tc.Timeline(), Range: r})
	}
	return e
}

func componentFilter(descs []types.ComponentDescriptor) *bloom.Filter {
	f := bloom.New(componentFilterBits, componentFilterHashes)
	for _, d := range descs {
		f.AddString(string(d.ComponentName))
		f.AddString(d.String())
	}
	return f
}

// MayContain reports whether the chunk may hold component, given either as
// a bare component name or as a full descriptor string. False positives are
// possible, false negatives are not.
func (e *Entry) MayContain(component string) bool {
	return e.Components == nil || e.Components.ContainsString(component)
}

// TimeRange returns the chunk's span on timeline.
func (e *Entry) TimeRange(timeline string) (types.TimeRange, bool) {
	for _, tr := range e.TimeRanges {
		if tr.Timeline.Name == timeline {
			return tr.Range, true
		}
	}
	return types.EmptyTimeRange, false
}

// Filter selects catalog entries. The zero Filter matches everything.
type Filter struct {
	// EntityPath restricts to a single entity when set.
	EntityPath types.EntityPath

	// Component restricts to chunks that may hold the component, by name or
	// descriptor string.
	Component string

	// Timeline restricts temporal chunks to those with rows on Timeline
	// within Range. Static chunks pass unless ExcludeStatic is set.
	Timeline string
	Range    types.TimeRange

	ExcludeStatic bool

	// StaticOnly restricts to static chunks.
	StaticOnly bool
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)
	logger *zap.Logger
}

// NewCatalog opens or creates the catalog at dbPath.
func NewCatalog(dbPath string, logger *zap.Logger) (*SQLiteCatalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	catalog := &SQLiteCatalog{
		db:     db,
		dbPath: dbPath,
		logger: logger.Named("manifest"),
	}
	if err := catalog.initSchema(); err != nil {
		db.Close()
		return nil, storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to initialize schema", err)
	}

	// Opened after the schema exists so readers never see a missing file.
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to open read database", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	catalog.readDB = readDB

	return catalog, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Register adds a chunk to the catalog and folds its components into the
// entity's zone map.
func (c *SQLiteCatalog) Register(ctx context.Context, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	components := entry.Components
	if components == nil {
		components = bloom.New(componentFilterBits, componentFilterHashes)
	}
	blob, err := components.MarshalBinary()
	if err != nil {
		return storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to encode component bloom", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storeerrors.NewManifestError(storeerrors.CodeWriteConflict, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var minRowID, maxRowID sql.NullString
	if entry.NumRows > 0 {
		minRowID = sql.NullString{String: entry.MinRowID.String(), Valid: true}
		maxRowID = sql.NullString{String: entry.MaxRowID.String(), Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO chunks (
			chunk_id, entity_path, object_key, num_rows, heap_size_bytes,
			is_static, min_row_id, max_row_id, component_bloom, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ChunkID.String(), entry.EntityPath.String(), entry.ObjectKey,
		entry.NumRows, int64(entry.HeapSizeBytes), entry.IsStatic,
		minRowID, maxRowID, blob, entry.CreatedAt.Unix(),
	)
	if err != nil {
		return storeerrors.NewManifestError(storeerrors.CodeWriteConflict, "failed to insert chunk", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	for _, tr := range entry.TimeRanges {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO chunk_time_ranges (chunk_id, timeline, time_type, min_time, max_time) VALUES (?, ?, ?, ?, ?)",
			entry.ChunkID.String(), tr.Timeline.Name, tr.Timeline.Type.String(), tr.Range.Min, tr.Range.Max,
		)
		if err != nil {
			return storeerrors.NewManifestError(storeerrors.CodeWriteConflict, "failed to insert time range", err)
		}
	}

	numChunks, err := mergeZoneMap(ctx, tx, entry.EntityPath, components)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeerrors.NewManifestError(storeerrors.CodeWriteConflict, "failed to commit transaction", err)
	}

	c.logger.Debug("Registered chunk",
		zap.Stringer("chunk_id", entry.ChunkID),
		zap.Stringer("entity_path", entry.EntityPath),
		zap.String("object_key", entry.ObjectKey),
		zap.Int("num_rows", entry.NumRows))
	c.logChunkCountThreshold(entry.EntityPath, numChunks)
	return nil
}

const selectEntry = `
	SELECT chunk_id, entity_path, object_key, num_rows, heap_size_bytes,
		is_static, min_row_id, max_row_id, component_bloom, created_at
	FROM chunks c`

// Get retrieves a single entry by chunk id.
func (c *SQLiteCatalog) Get(ctx context.Context, id chunk.ChunkID) (*Entry, error) {
	row := c.readDB.QueryRowContext(ctx, selectEntry+" WHERE chunk_id = ?", id.String())
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, storeerrors.NewManifestError(storeerrors.CodeEntryNotFound,
			fmt.Sprintf("chunk not found: %s", id), nil)
	}
	if err != nil {
		return nil, err
	}
	if err := c.loadTimeRanges(ctx, []*Entry{entry}); err != nil {
		return nil, err
	}
	return entry, nil
}

// Find returns the entries matching filter.
func (c *SQLiteCatalog) Find(ctx context.Context, filter Filter) ([]*Entry, error) {
	if filter.EntityPath != "" && filter.Component != "" {
		zm, err := c.ZoneMap(ctx, filter.EntityPath)
		if err != nil {
			return nil, err
		}
		if zm == nil || !zm.ContainsString(filter.Component) {
			return nil, nil
		}
	}

	query, args := buildFindQuery(filter)
	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to query chunks", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if filter.Component != "" && !entry.MayContain(filter.Component) {
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to iterate chunks", err)
	}

	if err := c.loadTimeRanges(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func buildFindQuery(filter Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.EntityPath != "" {
		conds = append(conds, "c.entity_path = ?")
		args = append(args, filter.EntityPath.String())
	}
	if filter.ExcludeStatic {
		conds = append(conds, "c.is_static = 0")
	}
	if filter.StaticOnly {
		conds = append(conds, "c.is_static = 1")
	}
	if filter.Timeline != "" {
		if filter.Range.IsEmpty() {
			conds = append(conds, "c.is_static = 1")
		} else {
			conds = append(conds, `(c.is_static = 1 OR EXISTS (
				SELECT 1 FROM chunk_time_ranges r
				WHERE r.chunk_id = c.chunk_id AND r.timeline = ? AND r.min_time <= ? AND r.max_time >= ?))`)
			args = append(args, filter.Timeline, filter.Range.Max, filter.Range.Min)
		}
	}

	query := selectEntry
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query + " ORDER BY c.entity_path, c.chunk_id", args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		id, entity, objectKey string
		numRows               int
		heapSize              int64
		isStatic              bool
		minRowID, maxRowID    sql.NullString
		blob                  []byte
		createdAt             int64
	)
	err := row.Scan(&id, &entity, &objectKey, &numRows, &heapSize, &isStatic, &minRowID, &maxRowID, &blob, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to scan chunk", err)
	}

	chunkID, err := chunk.ParseChunkID(id)
	if err != nil {
		return nil, storeerrors.NewManifestError(storeerrors.CodeCorruptionDetected, "invalid chunk id", err)
	}
	components, err := bloom.Decode(blob)
	if err != nil {
		return nil, storeerrors.NewManifestError(storeerrors.CodeCorruptionDetected, "invalid component bloom", err)
	}
	entry := &Entry{
		ChunkID:       chunkID,
		EntityPath:    types.EntityPath(entity),
		ObjectKey:     objectKey,
		NumRows:       numRows,
		HeapSizeBytes: uint64(heapSize),
		IsStatic:      isStatic,
		Components:    components,
		CreatedAt:     time.Unix(createdAt, 0),
	}
	if minRowID.Valid && maxRowID.Valid {
		lo, err := types.ParseTuid(minRowID.String)
		if err != nil {
			return nil, storeerrors.NewManifestError(storeerrors.CodeCorruptionDetected, "invalid min row id", err)
		}
		hi, err := types.ParseTuid(maxRowID.String)
		if err != nil {
			return nil, storeerrors.NewManifestError(storeerrors.CodeCorruptionDetected, "invalid max row id", err)
		}
		entry.MinRowID, entry.MaxRowID = chunk.RowID(lo), chunk.RowID(hi)
	}
	return entry, nil
}

// loadTimeRanges fills TimeRanges for entries in one round trip.
func (c *SQLiteCatalog) loadTimeRanges(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	byID := make(map[string]*Entry, len(entries))
	placeholders := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		id := e.ChunkID.String()
		byID[id] = e
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}

	rows, err := c.readDB.QueryContext(ctx,
		"SELECT chunk_id, timeline, time_type, min_time, max_time FROM chunk_time_ranges WHERE chunk_id IN ("+
			strings.Join(placeholders, ", ")+") ORDER BY chunk_id, timeline",
		args...)
	if err != nil {
		return storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to query time ranges", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, timeline, timeType string
			lo, hi                 int64
		)
		if err := rows.Scan(&id, &timeline, &timeType, &lo, &hi); err != nil {
			return storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to scan time range", err)
		}
		tt, err := types.ParseTimeType(timeType)
		if err != nil {
			return storeerrors.NewManifestError(storeerrors.CodeCorruptionDetected, "invalid time type", err)
		}
		e := byID[id]
		e.TimeRanges = append(e.TimeRanges, TimelineRange{
			Timeline: types.Timeline{Name: timeline, Type: tt},
			Range:    types.NewTimeRange(lo, hi),
		})
	}
	if err := rows.Err(); err != nil {
		return storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to iterate time ranges", err)
	}
	return nil
}

// Delete removes a chunk and its zone maps from the catalog. The entity's
// zone map keeps the chunk's components; blooms cannot forget.
func (c *SQLiteCatalog) Delete(ctx context.Context, id chunk.ChunkID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storeerrors.NewManifestError(storeerrors.CodeWriteConflict, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_time_ranges WHERE chunk_id = ?", id.String()); err != nil {
		return storeerrors.NewManifestError(storeerrors.CodeWriteConflict, "failed to delete time ranges", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE chunk_id = ?", id.String())
	if err != nil {
		return storeerrors.NewManifestError(storeerrors.CodeWriteConflict, "failed to delete chunk", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storeerrors.NewManifestError(storeerrors.CodeEntryNotFound,
			fmt.Sprintf("chunk not found: %s", id), nil)
	}

	if err := tx.Commit(); err != nil {
		return storeerrors.NewManifestError(storeerrors.CodeWriteConflict, "failed to commit transaction", err)
	}
	return nil
}

// Count returns the number of registered chunks.
func (c *SQLiteCatalog) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := c.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to count chunks", err)
	}
	return count, nil
}

// Close closes the catalog database connections.
func (c *SQLiteCatalog) Close() error {
	// Close read connection first, then write connection
	if err := c.readDB.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}

// chunkCountThresholds are the per-entity chunk counts at which a warning
// is emitted.
var chunkCountThresholds = []int64{100000, 10000, 1000}

// logChunkCountThreshold warns when an entity's chunk count reaches one of
// the thresholds exactly, so that each is reported once.
func (c *SQLiteCatalog) logChunkCountThreshold(entity types.EntityPath, count int64) {
	for _, threshold := range chunkCountThresholds {
		if count == threshold {
			c.logger.Warn("Entity chunk count crossed threshold, consider compacting before archiving",
				zap.Stringer("entity_path", entity),
				zap.Int64("num_chunks", count))
			return
		}
	}
}
