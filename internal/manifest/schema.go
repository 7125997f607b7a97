// Package manifest provides the catalog of archived chunks.
package manifest

// The catalog is a SQLite database (manifest.db) recording, for every chunk
// persisted to object storage, where it lives and enough statistics to
// decide whether a load needs it without fetching the object.

// CreateChunksTableSQL creates the core chunks table.
// component_bloom holds a serialized bloom filter over the chunk's
// component names and descriptors.
const CreateChunksTableSQL = `
CREATE TABLE IF NOT EXISTS chunks (
    chunk_id TEXT PRIMARY KEY,
    entity_path TEXT NOT NULL,
    object_key TEXT NOT NULL,
    num_rows INTEGER NOT NULL,
    heap_size_bytes INTEGER NOT NULL,
    is_static INTEGER NOT NULL DEFAULT 0,
    min_row_id TEXT,
    max_row_id TEXT,
    component_bloom BLOB NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateChunkTimeRangesTableSQL creates the per-timeline zone maps.
// Static chunks have no rows here.
const CreateChunkTimeRangesTableSQL = `
CREATE TABLE IF NOT EXISTS chunk_time_ranges (
    chunk_id TEXT NOT NULL,
    timeline TEXT NOT NULL,
    time_type TEXT NOT NULL,
    min_time INTEGER NOT NULL,
    max_time INTEGER NOT NULL,
    PRIMARY KEY (chunk_id, timeline),
    FOREIGN KEY (chunk_id) REFERENCES chunks(chunk_id) ON DELETE CASCADE
)`

// CreateEntityZoneMapsTableSQL creates the per-entity union of component
// blooms, used to skip whole entities before scanning their chunks.
const CreateEntityZoneMapsTableSQL = `
CREATE TABLE IF NOT EXISTS entity_zone_maps (
    entity_path TEXT PRIMARY KEY,
    component_bloom BLOB NOT NULL,
    num_chunks INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateIndexesSQL creates the indexes used by Find.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_chunks_entity ON chunks(entity_path, chunk_id)`,

	`CREATE INDEX IF NOT EXISTS idx_chunks_object ON chunks(object_key)`,

	// Covering index for time range pruning
	`CREATE INDEX IF NOT EXISTS idx_time_ranges_prune ON chunk_time_ranges(timeline, min_time, max_time, chunk_id)`,
}

// AllSchemaSQL returns all schema creation statements in order.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateChunksTableSQL,
		CreateChunkTimeRangesTableSQL,
		CreateEntityZoneMapsTableSQL,
	}
	return append(stmts, CreateIndexesSQL...)
}
