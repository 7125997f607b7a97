package manifest

import (
	"context"
	"database/sql"
	"time"

	"github.com/arkilian/chunkstore/internal/bloom"
	storeerrors "github.com/arkilian/chunkstore/internal/errors"
	"github.com/arkilian/chunkstore/pkg/types"
)

// mergeZoneMap folds components into the zone map of entity and returns the
// number of chunks registered for it so far.
func mergeZoneMap(ctx context.Context, tx *sql.Tx, entity types.EntityPath, components *bloom.Filter) (int64, error) {
	var (
		blob      []byte
		numChunks int64
	)
	err := tx.QueryRowContext(ctx,
		"SELECT component_bloom, num_chunks FROM entity_zone_maps WHERE entity_path = ?",
		entity.String(),
	).Scan(&blob, &numChunks)

	merged := bloom.New(componentFilterBits, componentFilterHashes)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return 0, storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to read zone map", err)
	default:
		existing, err := bloom.Decode(blob)
		if err != nil {
			return 0, storeerrors.NewManifestError(storeerrors.CodeCorruptionDetected, "invalid zone map", err)
		}
		merged = existing
	}
	if err := merged.Merge(components); err != nil {
		return 0, storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to merge zone map", err)
	}

	out, err := merged.MarshalBinary()
	if err != nil {
		return 0, storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to encode zone map", err)
	}
	numChunks++
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entity_zone_maps (entity_path, component_bloom, num_chunks, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_path) DO UPDATE SET
			component_bloom = excluded.component_bloom,
			num_chunks = excluded.num_chunks,
			updated_at = excluded.updated_at`,
		entity.String(), out, numChunks, time.Now().Unix(),
	)
	if err != nil {
		return 0, storeerrors.NewManifestError(storeerrors.CodeWriteConflict, "failed to write zone map", err)
	}
	return numChunks, nil
}

// ZoneMap returns the union of the component blooms of every chunk ever
// registered for entity, or nil if there is none.
func (c *SQLiteCatalog) ZoneMap(ctx context.Context, entity types.EntityPath) (*bloom.Filter, error) {
	var blob []byte
	err := c.readDB.QueryRowContext(ctx,
		"SELECT component_bloom FROM entity_zone_maps WHERE entity_path = ?",
		entity.String(),
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeerrors.NewManifestError(storeerrors.CodeUnexpected, "failed to read zone map", err)
	}
	f, err := bloom.Decode(blob)
	if err != nil {
		return nil, storeerrors.NewManifestError(storeerrors.CodeCorruptionDetected, "invalid zone map", err)
	}
	return f, nil
}
