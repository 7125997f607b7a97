package manifest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arkilian/chunkstore/internal/chunk"
	"github.com/arkilian/chunkstore/internal/storage"
)

// ReconciliationReport contains the results of a manifest-storage reconciliation.
type ReconciliationReport struct {
	// DanglingEntries are manifest records whose object does not exist in storage.
	DanglingEntries []DanglingEntry
	// OrphanedObjects are storage objects with no corresponding manifest record.
	OrphanedObjects []string
	// TotalManifestEntries is the number of chunks checked.
	TotalManifestEntries int
	// TotalStorageObjects is the number of storage objects scanned.
	TotalStorageObjects int
	// RunAt is when the reconciliation was performed.
	RunAt time.Time
}

// DanglingEntry is a manifest record pointing to a missing storage object.
type DanglingEntry struct {
	ChunkID   chunk.ChunkID
	ObjectKey string
}

// HasIssues returns true if the report contains any dangling entries or orphaned objects.
func (r *ReconciliationReport) HasIssues() bool {
	return len(r.DanglingEntries) > 0 || len(r.OrphanedObjects) > 0
}

// Reconcile checks consistency between the catalog and the objects stored
// under prefix. Entries under prefix are checked against one listing; any
// other entry costs an Exists call.
func Reconcile(ctx context.Context, catalog Catalog, store storage.ObjectStorage, prefix string) (*ReconciliationReport, error) {
	report := &ReconciliationReport{RunAt: time.Now()}

	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list storage objects: %w", err)
	}
	report.TotalStorageObjects = len(objects)
	listed := make(map[string]bool, len(objects))
	for _, key := range objects {
		listed[key] = false
	}

	entries, err := catalog.Find(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list manifest entries: %w", err)
	}
	report.TotalManifestEntries = len(entries)

	for _, e := range entries {
		if _, ok := listed[e.ObjectKey]; ok {
			listed[e.ObjectKey] = true
			continue
		}
		exists := false
		if !strings.HasPrefix(e.ObjectKey, prefix) {
			if exists, err = store.Exists(ctx, e.ObjectKey); err != nil {
				return nil, fmt.Errorf("reconciliation: failed to check object %s: %w", e.ObjectKey, err)
			}
		}
		if !exists {
			report.DanglingEntries = append(report.DanglingEntries, DanglingEntry{
				ChunkID:   e.ChunkID,
				ObjectKey: e.ObjectKey,
			})
		}
	}

	for _, key := range objects {
		if !listed[key] {
			report.OrphanedObjects = append(report.OrphanedObjects, key)
		}
	}
	return report, nil
}
