package manifest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/arkilian/chunkstore/internal/storage"
)

func setupReconciliationTest(t *testing.T) (*SQLiteCatalog, *storage.LocalStorage) {
	t.Helper()
	catalog := newTestCatalog(t)
	store, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "storage"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return catalog, store
}

func putObject(t *testing.T, store *storage.LocalStorage, key string) {
	t.Helper()
	if _, err := store.Put(context.Background(), key, []byte("fake-chunk-data")); err != nil {
		t.Fatalf("failed to write fake object: %v", err)
	}
}

func TestReconcile_NoIssues(t *testing.T) {
	catalog, store := setupReconciliationTest(t)
	entry := register(t, catalog, pointsChunk(t, "/points", 1))
	putObject(t, store, entry.ObjectKey)

	report, err := Reconcile(context.Background(), catalog, store, "chunks/")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if report.HasIssues() {
		t.Errorf("expected no issues, got dangling=%v orphaned=%v", report.DanglingEntries, report.OrphanedObjects)
	}
	if report.TotalManifestEntries != 1 || report.TotalStorageObjects != 1 {
		t.Errorf("unexpected totals: manifest=%d storage=%d", report.TotalManifestEntries, report.TotalStorageObjects)
	}
}

func TestReconcile_DanglingEntry(t *testing.T) {
	catalog, store := setupReconciliationTest(t)
	entry := register(t, catalog, pointsChunk(t, "/points", 1))

	report, err := Reconcile(context.Background(), catalog, store, "chunks/")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(report.DanglingEntries) != 1 {
		t.Fatalf("expected 1 dangling entry, got %d", len(report.DanglingEntries))
	}
	if got := report.DanglingEntries[0]; got.ChunkID != entry.ChunkID || got.ObjectKey != entry.ObjectKey {
		t.Errorf("unexpected dangling entry: %+v", got)
	}
	if len(report.OrphanedObjects) != 0 {
		t.Errorf("expected no orphans, got %v", report.OrphanedObjects)
	}
}

func TestReconcile_OrphanedObject(t *testing.T) {
	catalog, store := setupReconciliationTest(t)
	putObject(t, store, "chunks/orphan")
	putObject(t, store, "elsewhere/ignored")

	report, err := Reconcile(context.Background(), catalog, store, "chunks/")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(report.OrphanedObjects) != 1 || report.OrphanedObjects[0] != "chunks/orphan" {
		t.Errorf("expected chunks/orphan to be orphaned, got %v", report.OrphanedObjects)
	}
	if len(report.DanglingEntries) != 0 {
		t.Errorf("expected no dangling entries, got %v", report.DanglingEntries)
	}
}

func TestReconcile_EmptyManifestAndStorage(t *testing.T) {
	catalog, store := setupReconciliationTest(t)

	report, err := Reconcile(context.Background(), catalog, store, "")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if report.HasIssues() || report.TotalManifestEntries != 0 || report.TotalStorageObjects != 0 {
		t.Errorf("expected an empty report, got %+v", report)
	}
}

func TestReconcile_EntryOutsidePrefix(t *testing.T) {
	catalog, store := setupReconciliationTest(t)
	ctx := context.Background()

	present := EntryFor(pointsChunk(t, "/points", 1), "legacy/present")
	missing := EntryFor(pointsChunk(t, "/points", 2), "legacy/missing")
	for _, e := range []*Entry{present, missing} {
		if err := catalog.Register(ctx, e); err != nil {
			t.Fatalf("failed to register chunk: %v", err)
		}
	}
	putObject(t, store, present.ObjectKey)

	report, err := Reconcile(ctx, catalog, store, "chunks/")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(report.DanglingEntries) != 1 || report.DanglingEntries[0].ChunkID != missing.ChunkID {
		t.Errorf("expected only the missing entry to dangle, got %v", report.DanglingEntries)
	}
	if report.TotalStorageObjects != 0 || len(report.OrphanedObjects) != 0 {
		t.Errorf("objects outside the prefix are not scanned, got %+v", report)
	}
}
