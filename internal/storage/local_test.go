package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	return storage
}

func TestLocalStorage_PutGet(t *testing.T) {
	storage := newLocal(t)
	ctx := context.Background()

	key := "chunks/this/that/object.arrow"
	content := []byte("hello world")
	etag, err := storage.Put(ctx, key, content)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if etag != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("expected md5 etag, got %q", etag)
	}

	exists, err := storage.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	got, err := storage.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	if err := storage.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = storage.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists after delete failed: %v", err)
	}
	if exists {
		t.Error("expected object to not exist after delete")
	}

	// Deleting again is not an error.
	if err := storage.Delete(ctx, key); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestLocalStorage_GetNotFound(t *testing.T) {
	storage := newLocal(t)
	if _, err := storage.Get(context.Background(), "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_ConditionalPut(t *testing.T) {
	storage := newLocal(t)
	ctx := context.Background()

	// An empty etag only succeeds for new objects.
	etag, err := storage.ConditionalPut(ctx, "manifest", []byte("v1"), "")
	if err != nil {
		t.Fatalf("initial ConditionalPut failed: %v", err)
	}
	if _, err := storage.ConditionalPut(ctx, "manifest", []byte("v1"), ""); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("expected ErrPreconditionFailed for existing object, got %v", err)
	}

	if _, err := storage.ConditionalPut(ctx, "manifest", []byte("v2"), "stale"); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("expected ErrPreconditionFailed for stale etag, got %v", err)
	}

	if _, err := storage.ConditionalPut(ctx, "manifest", []byte("v2"), etag); err != nil {
		t.Fatalf("ConditionalPut with current etag failed: %v", err)
	}
	got, _ := storage.Get(ctx, "manifest")
	if string(got) != "v2" {
		t.Errorf("expected v2, got %q", got)
	}

	if _, err := storage.ConditionalPut(ctx, "other", []byte("x"), etag); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("expected ErrPreconditionFailed for missing object with etag, got %v", err)
	}
}

func TestLocalStorage_List(t *testing.T) {
	storage := newLocal(t)
	ctx := context.Background()

	for _, key := range []string{"chunks/b", "chunks/a", "chunks/nested/c", "other/d"} {
		if _, err := storage.Put(ctx, key, []byte(key)); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	keys, err := storage.List(ctx, "chunks")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"chunks/a", "chunks/b", "chunks/nested/c"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("List = %v, want %v", keys, want)
	}

	keys, err = storage.List(ctx, "missing")
	if err != nil {
		t.Fatalf("List of missing prefix failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

func TestLocalStorage_ContextCancelled(t *testing.T) {
	storage := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := storage.Put(ctx, "k", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := storage.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
