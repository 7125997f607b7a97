package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchFetcher coordinates parallel reads from object storage, optionally
// caching objects on local disk so repeated loads skip the network.
type BatchFetcher struct {
	storage     ObjectStorage
	concurrency int
	cacheDir    string
}

// BatchRequest specifies which objects to fetch with optional priorities.
type BatchRequest struct {
	Keys     []string
	Priority []int // 0=critical, 1=prefetch
}

// BatchResult contains the outcome of a batch fetch.
type BatchResult struct {
	Objects   map[string][]byte
	Errors    map[string]error
	CacheHits int
	Fetches   int
}

// NewBatchFetcher creates a new batch fetcher.
// storage: the ObjectStorage implementation to read from
// concurrency: maximum number of parallel reads
// cacheDir: directory to cache fetched objects (empty = no caching)
func NewBatchFetcher(storage ObjectStorage, concurrency int, cacheDir string) *BatchFetcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchFetcher{
		storage:     storage,
		concurrency: concurrency,
		cacheDir:    cacheDir,
	}
}

// Fetch reads every requested object, lower priority values first.
// Per-object failures are reported in the result; the returned error is
// only set for malformed requests.
func (b *BatchFetcher) Fetch(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	result := &BatchResult{
		Objects: make(map[string][]byte),
		Errors:  make(map[string]error),
	}
	if len(req.Keys) == 0 {
		return result, nil
	}

	priority := req.Priority
	if len(priority) == 0 {
		priority = make([]int, len(req.Keys))
	} else if len(priority) != len(req.Keys) {
		return nil, fmt.Errorf("priority array length must match key count")
	}

	order := make([]int, len(req.Keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return priority[order[i]] < priority[order[j]]
	})

	var queue []string
	for _, i := range order {
		key := req.Keys[i]
		if data, ok := b.cached(key); ok {
			result.Objects[key] = data
			result.CacheHits++
			continue
		}
		queue = append(queue, key)
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, key := range queue {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[key] = fmt.Errorf("semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()

			data, err := b.storage.Get(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[key] = err
				return
			}
			result.Objects[key] = data
			result.Fetches++
			b.store(key, data)
		}()
	}
	wg.Wait()

	return result, nil
}

func (b *BatchFetcher) cached(key string) ([]byte, bool) {
	if b.cacheDir == "" {
		return nil, false
	}
	data, err := os.ReadFile(b.cachePath(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

// store writes data to the cache. Failures only cost a later refetch.
func (b *BatchFetcher) store(key string, data []byte) {
	if b.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(b.cacheDir, 0755); err != nil {
		return
	}
	_ = os.WriteFile(b.cachePath(key), data, 0644)
}

// cachePath flattens key into a single file name inside the cache dir.
func (b *BatchFetcher) cachePath(key string) string {
	return filepath.Join(b.cacheDir, strings.ReplaceAll(key, "/", "_"))
}
