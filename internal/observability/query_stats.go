// Package observability tracks which columns and timelines dataframe queries
// touch, so operators can see what the store is actually read for.
package observability

import (
	"sort"
	"sync"
	"time"
)

// QueryStats tracks column selection and index timeline frequency.
type QueryStats struct {
	mu         sync.RWMutex
	columnFreq map[string]*ColumnStats
	indexFreq  map[string]*ColumnStats
	window     time.Duration
}

// ColumnStats holds statistics for a selected column or an index timeline.
type ColumnStats struct {
	Column    string
	Frequency int64
	LastSeen  time.Time
	Kinds     map[string]int // column kind → count (e.g., "component" → 5, "missing" → 1)
}

// NewQueryStats creates a new query statistics tracker.
// window: time duration for pruning old entries (e.g., 1 hour)
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		columnFreq: make(map[string]*ColumnStats),
		indexFreq:  make(map[string]*ColumnStats),
		window:     window,
	}
}

// RecordColumn records that a query selected column.
// kind: how the selection resolved (e.g., "time", "component", "missing")
// This method is O(1) and thread-safe.
func (q *QueryStats) RecordColumn(column, kind string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	record(q.columnFreq, column).Kinds[kind]++
}

// RecordIndex records that a query paged over timeline. Static-only queries
// are recorded under the empty name.
func (q *QueryStats) RecordIndex(timeline string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	record(q.indexFreq, timeline)
}

func record(m map[string]*ColumnStats, key string) *ColumnStats {
	stats, exists := m[key]
	if !exists {
		stats = &ColumnStats{
			Column: key,
			Kinds:  make(map[string]int),
		}
		m[key] = stats
	}
	stats.Frequency++
	stats.LastSeen = time.Now()
	return stats
}

// GetTopColumns returns the top N selected columns by frequency.
// Returns a copy of the stats sorted by frequency (descending).
func (q *QueryStats) GetTopColumns(n int) []ColumnStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return topN(q.columnFreq, n)
}

// GetTopIndexes returns the top N index timelines by frequency.
func (q *QueryStats) GetTopIndexes(n int) []ColumnStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return topN(q.indexFreq, n)
}

func topN(m map[string]*ColumnStats, n int) []ColumnStats {
	if n <= 0 || len(m) == 0 {
		return []ColumnStats{}
	}

	stats := make([]ColumnStats, 0, len(m))
	for _, s := range m {
		// Deep copy so callers cannot mutate tracked state
		statsCopy := ColumnStats{
			Column:    s.Column,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Kinds:     make(map[string]int, len(s.Kinds)),
		}
		for kind, count := range s.Kinds {
			statsCopy.Kinds[kind] = count
		}
		stats = append(stats, statsCopy)
	}

	// Frequency descending, name ascending for a stable order
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Column < stats[j].Column
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries where time.Since(LastSeen) > window.
// This should be called periodically (e.g., every 5 minutes).
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := time.Now().Add(-q.window)
	for _, m := range []map[string]*ColumnStats{q.columnFreq, q.indexFreq} {
		for key, stats := range m {
			if stats.LastSeen.Before(threshold) {
				delete(m, key)
			}
		}
	}
}
