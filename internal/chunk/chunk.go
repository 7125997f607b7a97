// Package chunk implements the columnar unit of storage: a batch of rows for
// one entity carrying RowIDs, per-timeline time columns and sparse component
// list arrays.
//
// A Chunk is immutable once built. Every transformation returns a new Chunk
// sharing the unchanged columns, so chunks can be read concurrently without
// locking. The only mutable state is the memoized heap size.
package chunk

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/arkilian/chunkstore/internal/errors"
	"github.com/arkilian/chunkstore/internal/invariants"
	"github.com/arkilian/chunkstore/pkg/types"
)

// Chunk is a batch of rows for a single entity.
type Chunk struct {
	id         ChunkID
	entityPath types.EntityPath

	// heapSize memoizes HeapSizeBytes. Zero means not yet computed.
	heapSize atomic.Uint64

	isSorted   bool
	rowIDs     []RowID
	timelines  map[string]*TimeColumn
	components Components
}

// New builds a chunk from pre-built columns and runs its sanity checks.
// If isSorted is nil, sortedness is computed by scanning rowIDs.
func New(
	id ChunkID,
	entityPath types.EntityPath,
	isSorted *bool,
	rowIDs []RowID,
	timelines []*TimeColumn,
	components Components,
) (*Chunk, error) {
	perName := make(map[string]*TimeColumn, len(timelines))
	for _, tc := range timelines {
		if _, dup := perName[tc.Name()]; dup {
			return nil, errors.NewMalformedChunk(errors.CodeDuplicateColumn,
				"timeline %q appears more than once", tc.Name())
		}
		perName[tc.Name()] = tc
	}
	if components == nil {
		components = Components{}
	}

	c := newChunk(id, entityPath, isSorted, rowIDs, perName, components)
	if err := c.SanityCheck(); err != nil {
		return nil, err
	}
	return c, nil
}

func newChunk(
	id ChunkID,
	entityPath types.EntityPath,
	isSorted *bool,
	rowIDs []RowID,
	timelines map[string]*TimeColumn,
	components Components,
) *Chunk {
	var sorted bool
	if isSorted != nil {
		sorted = *isSorted
	} else {
		sorted = isSortedRowIDs(rowIDs)
	}
	return &Chunk{
		id:         id,
		entityPath: types.ParseEntityPath(entityPath.String()),
		isSorted:   sorted,
		rowIDs:     rowIDs,
		timelines:  timelines,
		components: components,
	}
}

func isSortedRowIDs(rowIDs []RowID) bool {
	for i := 1; i < len(rowIDs); i++ {
		if rowIDs[i].Less(rowIDs[i-1]) {
			return false
		}
	}
	return true
}

func (c *Chunk) ID() ChunkID {
	return c.id
}

func (c *Chunk) EntityPath() types.EntityPath {
	return c.entityPath
}

func (c *Chunk) NumRows() int {
	return len(c.rowIDs)
}

func (c *Chunk) IsEmpty() bool {
	return len(c.rowIDs) == 0
}

// IsStatic reports whether the chunk carries no timeline at all.
func (c *Chunk) IsStatic() bool {
	return len(c.timelines) == 0
}

// IsSorted reports whether RowIDs are non-decreasing.
func (c *Chunk) IsSorted() bool {
	return c.isSorted
}

// RowIDs returns the control column. Callers must not modify it.
func (c *Chunk) RowIDs() []RowID {
	return c.rowIDs
}

// Timelines returns the time columns, sorted by timeline name.
func (c *Chunk) Timelines() []*TimeColumn {
	out := make([]*TimeColumn, 0, len(c.timelines))
	for _, tc := range c.timelines {
		out = append(out, tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Timeline returns the time column for the named timeline.
func (c *Chunk) Timeline(name string) (*TimeColumn, bool) {
	tc, ok := c.timelines[name]
	return tc, ok
}

// Components returns the component columns. Callers must not modify the map.
func (c *Chunk) Components() Components {
	return c.components
}

// ComponentDescriptors returns every component descriptor, sorted.
func (c *Chunk) ComponentDescriptors() []types.ComponentDescriptor {
	return c.components.Descriptors()
}

// WithTimeline returns a copy of the chunk with tc added, replacing any
// existing column for the same timeline.
func (c *Chunk) WithTimeline(tc *TimeColumn) (*Chunk, error) {
	timelines := make(map[string]*TimeColumn, len(c.timelines)+1)
	for name, existing := range c.timelines {
		timelines[name] = existing
	}
	timelines[tc.Name()] = tc

	out := newChunk(c.id, c.entityPath, &c.isSorted, c.rowIDs, timelines, c.components)
	if err := out.SanityCheck(); err != nil {
		return nil, err
	}
	return out, nil
}

// WithComponent returns a copy of the chunk with list stored under desc,
// replacing any existing column for that descriptor.
func (c *Chunk) WithComponent(desc types.ComponentDescriptor, list *array.List) (*Chunk, error) {
	components := c.components.Clone()
	components.Insert(desc, list)

	out := newChunk(c.id, c.entityPath, &c.isSorted, c.rowIDs, c.timelines, components)
	if err := out.SanityCheck(); err != nil {
		return nil, err
	}
	return out, nil
}

// HeapSizeBytes returns the memory footprint of the chunk. The value is
// computed on first use and memoized.
func (c *Chunk) HeapSizeBytes() uint64 {
	if size := c.heapSize.Load(); size != 0 {
		return size
	}
	size := c.computeHeapSize()
	c.heapSize.Store(size)
	return size
}

func (c *Chunk) computeHeapSize() uint64 {
	size := uint64(len(c.entityPath)) + uint64(len(c.rowIDs))*16
	for _, tc := range c.timelines {
		size += tc.HeapSizeBytes()
	}
	for _, col := range c.components.All() {
		size += uint64(len(col.Descriptor.String())) + arrayHeapSize(col.List)
	}
	return size
}

// SanityCheck validates the chunk's structural invariants. The cached
// sortedness and heap size are only verified when invariants are enabled.
func (c *Chunk) SanityCheck() error {
	return c.sanityCheck(invariants.Enabled)
}

func (c *Chunk) sanityCheck(expensive bool) error {
	var errs []error
	numRows := len(c.rowIDs)

	if expensive && c.isSorted != isSortedRowIDs(c.rowIDs) {
		errs = append(errs, errors.NewMalformedChunk(errors.CodeUnsorted,
			"chunk %s: cached is_sorted=%v does not match row ids", c.id, c.isSorted))
	}

	for name, tc := range c.timelines {
		if name != tc.Name() {
			errs = append(errs, errors.NewMalformedChunk(errors.CodeDuplicateColumn,
				"chunk %s: timeline %q stored under %q", c.id, tc.Name(), name))
		}
		if tc.NumRows() != numRows {
			errs = append(errs, errors.NewMalformedChunk(errors.CodeLengthMismatch,
				"chunk %s: timeline %q has %d rows, want %d", c.id, name, tc.NumRows(), numRows))
			continue
		}
		if err := tc.sanityCheck(expensive); err != nil {
			errs = append(errs, err)
		}
	}

	for _, col := range c.components.All() {
		if col.List == nil {
			errs = append(errs, errors.NewMalformedChunk(errors.CodeDatatypeMismatch,
				"chunk %s: component %s has no data", c.id, col.Descriptor))
			continue
		}
		if col.List.Len() != numRows {
			errs = append(errs, errors.NewMalformedChunk(errors.CodeLengthMismatch,
				"chunk %s: component %s has %d rows, want %d", c.id, col.Descriptor, col.List.Len(), numRows))
			continue
		}
		if numRows > 0 && col.List.NullN() == numRows {
			errs = append(errs, errors.NewMalformedChunk(errors.CodeFullyNullColumn,
				"chunk %s: component %s is entirely null", c.id, col.Descriptor))
		}
	}

	if expensive {
		if cached := c.heapSize.Load(); cached != 0 {
			if actual := c.computeHeapSize(); cached != actual {
				errs = append(errs, errors.NewMalformedChunk(errors.CodeHeapSize,
					"chunk %s: cached heap size %d, actual %d", c.id, cached, actual))
			}
		}
	}

	return errors.Combine(errs...)
}

// String returns a short description of the chunk.
func (c *Chunk) String() string {
	return fmt.Sprintf("Chunk(%s, %s, rows=%d, timelines=%d, components=%d)",
		c.id, c.entityPath, len(c.rowIDs), len(c.timelines), c.components.Len())
}
