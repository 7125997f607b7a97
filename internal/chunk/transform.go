package chunk

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/arkilian/chunkstore/internal/errors"
	"github.com/arkilian/chunkstore/internal/invariants"
	"github.com/arkilian/chunkstore/pkg/types"
)

// CloneAs returns a copy of the chunk under a new id, with fresh contiguous
// RowIDs starting at firstRowID. All other columns are shared.
func (c *Chunk) CloneAs(id ChunkID, firstRowID RowID) *Chunk {
	rowIDs := make([]RowID, len(c.rowIDs))
	next := firstRowID
	for i := range rowIDs {
		rowIDs[i] = next
		next = next.Next()
	}
	sorted := true
	return derived(newChunk(id, c.entityPath, &sorted, rowIDs, c.timelines, c.components))
}

// Zeroed returns a copy of the chunk with its id and every RowID set to zero.
// It exists for deterministic comparisons in tests and snapshots.
func (c *Chunk) Zeroed() *Chunk {
	sorted := true
	return derived(newChunk(ChunkID{}, c.entityPath, &sorted, make([]RowID, len(c.rowIDs)), c.timelines, c.components))
}

// IntoStatic returns a copy of the chunk with every timeline removed.
func (c *Chunk) IntoStatic() *Chunk {
	return derived(newChunk(c.id, c.entityPath, &c.isSorted, c.rowIDs, map[string]*TimeColumn{}, c.components))
}

// RowSliced returns rows [offset, offset+length), clamped to the chunk bounds.
func (c *Chunk) RowSliced(offset, length int) *Chunk {
	n := len(c.rowIDs)
	offset = max(0, min(offset, n))
	length = max(0, min(length, n-offset))
	if offset == 0 && length == n {
		return c
	}

	timelines := make(map[string]*TimeColumn, len(c.timelines))
	for name, tc := range c.timelines {
		timelines[name] = tc.Sliced(offset, length)
	}
	components := Components{}
	for _, col := range c.components.All() {
		components.Insert(col.Descriptor, sliceList(col.List, offset, length))
	}

	rowIDs := c.rowIDs[offset : offset+length]
	var isSorted *bool
	if c.isSorted {
		isSorted = &c.isSorted
	}
	return derived(newChunk(c.id, c.entityPath, isSorted, rowIDs, timelines, components))
}

// Taken returns a chunk made of the given rows, in the given order.
// It panics if an index is out of range.
func (c *Chunk) Taken(indices []int) *Chunk {
	rowIDs := make([]RowID, len(indices))
	for i, idx := range indices {
		rowIDs[i] = c.rowIDs[idx]
	}
	timelines := make(map[string]*TimeColumn, len(c.timelines))
	for name, tc := range c.timelines {
		timelines[name] = tc.Taken(indices)
	}
	components := Components{}
	for _, col := range c.components.All() {
		list, err := takeList(col.List, indices)
		if err != nil {
			// Only reachable if list offsets overflow int32.
			panic(err)
		}
		components.Insert(col.Descriptor, list)
	}
	return derived(newChunk(c.id, c.entityPath, nil, rowIDs, timelines, components))
}

// Filtered keeps the rows whose mask entry is true. Missing entries count as false.
func (c *Chunk) Filtered(mask []bool) *Chunk {
	indices := make([]int, 0, len(c.rowIDs))
	for i := range c.rowIDs {
		if i < len(mask) && mask[i] {
			indices = append(indices, i)
		}
	}
	if len(indices) == len(c.rowIDs) {
		return c
	}
	return c.Taken(indices)
}

// TimelineSliced keeps only the named timeline. It returns nil when the
// chunk does not have that timeline.
func (c *Chunk) TimelineSliced(timeline string) *Chunk {
	tc, ok := c.timelines[timeline]
	if !ok {
		return nil
	}
	return derived(newChunk(c.id, c.entityPath, &c.isSorted, c.rowIDs, map[string]*TimeColumn{timeline: tc}, c.components))
}

// ComponentSliced keeps only the component column for desc.
func (c *Chunk) ComponentSliced(desc types.ComponentDescriptor) *Chunk {
	components := Components{}
	if list, ok := c.components.Get(desc); ok {
		components.Insert(desc, list)
	}
	return derived(newChunk(c.id, c.entityPath, &c.isSorted, c.rowIDs, c.timelines, components))
}

// Densified keeps only the rows where desc has data. If the chunk has no
// such column, the result has no rows.
func (c *Chunk) Densified(desc types.ComponentDescriptor) *Chunk {
	list, ok := c.components.Get(desc)
	if !ok {
		return c.Taken(nil)
	}
	if list.NullN() == 0 {
		return c
	}
	mask := make([]bool, list.Len())
	for i := range mask {
		mask[i] = list.IsValid(i)
	}
	return c.Filtered(mask)
}

// SortedByRowID returns the chunk with rows in ascending RowID order.
func (c *Chunk) SortedByRowID() *Chunk {
	if c.isSorted {
		return c
	}
	indices := identity(len(c.rowIDs))
	sort.SliceStable(indices, func(i, j int) bool {
		return c.rowIDs[indices[i]].Less(c.rowIDs[indices[j]])
	})
	return c.Taken(indices)
}

// SortedByTimelineIfUnsorted returns the chunk with rows in ascending
// (time, RowID) order on the given timeline. Static chunks are sorted by
// RowID. Chunks lacking the timeline are returned unchanged.
func (c *Chunk) SortedByTimelineIfUnsorted(timeline string) *Chunk {
	if c.IsStatic() {
		return c.SortedByRowID()
	}
	tc, ok := c.timelines[timeline]
	if !ok || (tc.IsSorted() && c.isSorted) {
		return c
	}
	times := tc.Times()
	indices := identity(len(c.rowIDs))
	sort.SliceStable(indices, func(i, j int) bool {
		a, b := indices[i], indices[j]
		if times[a] != times[b] {
			return times[a] < times[b]
		}
		return c.rowIDs[a].Less(c.rowIDs[b])
	})
	return c.Taken(indices)
}

// DedupedLatestOnIndex keeps, for every unique time value on timeline, only
// the row with the largest RowID. The result is sorted by (time, RowID).
// For static chunks only the most recent row survives.
func (c *Chunk) DedupedLatestOnIndex(timeline string) *Chunk {
	if c.IsEmpty() {
		return c
	}
	if c.IsStatic() {
		sorted := c.SortedByRowID()
		return sorted.RowSliced(sorted.NumRows()-1, 1)
	}
	if _, ok := c.timelines[timeline]; !ok {
		return c
	}

	sorted := c.SortedByTimelineIfUnsorted(timeline)
	times := sorted.timelines[timeline].Times()
	indices := make([]int, 0, len(times))
	for i := range times {
		if i+1 < len(times) && times[i+1] == times[i] {
			continue
		}
		indices = append(indices, i)
	}
	if len(indices) == len(times) {
		return sorted
	}
	return sorted.Taken(indices)
}

// EmptiesFiltered drops component columns that carry no data. A chunk with
// no rows keeps its columns.
func (c *Chunk) EmptiesFiltered() *Chunk {
	if c.IsEmpty() {
		return c
	}
	var empty []types.ComponentDescriptor
	for _, col := range c.components.All() {
		if col.List.NullN() == col.List.Len() {
			empty = append(empty, col.Descriptor)
		}
	}
	if len(empty) == 0 {
		return c
	}
	components := c.components.Clone()
	for _, desc := range empty {
		delete(components[desc.ComponentName], desc)
		if len(components[desc.ComponentName]) == 0 {
			delete(components, desc.ComponentName)
		}
	}
	return newChunk(c.id, c.entityPath, &c.isSorted, c.rowIDs, c.timelines, components)
}

// Concatenated appends other's rows to the chunk's under a fresh chunk id.
// Both chunks must belong to the same entity and have the same timelines;
// components present on one side only are null-filled on the other.
func (c *Chunk) Concatenated(other *Chunk) (*Chunk, error) {
	if c.entityPath != other.entityPath {
		return nil, errors.NewMalformedChunk(errors.CodeDatatypeMismatch,
			"cannot concatenate chunks of %s and %s", c.entityPath, other.entityPath)
	}
	if len(c.timelines) != len(other.timelines) {
		return nil, errors.NewMalformedChunk(errors.CodeLengthMismatch,
			"cannot concatenate chunks with %d and %d timelines", len(c.timelines), len(other.timelines))
	}

	timelines := make(map[string]*TimeColumn, len(c.timelines))
	for name, left := range c.timelines {
		right, ok := other.timelines[name]
		if !ok || right.Timeline() != left.Timeline() {
			return nil, errors.NewMalformedChunk(errors.CodeDatatypeMismatch,
				"cannot concatenate chunks: timeline %q differs", name)
		}
		times := make([]types.TimeInt, 0, left.NumRows()+right.NumRows())
		times = append(append(times, left.Times()...), right.Times()...)
		timelines[name] = NewTimeColumn(left.Timeline(), times)
	}

	components := Components{}
	seen := make(map[types.ComponentDescriptor]bool)
	for _, col := range append(c.components.All(), other.components.All()...) {
		if seen[col.Descriptor] {
			continue
		}
		seen[col.Descriptor] = true

		left, lok := c.components.Get(col.Descriptor)
		right, rok := other.components.Get(col.Descriptor)
		dt := col.List.DataType()
		if !lok {
			left = NullList(dt, c.NumRows())
		}
		if !rok {
			right = NullList(dt, other.NumRows())
		}
		if !arrow.TypeEqual(left.DataType(), right.DataType()) {
			return nil, errors.NewMalformedChunk(errors.CodeDatatypeMismatch,
				"cannot concatenate component %s: %s vs %s", col.Descriptor, left.DataType(), right.DataType())
		}
		list, err := array.Concatenate([]arrow.Array{left, right}, mem)
		if err != nil {
			return nil, errors.NewInternalError("concatenating component "+col.Descriptor.String(), err)
		}
		components.Insert(col.Descriptor, list.(*array.List))
	}

	rowIDs := make([]RowID, 0, len(c.rowIDs)+len(other.rowIDs))
	rowIDs = append(append(rowIDs, c.rowIDs...), other.rowIDs...)

	var timelineList []*TimeColumn
	for _, tc := range timelines {
		timelineList = append(timelineList, tc)
	}
	return New(NewChunkID(), c.entityPath, nil, rowIDs, timelineList, components)
}

// derived finalizes a chunk produced by a transformation of a valid chunk.
func derived(out *Chunk) *Chunk {
	out = out.EmptiesFiltered()
	if invariants.Enabled {
		if err := out.SanityCheck(); err != nil {
			panic(err)
		}
	}
	return out
}

func identity(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}
