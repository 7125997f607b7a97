package chunk

import (
	"sort"

	"github.com/arkilian/chunkstore/pkg/types"
)

// RangeQuery selects every row whose time on Timeline lies within Range.
type RangeQuery struct {
	Timeline string
	Range    types.TimeRange
}

// LatestAtQuery selects the most recent row at or before At on Timeline.
type LatestAtQuery struct {
	Timeline string
	At       types.TimeInt
}

// Range returns the rows of the chunk relevant to q for component desc:
// densified for desc and sorted by (time, RowID). Static chunks are returned
// densified and sorted by RowID regardless of the queried range.
func (c *Chunk) Range(q RangeQuery, desc types.ComponentDescriptor) *Chunk {
	if c.IsStatic() {
		return c.Densified(desc).SortedByRowID()
	}
	tc, ok := c.timelines[q.Timeline]
	if !ok || !tc.TimeRange().Intersects(q.Range) {
		return c.Taken(nil)
	}

	sorted := c.Densified(desc).SortedByTimelineIfUnsorted(q.Timeline)
	times := sorted.timelines[q.Timeline].Times()
	start := sort.Search(len(times), func(i int) bool { return times[i] >= q.Range.Min })
	end := sort.Search(len(times), func(i int) bool { return times[i] > q.Range.Max })
	return sorted.RowSliced(start, end-start)
}

// LatestAt returns the single row with the largest (time, RowID) at or
// before q.At among the rows where desc has data, or an empty chunk.
// For static chunks the row with the largest RowID is returned.
func (c *Chunk) LatestAt(q LatestAtQuery, desc types.ComponentDescriptor) *Chunk {
	dense := c.Densified(desc)
	if dense.IsEmpty() {
		return dense
	}

	best := -1
	if dense.IsStatic() {
		for i, id := range dense.rowIDs {
			if best < 0 || dense.rowIDs[best].Less(id) {
				best = i
			}
		}
		return dense.Taken([]int{best})
	}

	tc, ok := dense.timelines[q.Timeline]
	if !ok {
		return dense.Taken(nil)
	}
	var bestIndex Index
	for i, t := range tc.Times() {
		if t > q.At {
			continue
		}
		idx := Index{Time: t, RowID: dense.rowIDs[i]}
		if best < 0 || bestIndex.Less(idx) {
			best, bestIndex = i, idx
		}
	}
	if best < 0 {
		return dense.Taken(nil)
	}
	return dense.Taken([]int{best})
}
