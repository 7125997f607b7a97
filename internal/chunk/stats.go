package chunk

import (
	"sort"

	"github.com/arkilian/chunkstore/pkg/types"
)

// TimeEvents is the number of component events logged at one time value.
type TimeEvents struct {
	Time  types.TimeInt
	Count uint64
}

// NumEventsCumulative counts the non-null cells across every component column.
func (c *Chunk) NumEventsCumulative() uint64 {
	var n uint64
	for _, col := range c.components.All() {
		n += uint64(col.List.Len() - col.List.NullN())
	}
	return n
}

// NumEventsForComponent counts the non-null cells of one component column.
func (c *Chunk) NumEventsForComponent(desc types.ComponentDescriptor) (uint64, bool) {
	list, ok := c.components.Get(desc)
	if !ok {
		return 0, false
	}
	return uint64(list.Len() - list.NullN()), true
}

// NumEventsCumulativePerUniqueTime groups the chunk's events by time value on
// the given timeline, in ascending time order. A static chunk reports all its
// events at types.TimeIntStatic. A temporal chunk lacking the timeline
// reports nothing.
func (c *Chunk) NumEventsCumulativePerUniqueTime(timeline string) []TimeEvents {
	if c.IsStatic() {
		if n := c.NumEventsCumulative(); n > 0 {
			return []TimeEvents{{Time: types.TimeIntStatic, Count: n}}
		}
		return nil
	}

	tc, ok := c.timelines[timeline]
	if !ok || tc.NumRows() == 0 {
		return nil
	}
	perRow := c.eventsPerRow()

	if tc.IsSorted() {
		// Single pass: accumulate runs of equal time values.
		var out []TimeEvents
		for i, t := range tc.Times() {
			if len(out) > 0 && out[len(out)-1].Time == t {
				out[len(out)-1].Count += perRow[i]
				continue
			}
			out = append(out, TimeEvents{Time: t, Count: perRow[i]})
		}
		return out
	}

	counts := make(map[types.TimeInt]uint64)
	for i, t := range tc.Times() {
		counts[t] += perRow[i]
	}
	out := make([]TimeEvents, 0, len(counts))
	for t, n := range counts {
		out = append(out, TimeEvents{Time: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func (c *Chunk) eventsPerRow() []uint64 {
	perRow := make([]uint64, len(c.rowIDs))
	for _, col := range c.components.All() {
		if col.List.NullN() == 0 {
			for i := range perRow {
				perRow[i]++
			}
			continue
		}
		for i := range perRow {
			if col.List.IsValid(i) {
				perRow[i]++
			}
		}
	}
	return perRow
}

// RowIDRange returns the smallest and largest RowID of the chunk.
func (c *Chunk) RowIDRange() (minID, maxID RowID, ok bool) {
	if len(c.rowIDs) == 0 {
		return RowID{}, RowID{}, false
	}
	if c.isSorted {
		return c.rowIDs[0], c.rowIDs[len(c.rowIDs)-1], true
	}
	minID, maxID = c.rowIDs[0], c.rowIDs[0]
	for _, id := range c.rowIDs[1:] {
		if id.Less(minID) {
			minID = id
		}
		if maxID.Less(id) {
			maxID = id
		}
	}
	return minID, maxID, true
}

// ComponentRowIDRange returns the RowID range of the rows where desc is not null.
func (c *Chunk) ComponentRowIDRange(desc types.ComponentDescriptor) (minID, maxID RowID, ok bool) {
	list, found := c.components.Get(desc)
	if !found || list.Len() == list.NullN() {
		return RowID{}, RowID{}, false
	}
	if list.NullN() == 0 {
		return c.RowIDRange()
	}

	if c.isSorted {
		first, last := -1, -1
		for i := 0; i < list.Len(); i++ {
			if list.IsValid(i) {
				first = i
				break
			}
		}
		for i := list.Len() - 1; i >= 0; i-- {
			if list.IsValid(i) {
				last = i
				break
			}
		}
		return c.rowIDs[first], c.rowIDs[last], true
	}

	for i, id := range c.rowIDs {
		if !list.IsValid(i) {
			continue
		}
		if !ok {
			minID, maxID, ok = id, id, true
			continue
		}
		if id.Less(minID) {
			minID = id
		}
		if maxID.Less(id) {
			maxID = id
		}
	}
	return minID, maxID, ok
}

// TimeRangePerComponent returns, per timeline, the tight time range covered
// by each component's non-null rows.
func (c *Chunk) TimeRangePerComponent() map[string]map[types.ComponentDescriptor]types.TimeRange {
	out := make(map[string]map[types.ComponentDescriptor]types.TimeRange, len(c.timelines))
	for name, tc := range c.timelines {
		out[name] = tc.TimeRangePerComponent(c.components)
	}
	return out
}

// IterIndices returns the (time, RowID) index of every row on timeline.
// Static chunks yield types.TimeIntStatic for every row. Temporal chunks
// lacking the timeline yield nothing.
func (c *Chunk) IterIndices(timeline string) []Index {
	if c.IsStatic() {
		out := make([]Index, len(c.rowIDs))
		for i, id := range c.rowIDs {
			out[i] = Index{Time: types.TimeIntStatic, RowID: id}
		}
		return out
	}
	tc, ok := c.timelines[timeline]
	if !ok {
		return nil
	}
	out := make([]Index, len(c.rowIDs))
	for i, id := range c.rowIDs {
		out[i] = Index{Time: tc.Row(i), RowID: id}
	}
	return out
}
