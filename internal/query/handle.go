package query

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/arkilian/chunkstore/internal/chunk"
	"github.com/arkilian/chunkstore/pkg/types"
)

// Handle streams the results of one query. Its state is resolved on first
// use and cached for the life of the handle; every row it returns has the
// layout of Schema.
//
// A handle is meant to be driven by a single consumer. Concurrent calls are
// memory safe, but choosing and consuming the next index value is not one
// atomic step, so racing callers may duplicate or skip rows.
//
// There is no native pagination: skip and take rows with NextRow instead.
type Handle struct {
	engine *Engine
	query  QueryExpression

	once  sync.Once
	state *handleState
}

type handleState struct {
	// index is the name of the filtered index timeline, empty for
	// static-only queries.
	index string

	view     []ColumnDescriptor
	selected []selectedColumn
	schema   *arrow.Schema

	// columns holds, for every view column, the chunks that feed it.
	// Only component columns have any.
	columns [][]*chunkCursor

	numRows uint64

	// lastCells holds the last value emitted per selected column, for
	// SparseFillLatestAtLocal.
	lastCells []lastCell
}

type lastCell struct {
	v atomic.Value
}

// chunkCursor tracks how many rows of one chunk the merge has consumed.
type chunkCursor struct {
	chunk   *chunk.Chunk
	list    *array.List
	indices []chunk.Index
	cursor  atomic.Uint64
}

func newChunkCursor(c *chunk.Chunk, desc types.ComponentDescriptor, index string) (*chunkCursor, bool) {
	list, ok := c.Components().Get(desc)
	if !ok {
		return nil, false
	}
	indices := c.IterIndices(index)
	if len(indices) == 0 {
		return nil, false
	}
	checkSortedIndices(c, indices)
	return &chunkCursor{chunk: c, list: list, indices: indices}, true
}

// peek returns the index of the next unconsumed row.
func (cc *chunkCursor) peek() (chunk.Index, int, bool) {
	pos := cc.cursor.Load()
	if pos >= uint64(len(cc.indices)) {
		return chunk.Index{}, 0, false
	}
	return cc.indices[pos], int(pos), true
}

func (h *Handle) init() *handleState {
	h.once.Do(func() {
		h.state = h.engine.initState(h.query)
	})
	return h.state
}

// Query returns the expression the handle was created for.
func (h *Handle) Query() QueryExpression {
	return h.query
}

// ViewContents returns the resolved view columns.
func (h *Handle) ViewContents() []ColumnDescriptor {
	return h.init().view
}

// Selected returns the output columns, in selection order.
func (h *Handle) Selected() []ColumnDescriptor {
	st := h.init()
	out := make([]ColumnDescriptor, len(st.selected))
	for i, sel := range st.selected {
		out[i] = sel.desc
	}
	return out
}

// Schema returns the arrow schema shared by every row and batch.
func (h *Handle) Schema() *arrow.Schema {
	return h.init().schema
}

// NumRows returns the total number of rows the handle yields, consumed or
// not.
func (h *Handle) NumRows() uint64 {
	return h.init().numRows
}

// winner is the cell chosen for one view column at the current index value.
type winner struct {
	cc    *chunkCursor
	row   int
	rowID chunk.RowID
}

// NextRow returns the next row as one single-element array per selected
// column, or nil once the handle is exhausted.
func (h *Handle) NextRow() []arrow.Array {
	st := h.init()
	if len(st.selected) == 0 {
		return nil
	}

	// The next row is at the smallest index value any chunk has pending.
	var (
		at    types.TimeInt
		found bool
	)
	for _, ccs := range st.columns {
		for _, cc := range ccs {
			if idx, _, ok := cc.peek(); ok && (!found || idx.Time < at) {
				at, found = idx.Time, true
			}
		}
	}
	if !found {
		return nil
	}

	// Per column the most recent RowID wins. Every chunk positioned at the
	// chosen value is consumed, winner or not.
	winners := make([]*winner, len(st.columns))
	for i, ccs := range st.columns {
		for _, cc := range ccs {
			idx, pos, ok := cc.peek()
			if !ok || idx.Time != at {
				continue
			}
			if winners[i] == nil || winners[i].rowID.Less(idx.RowID) {
				winners[i] = &winner{cc: cc, row: pos, rowID: idx.RowID}
			}
			cc.cursor.Add(1)
		}
	}

	row := make([]arrow.Array, len(st.selected))
	for j, sel := range st.selected {
		row[j] = st.cell(j, sel, at, winners, h.query.SparseFillStrategy)
	}
	h.engine.metrics.observeRows(1)
	return row
}

// cell builds the single-element output of one selected column.
func (st *handleState) cell(j int, sel selectedColumn, at types.TimeInt, winners []*winner, fill SparseFillStrategy) arrow.Array {
	d := sel.desc
	if d.IsPlaceholder() {
		return array.MakeArrayOfNull(mem, arrow.Null, 1)
	}

	switch d.Kind {
	case KindControl:
		var latest *winner
		for _, w := range winners {
			if w != nil && (latest == nil || latest.rowID.Less(w.rowID)) {
				latest = w
			}
		}
		return chunk.RowIDArray([]chunk.RowID{latest.rowID})

	case KindTime:
		if d.Timeline.Name == st.index {
			if at == types.TimeIntStatic {
				return array.MakeArrayOfNull(mem, d.DataType, 1)
			}
			return chunk.TimeArray(d.Timeline, []types.TimeInt{at})
		}
		// Cells stitched together may disagree on secondary timelines;
		// report the most recent.
		var (
			latest types.TimeInt
			found  bool
		)
		for _, w := range winners {
			if w == nil {
				continue
			}
			tc, ok := w.cc.chunk.Timeline(d.Timeline.Name)
			if !ok {
				continue
			}
			if t := tc.Row(w.row); !found || t > latest {
				latest, found = t, true
			}
		}
		if !found {
			return array.MakeArrayOfNull(mem, d.DataType, 1)
		}
		return chunk.TimeArray(d.Timeline, []types.TimeInt{latest})

	default:
		if w := winners[sel.viewIndex]; w != nil {
			c := array.NewSlice(w.cc.list, int64(w.row), int64(w.row+1))
			if fill == SparseFillLatestAtLocal {
				st.lastCells[j].v.Store(c)
			}
			return c
		}
		if fill == SparseFillLatestAtLocal {
			if last, ok := st.lastCells[j].v.Load().(arrow.Array); ok {
				return last
			}
		}
		return chunk.NullList(d.DataType, 1)
	}
}

// NextRowBatch returns the next row as a single-row record, or nil once the
// handle is exhausted.
func (h *Handle) NextRowBatch() arrow.Record {
	return h.NextBatch(1)
}

// NextBatch returns up to maxRows rows as one record, or nil once the handle
// is exhausted. A non-positive maxRows drains the handle.
func (h *Handle) NextBatch(maxRows int) arrow.Record {
	st := h.init()
	var rows [][]arrow.Array
	for maxRows <= 0 || len(rows) < maxRows {
		row := h.NextRow()
		if row == nil {
			break
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return st.record(rows)
}

// Collect drains the handle into one record. The record is empty, not nil,
// when there are no rows left.
func (h *Handle) Collect() arrow.Record {
	st := h.init()
	if rec := h.NextBatch(0); rec != nil {
		return rec
	}
	return st.record(nil)
}

// record assembles rows into a record of the handle's schema.
func (st *handleState) record(rows [][]arrow.Array) arrow.Record {
	cols := make([]arrow.Array, len(st.selected))
	for j := range st.selected {
		field := st.schema.Field(j)
		if len(rows) == 0 || field.Type.ID() == arrow.NULL {
			cols[j] = array.MakeArrayOfNull(mem, field.Type, len(rows))
			continue
		}
		cells := make([]arrow.Array, len(rows))
		for i, row := range rows {
			cells[i] = row[j]
		}
		col, err := array.Concatenate(cells, mem)
		if err != nil {
			// Every cell has the column's type.
			panic(fmt.Sprintf("query: concatenating column %q: %v", field.Name, err))
		}
		cols[j] = col
	}
	return array.NewRecord(st.schema, cols, int64(len(rows)))
}
