// Package query implements dataframe queries over a chunk store.
//
// A query pages over one index timeline. Every component column in the
// query's view contributes the chunks the store holds for it, each trimmed to
// the queried range and deduplicated so that it carries at most one row per
// index value. A Handle then merges those chunks row by row: each output row
// corresponds to one index value and stitches together the most recently
// logged cell of every column at that value.
package query

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/arkilian/chunkstore/internal/chunk"
	"github.com/arkilian/chunkstore/internal/invariants"
	"github.com/arkilian/chunkstore/internal/observability"
	"github.com/arkilian/chunkstore/internal/store"
	"github.com/arkilian/chunkstore/pkg/types"
	"go.uber.org/zap"
)

var mem = memory.NewGoAllocator()

// Store is the chunk lookup the engine reads from. *store.ChunkStore
// implements it.
type Store interface {
	Schema() []store.ColumnInfo
	Timelines() []types.Timeline
	RangeChunks(q chunk.RangeQuery, entity types.EntityPath, desc types.ComponentDescriptor) []*chunk.Chunk
	StaticChunks(entity types.EntityPath, desc types.ComponentDescriptor) []*chunk.Chunk
}

// Config holds the engine's optional collaborators.
type Config struct {
	Metrics *Metrics
	Stats   *observability.QueryStats
}

// Engine answers dataframe queries against a Store.
type Engine struct {
	store   Store
	logger  *zap.Logger
	metrics *Metrics
	stats   *observability.QueryStats
}

// NewEngine creates an engine reading from s.
func NewEngine(s Store, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   s,
		logger:  logger,
		metrics: cfg.Metrics,
		stats:   cfg.Stats,
	}
}

// Schema returns every column the store could serve: the RowID control
// column, one column per timeline, and one per component column.
func (e *Engine) Schema() []ColumnDescriptor {
	return e.view(QueryExpression{IncludeSemanticallyEmptyColumns: true})
}

// SchemaForQuery returns the output columns of expr, in selection order.
func (e *Engine) SchemaForQuery(expr QueryExpression) []ColumnDescriptor {
	selected := resolveSelection(e.view(expr), expr.Selection)
	out := make([]ColumnDescriptor, len(selected))
	for i, sel := range selected {
		out[i] = sel.desc
	}
	return out
}

// Query returns a lazily initialized handle over the results of expr.
func (e *Engine) Query(expr QueryExpression) *Handle {
	return &Handle{engine: e, query: expr}
}

// view resolves the view contents of expr into concrete columns: control
// first, then time columns by name, then component columns by entity and
// descriptor.
func (e *Engine) view(expr QueryExpression) []ColumnDescriptor {
	out := []ColumnDescriptor{RowIDDescriptor()}
	for _, tl := range e.store.Timelines() {
		out = append(out, TimeDescriptor(tl))
	}

	view := expr.ViewContents.normalized()
	for _, info := range e.store.Schema() {
		if !view.includes(info.EntityPath, info.Descriptor.ComponentName) {
			continue
		}
		if !expr.IncludeSemanticallyEmptyColumns && isSemanticallyEmpty(info.DataType) {
			continue
		}
		out = append(out, ComponentDescriptor(info.EntityPath, info.Descriptor, info.DataType, info.IsStatic))
	}
	return out
}

func isSemanticallyEmpty(dt arrow.DataType) bool {
	lt, ok := dt.(*arrow.ListType)
	return ok && lt.Elem().ID() == arrow.NULL
}

// selectedColumn is one output column and the view column feeding it.
type selectedColumn struct {
	// viewIndex is -1 for placeholders.
	viewIndex int
	desc      ColumnDescriptor
}

// resolveSelection matches every selector against view. A nil selection
// selects the whole view. Selectors may repeat; unmatched ones become
// all-null placeholders.
func resolveSelection(view []ColumnDescriptor, selection []ColumnSelector) []selectedColumn {
	if selection == nil {
		out := make([]selectedColumn, len(view))
		for i, d := range view {
			out[i] = selectedColumn{viewIndex: i, desc: d}
		}
		return out
	}

	out := make([]selectedColumn, 0, len(selection))
	for _, sel := range selection {
		resolved := selectedColumn{viewIndex: -1, desc: sel.placeholder()}
		for i, d := range view {
			if sel.Matches(d) {
				resolved = selectedColumn{viewIndex: i, desc: d}
				break
			}
		}
		out = append(out, resolved)
	}
	return out
}

// initState resolves expr and fetches every chunk the merge will need.
func (e *Engine) initState(expr QueryExpression) *handleState {
	start := time.Now()

	view := e.view(expr)
	selected := resolveSelection(view, expr.Selection)
	e.recordStats(expr, selected)

	fields := make([]arrow.Field, len(selected))
	for i, sel := range selected {
		fields[i] = sel.desc.ArrowField()
	}

	st := &handleState{
		view:      view,
		selected:  selected,
		schema:    arrow.NewSchema(fields, nil),
		columns:   make([][]*chunkCursor, len(view)),
		lastCells: make([]lastCell, len(selected)),
	}
	if expr.FilteredIndex != nil {
		st.index = expr.FilteredIndex.Name
	}

	indexValues := make(map[types.TimeInt]struct{})
	numChunks := 0
	for i, d := range view {
		if d.Kind != KindComponent {
			continue
		}
		for _, c := range e.fetchChunks(expr, d) {
			cc, ok := newChunkCursor(c, d.Component, st.index)
			if !ok {
				continue
			}
			st.columns[i] = append(st.columns[i], cc)
			for _, idx := range cc.indices {
				indexValues[idx.Time] = struct{}{}
			}
			numChunks++
		}
	}
	if len(selected) > 0 {
		st.numRows = uint64(len(indexValues))
	}

	e.metrics.observeInit(expr.SparseFillStrategy, start, numChunks)
	e.logger.Debug("Query initialized",
		zap.String("index", st.index),
		zap.Int("view_columns", len(view)),
		zap.Int("selected_columns", len(selected)),
		zap.Int("chunks", numChunks),
		zap.Uint64("rows", st.numRows),
		zap.Duration("elapsed", time.Since(start)))
	return st
}

// fetchChunks returns the chunks holding d within the bounds of expr, each
// densified for d, sorted on the index and carrying one row per index value.
func (e *Engine) fetchChunks(expr QueryExpression, d ColumnDescriptor) []*chunk.Chunk {
	var out []*chunk.Chunk

	if expr.IncludesStatic() {
		for _, c := range e.store.StaticChunks(d.EntityPath, d.Component) {
			if c = c.Densified(d.Component); !c.IsEmpty() {
				out = append(out, c.DedupedLatestOnIndex(""))
			}
		}
	}

	if expr.FilteredIndex == nil {
		return out
	}
	index := expr.FilteredIndex.Name
	r := expr.IndexRange()
	if r.IsEmpty() {
		return out
	}
	values := expr.indexValueSet()

	q := chunk.RangeQuery{Timeline: index, Range: r}
	for _, c := range e.store.RangeChunks(q, d.EntityPath, d.Component) {
		c = c.DedupedLatestOnIndex(index)
		if values != nil {
			c = keepIndexValues(c, index, values)
		}
		if !c.IsEmpty() {
			out = append(out, c)
		}
	}
	return out
}

// keepIndexValues drops the rows of c whose time on index is not in values.
func keepIndexValues(c *chunk.Chunk, index string, values map[types.TimeInt]struct{}) *chunk.Chunk {
	tc, ok := c.Timeline(index)
	if !ok {
		return c.Taken(nil)
	}
	mask := make([]bool, tc.NumRows())
	for i, t := range tc.Times() {
		_, mask[i] = values[t]
	}
	return c.Filtered(mask)
}

func (e *Engine) recordStats(expr QueryExpression, selected []selectedColumn) {
	if e.stats == nil {
		return
	}
	if expr.FilteredIndex != nil {
		e.stats.RecordIndex(expr.FilteredIndex.Name)
	} else {
		e.stats.RecordIndex("")
	}
	for _, sel := range selected {
		kind := sel.desc.Kind.String()
		if sel.viewIndex < 0 {
			kind = "missing"
		}
		e.stats.RecordColumn(sel.desc.Name(), kind)
	}
}

// checkSortedIndices panics if indices are not strictly increasing in time.
// The merge relies on every chunk yielding one row per index value, in order.
func checkSortedIndices(c *chunk.Chunk, indices []chunk.Index) {
	if !invariants.Enabled {
		return
	}
	for i := 1; i < len(indices); i++ {
		if indices[i].Time <= indices[i-1].Time {
			panic("query: chunk " + c.ID().String() + " is not deduplicated and sorted on the index")
		}
	}
}
