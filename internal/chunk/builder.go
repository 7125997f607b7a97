package chunk

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/arkilian/chunkstore/internal/errors"
	"github.com/arkilian/chunkstore/pkg/types"
)

// TimePoint is the set of time values a row is logged at.
type TimePoint map[types.Timeline]types.TimeInt

// Builder assembles a chunk row by row.
type Builder struct {
	id         ChunkID
	entityPath types.EntityPath
	rowIDs     []RowID
	timelines  map[string]*timelineBuilder
	order      []types.ComponentDescriptor
	components map[types.ComponentDescriptor]*componentBuilder
}

type timelineBuilder struct {
	timeline types.Timeline
	times    []types.TimeInt
}

type componentBuilder struct {
	datatype arrow.DataType
	cells    []arrow.Array
}

// NewBuilder creates a builder for a chunk of entityPath with a fresh id.
func NewBuilder(entityPath types.EntityPath) *Builder {
	return &Builder{
		id:         NewChunkID(),
		entityPath: entityPath,
		timelines:  make(map[string]*timelineBuilder),
		components: make(map[types.ComponentDescriptor]*componentBuilder),
	}
}

// WithID overrides the generated chunk id.
func (b *Builder) WithID(id ChunkID) *Builder {
	b.id = id
	return b
}

// WithRow appends a row. Every row of a temporal chunk must be logged at the
// same set of timelines; a nil timepoint logs a static row. A nil cell, or a
// component absent from cells, is null for this row.
func (b *Builder) WithRow(rowID RowID, timepoint TimePoint, cells map[types.ComponentDescriptor]arrow.Array) *Builder {
	row := len(b.rowIDs)
	b.rowIDs = append(b.rowIDs, rowID)

	for timeline, t := range timepoint {
		tb, ok := b.timelines[timeline.Name]
		if !ok {
			tb = &timelineBuilder{timeline: timeline}
			b.timelines[timeline.Name] = tb
		}
		tb.times = append(tb.times, t)
	}

	for desc, cell := range cells {
		desc = desc.Normalized()
		cb, ok := b.components[desc]
		if !ok {
			// Earlier rows are null for a column first seen here.
			cb = &componentBuilder{cells: make([]arrow.Array, row)}
			b.components[desc] = cb
			b.order = append(b.order, desc)
		}
		if cb.datatype == nil && cell != nil {
			cb.datatype = cell.DataType()
		}
		cb.cells = append(cb.cells, cell)
	}
	for _, cb := range b.components {
		if len(cb.cells) == row {
			cb.cells = append(cb.cells, nil)
		}
	}
	return b
}

// Build assembles the rows appended so far into a sanity-checked chunk.
// Rows keep their insertion order. Component columns that never received a
// value are dropped.
func (b *Builder) Build() (*Chunk, error) {
	timelines := make([]*TimeColumn, 0, len(b.timelines))
	for name, tb := range b.timelines {
		if len(tb.times) != len(b.rowIDs) {
			return nil, errors.NewMalformedChunk(errors.CodeLengthMismatch,
				"timeline %q was logged for %d of %d rows", name, len(tb.times), len(b.rowIDs))
		}
		timelines = append(timelines, NewTimeColumn(tb.timeline, tb.times))
	}

	components := Components{}
	for _, desc := range b.order {
		cb := b.components[desc]
		if cb.datatype == nil {
			continue
		}
		list, err := NewListArray(cb.datatype, cb.cells)
		if err != nil {
			return nil, err
		}
		components.Insert(desc, list)
	}

	return New(b.id, b.entityPath, nil, b.rowIDs, timelines, components)
}
