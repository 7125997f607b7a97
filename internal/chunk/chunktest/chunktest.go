// Package chunktest provides helpers for building chunks in tests.
package chunktest

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/arkilian/chunkstore/internal/chunk"
	"github.com/arkilian/chunkstore/pkg/types"
	"github.com/stretchr/testify/require"
)

var mem = memory.NewGoAllocator()

// Descriptors shared by tests across packages.
var (
	FrameNr = types.NewSequenceTimeline("frame_nr")
	LogTime = types.NewTimestampTimeline("log_time")

	PointDesc = types.NewComponentDescriptor("example.MyPoint").WithArchetype("example.MyPoints", "points")
	ColorDesc = types.NewComponentDescriptor("example.MyColor").WithArchetype("example.MyPoints", "colors")
	LabelDesc = types.NewComponentDescriptor("example.MyLabel").WithArchetype("example.MyPoints", "labels")
)

func Float32s(vals ...float32) arrow.Array {
	b := array.NewFloat32Builder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewArray()
}

func Uint32s(vals ...uint32) arrow.Array {
	b := array.NewUint32Builder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewArray()
}

func Strings(vals ...string) arrow.Array {
	b := array.NewStringBuilder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewArray()
}

// RowID returns a deterministic RowID whose counter is n.
func RowID(n uint64) chunk.RowID {
	return chunk.RowIDFromParts(1_700_000_000, n)
}

// Row is one row handed to Build.
type Row struct {
	ID    chunk.RowID
	Time  chunk.TimePoint
	Cells map[types.ComponentDescriptor]arrow.Array
}

// Build assembles rows into a chunk of entity, failing the test on error.
func Build(t testing.TB, entity string, rows ...Row) *chunk.Chunk {
	t.Helper()
	b := chunk.NewBuilder(types.ParseEntityPath(entity))
	for _, r := range rows {
		b.WithRow(r.ID, r.Time, r.Cells)
	}
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

// Frame returns a time point on FrameNr.
func Frame(t int64) chunk.TimePoint {
	return chunk.TimePoint{FrameNr: t}
}

// Float32Column returns the first value of every cell of desc in c, or nil
// entries for null rows.
func Float32Column(c *chunk.Chunk, desc types.ComponentDescriptor) []*float32 {
	list, ok := c.Components().Get(desc)
	if !ok {
		return nil
	}
	out := make([]*float32, list.Len())
	for i := range out {
		if cell := chunk.Cell(list, i); cell != nil {
			v := cell.(*array.Float32).Value(0)
			out[i] = &v
		}
	}
	return out
}
