package chunk

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/arkilian/chunkstore/pkg/types"
	"github.com/stretchr/testify/require"
)

var (
	frameNr = types.NewSequenceTimeline("frame_nr")
	logTime = types.NewTimestampTimeline("log_time")

	pointDesc = types.NewComponentDescriptor("example.MyPoint").WithArchetype("example.MyPoints", "points")
	colorDesc = types.NewComponentDescriptor("example.MyColor").WithArchetype("example.MyPoints", "colors")
	labelDesc = types.NewComponentDescriptor("example.MyLabel")
)

func float32Cell(vals ...float32) arrow.Array {
	b := array.NewFloat32Builder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewArray()
}

func uint32Cell(vals ...uint32) arrow.Array {
	b := array.NewUint32Builder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewArray()
}

func stringCell(vals ...string) arrow.Array {
	b := array.NewStringBuilder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewArray()
}

func rowID(n uint64) RowID {
	return RowIDFromParts(1_700_000_000, n)
}

type testRow struct {
	id     uint64
	frame  int64
	point  []float32
	color  []uint32
	static bool
}

// buildChunk assembles a chunk of /this/that from rows logged on frame_nr.
func buildChunk(t *testing.T, rows ...testRow) *Chunk {
	t.Helper()
	b := NewBuilder(types.ParseEntityPath("/this/that"))
	for _, r := range rows {
		cells := map[types.ComponentDescriptor]arrow.Array{}
		if r.point != nil {
			cells[pointDesc] = float32Cell(r.point...)
		} else {
			cells[pointDesc] = nil
		}
		if r.color != nil {
			cells[colorDesc] = uint32Cell(r.color...)
		}
		var tp TimePoint
		if !r.static {
			tp = TimePoint{frameNr: r.frame}
		}
		b.WithRow(rowID(r.id), tp, cells)
	}
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func frames(c *Chunk) []types.TimeInt {
	tc, ok := c.Timeline(frameNr.Name)
	if !ok {
		return nil
	}
	return tc.Times()
}

func rowCounters(c *Chunk) []uint64 {
	out := make([]uint64, c.NumRows())
	for i, id := range c.RowIDs() {
		_, out[i] = id.Parts()
	}
	return out
}

// pointValues returns the first float of each point cell, or -1 for nulls.
func pointValues(c *Chunk) []float32 {
	list, ok := c.Components().Get(pointDesc)
	if !ok {
		return nil
	}
	out := make([]float32, list.Len())
	for i := range out {
		cell := Cell(list, i)
		if cell == nil {
			out[i] = -1
			continue
		}
		out[i] = cell.(*array.Float32).Value(0)
	}
	return out
}
