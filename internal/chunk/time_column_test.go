package chunk

import (
	"math"
	"testing"

	"github.com/arkilian/chunkstore/internal/errors"
	"github.com/arkilian/chunkstore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewTimeColumn_SortedAndRange(t *testing.T) {
	sorted := NewTimeColumn(frameNr, []types.TimeInt{1, 3, 3, 7})
	assert.True(t, sorted.IsSorted())
	assert.Equal(t, types.NewTimeRange(1, 7), sorted.TimeRange())

	unsorted := NewTimeColumn(frameNr, []types.TimeInt{5, -2, 9, 0})
	assert.False(t, unsorted.IsSorted())
	assert.Equal(t, types.NewTimeRange(-2, 9), unsorted.TimeRange())

	empty := NewTimeColumn(frameNr, nil)
	assert.True(t, empty.IsSorted())
	assert.True(t, empty.TimeRange().IsEmpty())
	require.NoError(t, empty.sanityCheck(true))
}

func TestNewSequenceColumn_ClampsStaticSentinel(t *testing.T) {
	tc := NewSequenceColumn("frame_nr", []int64{math.MinInt64, 4})
	assert.Equal(t, []types.TimeInt{types.TimeIntMin, 4}, tc.Times())
	require.NoError(t, tc.sanityCheck(true))
}

func TestNewSequenceColumn_LogsClamping(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	defer zap.ReplaceGlobals(zap.New(core))()

	NewSequenceColumn("frame_nr", []int64{7, math.MinInt64})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	assert.Equal(t, "time value out of range, clamping to minimum", entry.Message)
	assert.Equal(t, map[string]interface{}{
		"timeline": "frame_nr",
		"value":    float64(math.MinInt64),
		"clamped":  int64(types.TimeIntMin),
	}, entry.ContextMap())
}

func TestNewSecondsColumn_Clamping(t *testing.T) {
	tc := NewSecondsColumn(logTime, []float64{1.5, math.NaN(), math.Inf(1), -1e30})
	assert.Equal(t, []types.TimeInt{1_500_000_000, types.TimeIntMin, types.TimeIntMin, types.TimeIntMin}, tc.Times())
	assert.Equal(t, logTime, tc.Timeline())
	require.NoError(t, tc.sanityCheck(true))
}

func TestNewNanosColumn(t *testing.T) {
	timeline := types.NewDurationTimeline("elapsed")
	tc := NewNanosColumn(timeline, []int64{10, 20, math.MinInt64})
	assert.Equal(t, []types.TimeInt{10, 20, types.TimeIntMin}, tc.Times())
	assert.False(t, tc.IsSorted())
}

func TestTimeColumn_SanityCheck(t *testing.T) {
	// A wrong sortedness hint whose ends are the extremes is only caught by
	// the expensive checks.
	lying := NewTimeColumnSorted(frameNr, []types.TimeInt{1, 3, 2, 5}, true)
	assert.Equal(t, types.NewTimeRange(1, 5), lying.TimeRange())
	require.NoError(t, lying.sanityCheck(false))
	assert.Equal(t, errors.CodeUnsorted, errors.GetCode(lying.sanityCheck(true)))

	// Otherwise the cached range is loose and the cheap checks see it.
	reversed := NewTimeColumnSorted(frameNr, []types.TimeInt{3, 1}, true)
	assert.Equal(t, errors.CodeTimeRange, errors.GetCode(reversed.sanityCheck(false)))

	loose := &TimeColumn{timeline: frameNr, times: []types.TimeInt{2, 4}, isSorted: true, timeRange: types.NewTimeRange(0, 4)}
	assert.Equal(t, errors.CodeTimeRange, errors.GetCode(loose.sanityCheck(false)))

	static := &TimeColumn{
		timeline:  frameNr,
		times:     []types.TimeInt{types.TimeIntStatic, 1},
		isSorted:  true,
		timeRange: types.NewTimeRange(types.TimeIntStatic, 1),
	}
	assert.Equal(t, errors.CodeStaticTime, errors.GetCode(static.sanityCheck(false)))

	badType := NewTimeColumn(types.Timeline{Name: "x", Type: types.TimeType(42)}, []types.TimeInt{1})
	assert.Equal(t, errors.CodeDatatypeMismatch, errors.GetCode(badType.SanityCheck()))
}

func TestTimeColumn_SlicedAndTaken(t *testing.T) {
	tc := NewTimeColumn(frameNr, []types.TimeInt{5, 1, 2, 8})

	sliced := tc.Sliced(1, 2)
	assert.Equal(t, []types.TimeInt{1, 2}, sliced.Times())
	assert.True(t, sliced.IsSorted())
	assert.Equal(t, types.NewTimeRange(1, 2), sliced.TimeRange())

	taken := tc.Taken([]int{3, 0})
	assert.Equal(t, []types.TimeInt{8, 5}, taken.Times())
	assert.False(t, taken.IsSorted())
}

func TestTimeColumn_TimeRangePerComponent(t *testing.T) {
	c := buildChunk(t,
		testRow{id: 1, frame: 1, point: []float32{1}, color: []uint32{0xff}},
		testRow{id: 2, frame: 3, point: []float32{3}},
		testRow{id: 3, frame: 5, point: []float32{5}, color: []uint32{0xaa}},
		testRow{id: 4, frame: 9, point: []float32{9}},
	)
	tc, ok := c.Timeline(frameNr.Name)
	require.True(t, ok)

	ranges := tc.TimeRangePerComponent(c.Components())
	assert.Equal(t, types.NewTimeRange(1, 9), ranges[pointDesc], "dense column reuses the full range")
	assert.Equal(t, types.NewTimeRange(1, 5), ranges[colorDesc], "sparse column gets a tight sub-range")

	unsorted := c.Taken([]int{3, 2, 1, 0})
	utc, _ := unsorted.Timeline(frameNr.Name)
	require.False(t, utc.IsSorted())
	assert.Equal(t, types.NewTimeRange(1, 5), utc.TimeRangePerComponent(unsorted.Components())[colorDesc])
}
