package chunk

import (
	"math"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/arkilian/chunkstore/internal/errors"
	"github.com/arkilian/chunkstore/internal/invariants"
	"github.com/arkilian/chunkstore/pkg/types"
	"go.uber.org/zap"
)

// TimeColumn holds one timeline's time values, one per chunk row.
// The sortedness flag and range are cached at construction, and the range is
// always tight: both bounds occur in the column.
type TimeColumn struct {
	timeline  types.Timeline
	times     []types.TimeInt
	isSorted  bool
	timeRange types.TimeRange
}

// NewTimeColumn builds a time column, scanning times to determine sortedness.
func NewTimeColumn(timeline types.Timeline, times []types.TimeInt) *TimeColumn {
	return NewTimeColumnSorted(timeline, times, isSortedTimes(times))
}

// NewTimeColumnSorted builds a time column trusting the caller's sortedness
// hint. A sorted hint takes the range from the first and last values, so a
// wrong hint yields a loose range whenever those are not the extremes, which
// SanityCheck always reports. The hint itself is only verified when
// invariants are enabled.
func NewTimeColumnSorted(timeline types.Timeline, times []types.TimeInt, isSorted bool) *TimeColumn {
	return &TimeColumn{
		timeline:  timeline,
		times:     times,
		isSorted:  isSorted,
		timeRange: computeTimeRange(times, isSorted),
	}
}

// NewSequenceColumn builds a sequence timeline column. The static sentinel is
// not a legal sequence value and is clamped to types.TimeIntMin.
func NewSequenceColumn(name string, seq []int64) *TimeColumn {
	timeline := types.NewSequenceTimeline(name)
	times := make([]types.TimeInt, len(seq))
	for i, v := range seq {
		times[i] = clampTime(timeline, v, float64(v))
	}
	return NewTimeColumn(timeline, times)
}

// NewNanosColumn builds a duration or timestamp column from nanoseconds.
func NewNanosColumn(timeline types.Timeline, nanos []int64) *TimeColumn {
	times := make([]types.TimeInt, len(nanos))
	for i, v := range nanos {
		times[i] = clampTime(timeline, v, float64(v))
	}
	return NewTimeColumn(timeline, times)
}

// NewSecondsColumn builds a duration or timestamp column from (fractional)
// seconds. Values that do not fit in int64 nanoseconds, NaN and infinities are
// clamped to types.TimeIntMin.
func NewSecondsColumn(timeline types.Timeline, secs []float64) *TimeColumn {
	times := make([]types.TimeInt, len(secs))
	for i, s := range secs {
		ns := s * 1e9
		if math.IsNaN(ns) || ns < math.MinInt64 || ns >= math.MaxInt64 {
			times[i] = clampTime(timeline, types.TimeIntStatic, s)
			continue
		}
		times[i] = clampTime(timeline, int64(math.Round(ns)), s)
	}
	return NewTimeColumn(timeline, times)
}

func clampTime(timeline types.Timeline, v int64, input float64) types.TimeInt {
	if types.IsLegalTime(v) {
		return v
	}
	zap.L().Warn("time value out of range, clamping to minimum",
		zap.String("timeline", timeline.Name),
		zap.Float64("value", input),
		zap.Int64("clamped", types.TimeIntMin))
	return types.TimeIntMin
}

func isSortedTimes(times []types.TimeInt) bool {
	for i := 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			return false
		}
	}
	return true
}

func computeTimeRange(times []types.TimeInt, isSorted bool) types.TimeRange {
	if len(times) == 0 {
		return types.EmptyTimeRange
	}
	if isSorted {
		return types.NewTimeRange(times[0], times[len(times)-1])
	}
	r := types.NewTimeRange(times[0], times[0])
	for _, t := range times[1:] {
		r.Min = min(r.Min, t)
		r.Max = max(r.Max, t)
	}
	return r
}

func (tc *TimeColumn) Timeline() types.Timeline {
	return tc.timeline
}

func (tc *TimeColumn) Name() string {
	return tc.timeline.Name
}

// Times returns the underlying values. Callers must not modify them.
func (tc *TimeColumn) Times() []types.TimeInt {
	return tc.times
}

func (tc *TimeColumn) NumRows() int {
	return len(tc.times)
}

func (tc *TimeColumn) Row(i int) types.TimeInt {
	return tc.times[i]
}

func (tc *TimeColumn) IsSorted() bool {
	return tc.isSorted
}

// TimeRange returns the tight [min, max] range of the column.
func (tc *TimeColumn) TimeRange() types.TimeRange {
	return tc.timeRange
}

// HeapSizeBytes returns the memory held by the column's values.
func (tc *TimeColumn) HeapSizeBytes() uint64 {
	return uint64(len(tc.times))*8 + uint64(len(tc.timeline.Name))
}

// Sliced returns rows [offset, offset+length).
func (tc *TimeColumn) Sliced(offset, length int) *TimeColumn {
	times := tc.times[offset : offset+length]
	if tc.isSorted {
		return NewTimeColumnSorted(tc.timeline, times, true)
	}
	return NewTimeColumn(tc.timeline, times)
}

// Taken returns a column made of the given rows, in order.
func (tc *TimeColumn) Taken(indices []int) *TimeColumn {
	times := make([]types.TimeInt, len(indices))
	for i, idx := range indices {
		times[i] = tc.times[idx]
	}
	return NewTimeColumn(tc.timeline, times)
}

// TimeRangePerComponent returns, for every component column, the tight time
// range covered by its non-null rows. Columns without any null reuse the
// column's own range. Columns with no valid row are omitted.
func (tc *TimeColumn) TimeRangePerComponent(components Components) map[types.ComponentDescriptor]types.TimeRange {
	ranges := make(map[types.ComponentDescriptor]types.TimeRange)
	for _, col := range components.All() {
		if r := tc.timeRangeForList(col.List); !r.IsEmpty() {
			ranges[col.Descriptor] = r
		}
	}
	return ranges
}

func (tc *TimeColumn) timeRangeForList(list *array.List) types.TimeRange {
	if list.NullN() == 0 {
		return tc.timeRange
	}
	r := types.EmptyTimeRange
	if tc.isSorted {
		for i := 0; i < list.Len(); i++ {
			if list.IsValid(i) {
				r.Min = tc.times[i]
				break
			}
		}
		for i := list.Len() - 1; i >= 0; i-- {
			if list.IsValid(i) {
				r.Max = tc.times[i]
				break
			}
		}
		return r
	}
	for i := 0; i < list.Len(); i++ {
		if list.IsValid(i) {
			r = r.Union(types.NewTimeRange(tc.times[i], tc.times[i]))
		}
	}
	return r
}

// SanityCheck validates the column's structural invariants.
func (tc *TimeColumn) SanityCheck() error {
	return tc.sanityCheck(invariants.Enabled)
}

func (tc *TimeColumn) sanityCheck(expensive bool) error {
	if !tc.timeline.Type.IsValid() {
		return errors.NewMalformedChunk(errors.CodeDatatypeMismatch,
			"timeline %q has unknown type %s", tc.timeline.Name, tc.timeline.Type)
	}

	if expensive && tc.isSorted != isSortedTimes(tc.times) {
		return errors.NewMalformedChunk(errors.CodeUnsorted,
			"timeline %q: cached is_sorted=%v does not match contents", tc.timeline.Name, tc.isSorted)
	}

	if len(tc.times) == 0 {
		if !tc.timeRange.IsEmpty() {
			return errors.NewMalformedChunk(errors.CodeTimeRange,
				"timeline %q: empty column has non-empty range %s", tc.timeline.Name, tc.timeRange)
		}
		return nil
	}

	actual := types.NewTimeRange(tc.times[0], tc.times[0])
	for _, t := range tc.times {
		if t == types.TimeIntStatic {
			return errors.NewMalformedChunk(errors.CodeStaticTime,
				"timeline %q contains the static time sentinel", tc.timeline.Name)
		}
		actual.Min = min(actual.Min, t)
		actual.Max = max(actual.Max, t)
	}
	if actual != tc.timeRange {
		return errors.NewMalformedChunk(errors.CodeTimeRange,
			"timeline %q: cached range %s is not tight, contents span %s", tc.timeline.Name, tc.timeRange, actual)
	}
	return nil
}
