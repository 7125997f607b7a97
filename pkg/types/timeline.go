package types

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
)

// TimeInt is a point on a timeline: a sequence number, a duration or a
// timestamp, depending on the timeline's TimeType.
type TimeInt = int64

const (
	// TimeIntStatic is the reserved sentinel for data that has no time at all.
	// It never appears inside a TimeColumn.
	TimeIntStatic TimeInt = math.MinInt64

	// TimeIntMin is the smallest legal temporal value.
	TimeIntMin TimeInt = math.MinInt64 + 1

	// TimeIntMax is the largest legal temporal value.
	TimeIntMax TimeInt = math.MaxInt64
)

// IsLegalTime reports whether t can be stored in a time column.
func IsLegalTime(t TimeInt) bool {
	return t != TimeIntStatic
}

// TimeType describes how the values of a timeline are interpreted.
type TimeType uint8

const (
	// TimeTypeSequence is a plain monotonic counter, e.g. a frame number.
	TimeTypeSequence TimeType = iota
	// TimeTypeDurationNs is a duration in nanoseconds, e.g. time since start.
	TimeTypeDurationNs
	// TimeTypeTimestampNs is nanoseconds since the Unix epoch.
	TimeTypeTimestampNs
)

// String returns the canonical name of the time type.
func (t TimeType) String() string {
	switch t {
	case TimeTypeSequence:
		return "sequence"
	case TimeTypeDurationNs:
		return "duration_ns"
	case TimeTypeTimestampNs:
		return "timestamp_ns"
	default:
		return fmt.Sprintf("time_type(%d)", uint8(t))
	}
}

// IsValid reports whether t is one of the known time types.
func (t TimeType) IsValid() bool {
	return t <= TimeTypeTimestampNs
}

// ParseTimeType parses the output of TimeType.String.
func ParseTimeType(s string) (TimeType, error) {
	switch s {
	case "sequence":
		return TimeTypeSequence, nil
	case "duration_ns":
		return TimeTypeDurationNs, nil
	case "timestamp_ns":
		return TimeTypeTimestampNs, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimeType, s)
}

// ArrowDataType returns the arrow datatype used to represent values of this type.
func (t TimeType) ArrowDataType() arrow.DataType {
	switch t {
	case TimeTypeDurationNs:
		return arrow.FixedWidthTypes.Duration_ns
	case TimeTypeTimestampNs:
		return arrow.FixedWidthTypes.Timestamp_ns
	default:
		return arrow.PrimitiveTypes.Int64
	}
}

// TimeTypeFromArrow maps an arrow datatype back to a TimeType.
func TimeTypeFromArrow(dt arrow.DataType) (TimeType, bool) {
	switch dt.ID() {
	case arrow.INT64:
		return TimeTypeSequence, true
	case arrow.DURATION:
		return TimeTypeDurationNs, true
	case arrow.TIMESTAMP:
		return TimeTypeTimestampNs, true
	}
	return 0, false
}

// Timeline identifies one time axis, e.g. "frame_nr" or "log_time".
type Timeline struct {
	Name string
	Type TimeType
}

// NewSequenceTimeline returns a timeline of sequence numbers.
func NewSequenceTimeline(name string) Timeline {
	return Timeline{Name: name, Type: TimeTypeSequence}
}

// NewDurationTimeline returns a timeline of nanosecond durations.
func NewDurationTimeline(name string) Timeline {
	return Timeline{Name: name, Type: TimeTypeDurationNs}
}

// NewTimestampTimeline returns a timeline of nanosecond timestamps.
func NewTimestampTimeline(name string) Timeline {
	return Timeline{Name: name, Type: TimeTypeTimestampNs}
}

// String returns "name (type)".
func (t Timeline) String() string {
	return fmt.Sprintf("%s (%s)", t.Name, t.Type)
}

// TimeRange is an inclusive [Min, Max] range of time values.
type TimeRange struct {
	Min TimeInt
	Max TimeInt
}

var (
	// EmptyTimeRange contains nothing and is the identity of Union.
	EmptyTimeRange = TimeRange{Min: TimeIntMax, Max: TimeIntMin}

	// EverythingTimeRange contains every legal time value.
	EverythingTimeRange = TimeRange{Min: TimeIntMin, Max: TimeIntMax}
)

// NewTimeRange returns the inclusive range [min, max].
func NewTimeRange(min, max TimeInt) TimeRange {
	return TimeRange{Min: min, Max: max}
}

// IsEmpty reports whether the range contains no value.
func (r TimeRange) IsEmpty() bool {
	return r.Min > r.Max
}

// Contains reports whether t lies within the range.
func (r TimeRange) Contains(t TimeInt) bool {
	return r.Min <= t && t <= r.Max
}

// Intersects reports whether the two ranges share at least one value.
func (r TimeRange) Intersects(other TimeRange) bool {
	if r.IsEmpty() || other.IsEmpty() {
		return false
	}
	return r.Min <= other.Max && other.Min <= r.Max
}

// Union returns the smallest range containing both r and other.
func (r TimeRange) Union(other TimeRange) TimeRange {
	if r.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return r
	}
	return TimeRange{Min: min(r.Min, other.Min), Max: max(r.Max, other.Max)}
}

// String formats the range for diagnostics.
func (r TimeRange) String() string {
	if r.IsEmpty() {
		return "[empty]"
	}
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}
