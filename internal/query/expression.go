package query

import (
	"fmt"

	"github.com/arkilian/chunkstore/pkg/types"
)

// SparseFillStrategy decides what a row carries for a component that has no
// value at that row's index.
type SparseFillStrategy int

const (
	// SparseFillNone leaves missing cells null.
	SparseFillNone SparseFillStrategy = iota
	// SparseFillLatestAtLocal repeats the last value the handle emitted for
	// the column.
	SparseFillLatestAtLocal
)

// String returns the configuration spelling of the strategy.
func (s SparseFillStrategy) String() string {
	switch s {
	case SparseFillNone:
		return "none"
	case SparseFillLatestAtLocal:
		return "latest_at_local"
	default:
		return fmt.Sprintf("SparseFillStrategy(%d)", int(s))
	}
}

// ParseSparseFillStrategy parses the output of String.
func ParseSparseFillStrategy(s string) (SparseFillStrategy, error) {
	switch s {
	case "", "none":
		return SparseFillNone, nil
	case "latest_at_local":
		return SparseFillLatestAtLocal, nil
	default:
		return 0, fmt.Errorf("unknown sparse fill strategy %q", s)
	}
}

// ViewContents restricts which entities take part in a query, and for each
// one which components. A nil component list selects every component.
type ViewContents map[types.EntityPath][]types.ComponentName

// QueryExpression describes a dataframe query.
type QueryExpression struct {
	// ViewContents restricts the participating columns. Nil means everything.
	ViewContents ViewContents

	// IncludeSemanticallyEmptyColumns keeps component columns whose cells
	// can never hold data (arrow.Null elements).
	IncludeSemanticallyEmptyColumns bool

	// FilteredIndex is the timeline rows are paged over. Nil means only
	// static data is returned.
	FilteredIndex *types.Timeline

	// FilteredIndexRange restricts the index values returned.
	FilteredIndexRange *types.TimeRange

	// FilteredIndexValues, when non-nil, restricts the index values returned
	// to this set.
	FilteredIndexValues []types.TimeInt

	SparseFillStrategy SparseFillStrategy

	// Selection lists the output columns. Nil selects the whole view; an
	// empty non-nil slice selects nothing.
	Selection []ColumnSelector
}

// IncludesStatic reports whether static data contributes rows.
func (q QueryExpression) IncludesStatic() bool {
	return q.FilteredIndexRange == nil && q.FilteredIndexValues == nil
}

// IndexRange is the span of index values temporal data is fetched for.
func (q QueryExpression) IndexRange() types.TimeRange {
	r := types.EverythingTimeRange
	if q.FilteredIndexRange != nil {
		r = *q.FilteredIndexRange
	}
	if q.FilteredIndexValues != nil {
		values := types.EmptyTimeRange
		for _, v := range q.FilteredIndexValues {
			values = values.Union(types.NewTimeRange(v, v))
		}
		if values.IsEmpty() {
			return values
		}
		r = types.NewTimeRange(max(r.Min, values.Min), min(r.Max, values.Max))
	}
	return r
}

// indexValueSet returns FilteredIndexValues as a set, or nil when the
// values are unrestricted.
func (q QueryExpression) indexValueSet() map[types.TimeInt]struct{} {
	if q.FilteredIndexValues == nil {
		return nil
	}
	set := make(map[types.TimeInt]struct{}, len(q.FilteredIndexValues))
	for _, v := range q.FilteredIndexValues {
		set[v] = struct{}{}
	}
	return set
}

// normalized returns a copy of v with every entity path in normal form.
func (v ViewContents) normalized() ViewContents {
	if v == nil {
		return nil
	}
	out := make(ViewContents, len(v))
	for e, components := range v {
		out[types.ParseEntityPath(string(e))] = components
	}
	return out
}

// includes reports whether the view covers component on entity.
func (v ViewContents) includes(entity types.EntityPath, component types.ComponentName) bool {
	if v == nil {
		return true
	}
	components, ok := v[entity]
	if !ok {
		return false
	}
	if components == nil {
		return true
	}
	for _, c := range components {
		if c == component {
			return true
		}
	}
	return false
}
