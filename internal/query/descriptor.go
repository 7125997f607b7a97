package query

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/arkilian/chunkstore/internal/chunk"
	"github.com/arkilian/chunkstore/pkg/types"
)

// ColumnKind distinguishes the three families of output columns.
type ColumnKind int

const (
	// KindControl columns carry bookkeeping data such as RowIDs.
	KindControl ColumnKind = iota
	// KindTime columns carry the values of one timeline.
	KindTime
	// KindComponent columns carry the cells of one component on one entity.
	KindComponent
)

// String returns the metadata spelling of the kind.
func (k ColumnKind) String() string {
	switch k {
	case KindControl:
		return chunk.KindControl
	case KindTime:
		return chunk.KindTime
	case KindComponent:
		return chunk.KindComponent
	default:
		return fmt.Sprintf("ColumnKind(%d)", int(k))
	}
}

// ColumnDescriptor describes one column of a query's view or output.
type ColumnDescriptor struct {
	Kind ColumnKind

	// ControlName names a control column.
	ControlName string

	// Timeline is set for time columns.
	Timeline types.Timeline

	// EntityPath and Component are set for component columns.
	EntityPath types.EntityPath
	Component  types.ComponentDescriptor
	IsStatic   bool

	// DataType is the arrow type of the column's values. Placeholders for
	// selections that matched nothing use arrow.Null.
	DataType arrow.DataType
}

// RowIDDescriptor is the control column holding each row's RowID.
func RowIDDescriptor() ColumnDescriptor {
	return ColumnDescriptor{
		Kind:        KindControl,
		ControlName: chunk.RowIDColumnName,
		DataType:    chunk.RowIDDataType,
	}
}

// TimeDescriptor is the column holding the values of timeline.
func TimeDescriptor(timeline types.Timeline) ColumnDescriptor {
	return ColumnDescriptor{
		Kind:     KindTime,
		Timeline: timeline,
		DataType: timeline.Type.ArrowDataType(),
	}
}

// ComponentDescriptor is the column holding desc on entity. dt is the list
// type the column is stored as.
func ComponentDescriptor(entity types.EntityPath, desc types.ComponentDescriptor, dt arrow.DataType, isStatic bool) ColumnDescriptor {
	return ColumnDescriptor{
		Kind:       KindComponent,
		EntityPath: entity,
		Component:  desc,
		IsStatic:   isStatic,
		DataType:   dt,
	}
}

// IsPlaceholder reports whether the descriptor stands in for a selection
// that matched no column.
func (d ColumnDescriptor) IsPlaceholder() bool {
	return d.DataType == nil || d.DataType.ID() == arrow.NULL
}

// Name returns the output column name.
func (d ColumnDescriptor) Name() string {
	switch d.Kind {
	case KindControl:
		return d.ControlName
	case KindTime:
		return d.Timeline.Name
	default:
		return d.EntityPath.String() + ":" + d.Component.String()
	}
}

// ArrowField returns the output field for the column, annotated with the
// same metadata keys chunk records use.
func (d ColumnDescriptor) ArrowField() arrow.Field {
	keys := []string{chunk.MetaKind}
	values := []string{d.Kind.String()}

	switch d.Kind {
	case KindComponent:
		keys = append(keys, chunk.MetaEntityPath, chunk.MetaComponent)
		values = append(values, d.EntityPath.String(), string(d.Component.ComponentName))
		if d.Component.ArchetypeName != "" {
			keys = append(keys, chunk.MetaArchetype)
			values = append(values, d.Component.ArchetypeName)
		}
		if d.Component.ArchetypeFieldName != "" {
			keys = append(keys, chunk.MetaField)
			values = append(values, d.Component.ArchetypeFieldName)
		}
		if d.IsStatic {
			keys = append(keys, chunk.MetaIsStatic)
			values = append(values, strconv.FormatBool(true))
		}
	}

	dt := d.DataType
	if dt == nil {
		dt = arrow.Null
	}
	return arrow.Field{
		Name:     d.Name(),
		Type:     dt,
		Nullable: d.Kind != KindControl || d.IsPlaceholder(),
		Metadata: arrow.NewMetadata(keys, values),
	}
}

// ColumnSelector picks one output column out of a query's view.
type ColumnSelector struct {
	Kind ColumnKind

	// Name is the control column name or the timeline name.
	Name string

	// EntityPath and Component select a component column. Component matches
	// either a bare component name or a full descriptor string.
	EntityPath types.EntityPath
	Component  string
}

// SelectControl selects the control column called name.
func SelectControl(name string) ColumnSelector {
	return ColumnSelector{Kind: KindControl, Name: name}
}

// SelectTime selects the values of the named timeline.
func SelectTime(timeline string) ColumnSelector {
	return ColumnSelector{Kind: KindTime, Name: timeline}
}

// SelectComponent selects component on entity.
func SelectComponent(entity types.EntityPath, component string) ColumnSelector {
	return ColumnSelector{Kind: KindComponent, EntityPath: types.ParseEntityPath(string(entity)), Component: component}
}

// Matches reports whether the selector picks d.
func (s ColumnSelector) Matches(d ColumnDescriptor) bool {
	if s.Kind != d.Kind || d.IsPlaceholder() {
		return false
	}
	switch s.Kind {
	case KindControl:
		return s.Name == d.ControlName
	case KindTime:
		return s.Name == d.Timeline.Name
	default:
		if s.EntityPath != d.EntityPath {
			return false
		}
		return s.Component == string(d.Component.ComponentName) || s.Component == d.Component.String()
	}
}

// placeholder returns the all-null stand-in for a selector that matched
// nothing in the view.
func (s ColumnSelector) placeholder() ColumnDescriptor {
	d := ColumnDescriptor{Kind: s.Kind, DataType: arrow.Null}
	switch s.Kind {
	case KindControl:
		d.ControlName = s.Name
	case KindTime:
		d.Timeline = types.Timeline{Name: s.Name}
	default:
		d.EntityPath = s.EntityPath
		d.Component = types.NewComponentDescriptor(types.ComponentName(s.Component))
	}
	return d
}

// String renders the selector for logs.
func (s ColumnSelector) String() string {
	switch s.Kind {
	case KindControl, KindTime:
		return s.Kind.String() + ":" + s.Name
	default:
		return s.Kind.String() + ":" + s.EntityPath.String() + ":" + s.Component
	}
}
