package chunk

import (
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/arkilian/chunkstore/internal/errors"
	"github.com/arkilian/chunkstore/pkg/types"
)

// Arrow metadata keys attached to chunk records and query output fields.
const (
	MetaChunkID    = "chunkstore.id"
	MetaEntityPath = "chunkstore.entity_path"
	MetaIsSorted   = "chunkstore.is_sorted"
	MetaKind       = "chunkstore.kind"
	MetaComponent  = "chunkstore.component"
	MetaArchetype  = "chunkstore.archetype"
	MetaField      = "chunkstore.field"
	MetaIsStatic   = "chunkstore.is_static"

	KindControl   = "control"
	KindTime      = "time"
	KindComponent = "component"

	// RowIDColumnName is the reserved name of the control column.
	RowIDColumnName = "chunkstore.row_id"
)

// RowIDArray converts RowIDs to their arrow struct representation.
func RowIDArray(rowIDs []RowID) *array.Struct {
	sb := array.NewStructBuilder(mem, RowIDDataType)
	defer sb.Release()
	timeB := sb.FieldBuilder(0).(*array.Uint64Builder)
	counterB := sb.FieldBuilder(1).(*array.Uint64Builder)

	sb.Reserve(len(rowIDs))
	for _, id := range rowIDs {
		hi, lo := id.Parts()
		sb.Append(true)
		timeB.Append(hi)
		counterB.Append(lo)
	}
	return sb.NewStructArray()
}

// RowIDsFromArray parses the arrow struct representation of RowIDs.
func RowIDsFromArray(arr arrow.Array) ([]RowID, error) {
	st, ok := arr.(*array.Struct)
	if !ok || !arrow.TypeEqual(st.DataType(), RowIDDataType) {
		return nil, errors.NewMalformedChunk(errors.CodeDatatypeMismatch,
			"row id column has datatype %s, want %s", arr.DataType(), RowIDDataType)
	}
	if st.NullN() > 0 {
		return nil, errors.NewMalformedChunk(errors.CodeMalformedRecord, "row id column contains nulls")
	}
	timeArr := st.Field(0).(*array.Uint64)
	counterArr := st.Field(1).(*array.Uint64)

	rowIDs := make([]RowID, st.Len())
	for i := range rowIDs {
		rowIDs[i] = RowIDFromParts(timeArr.Value(i), counterArr.Value(i))
	}
	return rowIDs, nil
}

// TimeArray converts time values to the arrow type of the timeline.
// The returned array shares memory with times.
func TimeArray(timeline types.Timeline, times []types.TimeInt) arrow.Array {
	buf := memory.NewBufferBytes(arrow.Int64Traits.CastToBytes(times))
	data := array.NewData(timeline.Type.ArrowDataType(), len(times), []*memory.Buffer{nil, buf}, nil, 0, 0)
	defer data.Release()
	return array.MakeFromData(data)
}

// TimesFromArray reads the values of a non-nullable time array.
func TimesFromArray(arr arrow.Array) (types.Timeline, []types.TimeInt, error) {
	typ, ok := types.TimeTypeFromArrow(arr.DataType())
	if !ok {
		return types.Timeline{}, nil, errors.NewMalformedChunk(errors.CodeDatatypeMismatch,
			"unsupported time datatype %s", arr.DataType())
	}
	if arr.NullN() > 0 {
		return types.Timeline{}, nil, errors.NewMalformedChunk(errors.CodeMalformedRecord, "time column contains nulls")
	}
	data := arr.Data()
	times := make([]types.TimeInt, data.Len())
	if data.Len() > 0 {
		raw := arrow.Int64Traits.CastFromBytes(data.Buffers()[1].Bytes())
		copy(times, raw[data.Offset():data.Offset()+data.Len()])
	}
	return types.Timeline{Type: typ}, times, nil
}

// Schema returns the arrow schema of the chunk's record representation.
func (c *Chunk) Schema() *arrow.Schema {
	fields := []arrow.Field{{
		Name:     RowIDColumnName,
		Type:     RowIDDataType,
		Metadata: arrow.NewMetadata([]string{MetaKind}, []string{KindControl}),
	}}
	for _, tc := range c.Timelines() {
		fields = append(fields, arrow.Field{
			Name: tc.Name(),
			Type: tc.Timeline().Type.ArrowDataType(),
			Metadata: arrow.NewMetadata(
				[]string{MetaKind, MetaIsSorted},
				[]string{KindTime, strconv.FormatBool(tc.IsSorted())}),
		})
	}
	for _, col := range c.components.All() {
		fields = append(fields, arrow.Field{
			Name:     col.Descriptor.String(),
			Type:     col.List.DataType(),
			Nullable: true,
			Metadata: componentMetadata(col.Descriptor, c.IsStatic()),
		})
	}

	md := arrow.NewMetadata(
		[]string{MetaChunkID, MetaEntityPath, MetaIsSorted},
		[]string{c.id.String(), c.entityPath.String(), strconv.FormatBool(c.isSorted)})
	return arrow.NewSchema(fields, &md)
}

func componentMetadata(desc types.ComponentDescriptor, isStatic bool) arrow.Metadata {
	keys := []string{MetaKind, MetaComponent, MetaIsStatic}
	values := []string{KindComponent, string(desc.ComponentName), strconv.FormatBool(isStatic)}
	if desc.ArchetypeName != "" {
		keys = append(keys, MetaArchetype)
		values = append(values, desc.ArchetypeName)
	}
	if desc.ArchetypeFieldName != "" {
		keys = append(keys, MetaField)
		values = append(values, desc.ArchetypeFieldName)
	}
	return arrow.NewMetadata(keys, values)
}

// ToRecord converts the chunk to an arrow record: the RowID column, one
// column per timeline, then one list column per component descriptor.
func (c *Chunk) ToRecord() arrow.Record {
	schema := c.Schema()
	cols := []arrow.Array{RowIDArray(c.rowIDs)}
	for _, tc := range c.Timelines() {
		cols = append(cols, TimeArray(tc.Timeline(), tc.Times()))
	}
	for _, col := range c.components.All() {
		cols = append(cols, col.List)
	}
	return array.NewRecord(schema, cols, int64(len(c.rowIDs)))
}

// FromRecord rebuilds a chunk from the output of ToRecord and sanity checks it.
func FromRecord(rec arrow.Record) (*Chunk, error) {
	schema := rec.Schema()
	md := schema.Metadata()

	id, err := ParseChunkID(metaValue(md, MetaChunkID))
	if err != nil {
		return nil, errors.NewMalformedChunk(errors.CodeMalformedRecord, "invalid chunk id: %v", err)
	}
	entityPath := types.ParseEntityPath(metaValue(md, MetaEntityPath))

	var isSorted *bool
	if v, err := strconv.ParseBool(metaValue(md, MetaIsSorted)); err == nil {
		isSorted = &v
	}

	var (
		rowIDs     []RowID
		haveRowIDs bool
		timelines  []*TimeColumn
		components = Components{}
	)
	for i, field := range schema.Fields() {
		col := rec.Column(i)
		switch metaValue(field.Metadata, MetaKind) {
		case KindControl:
			if rowIDs, err = RowIDsFromArray(col); err != nil {
				return nil, err
			}
			haveRowIDs = true

		case KindTime:
			timeline, times, err := TimesFromArray(col)
			if err != nil {
				return nil, err
			}
			timeline.Name = field.Name
			if sorted, err := strconv.ParseBool(metaValue(field.Metadata, MetaIsSorted)); err == nil {
				timelines = append(timelines, NewTimeColumnSorted(timeline, times, sorted))
			} else {
				timelines = append(timelines, NewTimeColumn(timeline, times))
			}

		case KindComponent:
			list, ok := col.(*array.List)
			if !ok {
				return nil, errors.NewMalformedChunk(errors.CodeDatatypeMismatch,
					"component column %q has datatype %s, want a list", field.Name, col.DataType())
			}
			desc := types.ComponentDescriptor{
				ArchetypeName:      metaValue(field.Metadata, MetaArchetype),
				ArchetypeFieldName: metaValue(field.Metadata, MetaField),
				ComponentName:      types.ComponentName(metaValue(field.Metadata, MetaComponent)),
			}
			if components.Contains(desc) {
				return nil, errors.NewMalformedChunk(errors.CodeDuplicateColumn,
					"component %s appears more than once", desc)
			}
			components.Insert(desc, list)

		default:
			return nil, errors.NewMalformedChunk(errors.CodeMalformedRecord,
				"column %q has no recognizable kind", field.Name)
		}
	}
	if !haveRowIDs {
		return nil, errors.NewMalformedChunk(errors.CodeMalformedRecord, "record has no row id column")
	}

	return New(id, entityPath, isSorted, rowIDs, timelines, components)
}

func metaValue(md arrow.Metadata, key string) string {
	if i := md.FindKey(key); i >= 0 {
		return md.Values()[i]
	}
	return ""
}
