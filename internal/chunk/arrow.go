package chunk

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/arkilian/chunkstore/internal/errors"
)

// Chunks rely on the Go allocator: arrays are shared between chunks and left
// to the garbage collector rather than released explicitly.
var mem = memory.NewGoAllocator()

// NewListArray builds a component column from per-row cells of type elem.
// A nil cell is a null row; any other cell becomes that row's list of values.
func NewListArray(elem arrow.DataType, cells []arrow.Array) (*array.List, error) {
	n := len(cells)
	offsets := make([]int32, n+1)
	validity := make([]byte, bitutil.BytesForBits(int64(n)))

	var (
		values []arrow.Array
		nulls  int
		off    int32
	)
	for i, cell := range cells {
		offsets[i] = off
		if cell == nil {
			nulls++
			continue
		}
		if !arrow.TypeEqual(cell.DataType(), elem) {
			return nil, errors.NewMalformedChunk(errors.CodeDatatypeMismatch,
				"cell %d has datatype %s, want %s", i, cell.DataType(), elem)
		}
		bitutil.SetBit(validity, i)
		values = append(values, cell)
		off += int32(cell.Len())
	}
	offsets[n] = off

	flat, err := concatOrEmpty(elem, values)
	if err != nil {
		return nil, err
	}

	data := array.NewData(arrow.ListOf(elem), n,
		[]*memory.Buffer{
			memory.NewBufferBytes(validity),
			memory.NewBufferBytes(arrow.Int32Traits.CastToBytes(offsets)),
		},
		[]arrow.ArrayData{flat.Data()},
		nulls, 0)
	return array.NewListData(data), nil
}

// NullList returns a list column of n null rows.
func NullList(dt arrow.DataType, n int) *array.List {
	return array.MakeArrayOfNull(mem, dt, n).(*array.List)
}

// Cell returns the values logged at row i, or nil if the row is null.
func Cell(list *array.List, i int) arrow.Array {
	if list.IsNull(i) {
		return nil
	}
	start, end := list.ValueOffsets(i)
	return array.NewSlice(list.ListValues(), start, end)
}

func sliceList(list *array.List, offset, length int) *array.List {
	return array.NewSlice(list, int64(offset), int64(offset+length)).(*array.List)
}

// takeList gathers rows of list. Runs of consecutive indices are copied as
// a single slice.
func takeList(list *array.List, indices []int) (*array.List, error) {
	if len(indices) == 0 {
		return sliceList(list, 0, 0), nil
	}

	var parts []arrow.Array
	start := indices[0]
	prev := start
	for _, idx := range indices[1:] {
		if idx == prev+1 {
			prev = idx
			continue
		}
		parts = append(parts, array.NewSlice(list, int64(start), int64(prev+1)))
		start, prev = idx, idx
	}
	parts = append(parts, array.NewSlice(list, int64(start), int64(prev+1)))

	if len(parts) == 1 {
		return parts[0].(*array.List), nil
	}
	out, err := array.Concatenate(parts, mem)
	if err != nil {
		return nil, errors.NewInternalError("gathering component rows", err)
	}
	return out.(*array.List), nil
}

func concatOrEmpty(dt arrow.DataType, arrs []arrow.Array) (arrow.Array, error) {
	switch len(arrs) {
	case 0:
		return array.MakeArrayOfNull(mem, dt, 0), nil
	case 1:
		return arrs[0], nil
	}
	out, err := array.Concatenate(arrs, mem)
	if err != nil {
		return nil, errors.NewInternalError("concatenating arrays", err)
	}
	return out, nil
}

func arrayHeapSize(arr arrow.Array) uint64 {
	return arrayDataHeapSize(arr.Data())
}

func arrayDataHeapSize(d arrow.ArrayData) uint64 {
	var n uint64
	for _, b := range d.Buffers() {
		if b != nil {
			n += uint64(b.Len())
		}
	}
	for _, child := range d.Children() {
		n += arrayDataHeapSize(child)
	}
	return n
}
