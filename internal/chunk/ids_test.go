package chunk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowID_Ordering(t *testing.T) {
	a := NewRowID()
	b := NewRowID()
	assert.True(t, a.Less(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.True(t, a.Less(a.Next()))
}

func TestRowID_NextSaturates(t *testing.T) {
	maxID := RowIDFromParts(math.MaxUint64, math.MaxUint64)
	assert.Equal(t, maxID, maxID.Next())
	assert.Equal(t, maxID, RowIDFromParts(math.MaxUint64, 0).IncrementN(math.MaxUint64))
}

func TestRowIDArray(t *testing.T) {
	ids := []RowID{RowIDFromParts(1, 2), RowIDFromParts(3, math.MaxUint64)}
	arr := RowIDArray(ids)
	defer arr.Release()

	assert.Equal(t, RowIDDataType.String(), arr.DataType().String())
	got, err := RowIDsFromArray(arr)
	require.NoError(t, err)
	assert.Equal(t, ids, got)
}

func TestChunkID_Parse(t *testing.T) {
	id := NewChunkID()
	parsed, err := ParseChunkID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseChunkID("nope")
	assert.Error(t, err)
}
