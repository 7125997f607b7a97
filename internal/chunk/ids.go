package chunk

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/arkilian/chunkstore/pkg/types"
)

// RowID uniquely identifies a logged row. RowIDs generated by one process are
// strictly increasing, so a larger RowID means a more recently logged row.
type RowID types.Tuid

// ChunkID uniquely identifies a chunk.
type ChunkID types.Tuid

var (
	rowIDGenerator   = types.NewTuidGenerator()
	chunkIDGenerator = types.NewTuidGenerator()
)

// ZeroRowID is the sentinel used by Chunk.Zeroed.
var ZeroRowID RowID

// NewRowID returns a RowID greater than every RowID previously returned.
func NewRowID() RowID {
	return RowID(rowIDGenerator.New())
}

// RowIDFromParts rebuilds a RowID from its time and counter halves.
func RowIDFromParts(timeNs, inc uint64) RowID {
	return RowID(types.TuidFromParts(timeNs, inc))
}

// Parts returns the time and counter halves.
func (r RowID) Parts() (timeNs, inc uint64) {
	return types.Tuid(r).AsU128()
}

// Next returns the successor of r, saturating at the maximum value.
func (r RowID) Next() RowID {
	return RowID(types.Tuid(r).Next())
}

// IncrementN returns r advanced by n, saturating at the maximum value.
func (r RowID) IncrementN(n uint64) RowID {
	return RowID(types.Tuid(r).IncrementN(n))
}

func (r RowID) Compare(other RowID) int {
	return types.Tuid(r).Compare(types.Tuid(other))
}

func (r RowID) Less(other RowID) bool {
	return r.Compare(other) < 0
}

func (r RowID) IsZero() bool {
	return types.Tuid(r).IsZero()
}

func (r RowID) String() string {
	return types.Tuid(r).String()
}

// NewChunkID returns a fresh chunk identifier.
func NewChunkID() ChunkID {
	return ChunkID(chunkIDGenerator.New())
}

// ParseChunkID parses the text form produced by ChunkID.String.
func ParseChunkID(s string) (ChunkID, error) {
	u, err := types.ParseTuid(s)
	return ChunkID(u), err
}

func (id ChunkID) String() string {
	return types.Tuid(id).String()
}

func (id ChunkID) Compare(other ChunkID) int {
	return types.Tuid(id).Compare(types.Tuid(other))
}

// RowIDDataType is the arrow representation of a RowID: two non-nullable
// unsigned 64-bit halves.
var RowIDDataType = arrow.StructOf(
	arrow.Field{Name: "time", Type: arrow.PrimitiveTypes.Uint64},
	arrow.Field{Name: "counter", Type: arrow.PrimitiveTypes.Uint64},
)

// Index locates a row on one timeline. Static rows carry types.TimeIntStatic.
type Index struct {
	Time  types.TimeInt
	RowID RowID
}

// Less orders indices by time, then by RowID.
func (i Index) Less(other Index) bool {
	if i.Time != other.Time {
		return i.Time < other.Time
	}
	return i.RowID.Less(other.RowID)
}
