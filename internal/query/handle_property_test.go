package query

import (
	"slices"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/arkilian/chunkstore/internal/chunk"
	ct "github.com/arkilian/chunkstore/internal/chunk/chunktest"
	"github.com/arkilian/chunkstore/internal/store"
	"github.com/arkilian/chunkstore/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// loggedRow is one generated point: the row's recency key, its frame and
// which of the generated chunks it lands in.
type loggedRow struct {
	key   uint64
	frame int64
	chunk int
}

func genLoggedRow() gopter.Gen {
	return gopter.CombineGens(
		gen.UInt64Range(0, 1000),
		gen.Int64Range(0, 12),
		gen.IntRange(0, 3),
	).Map(func(vals []interface{}) loggedRow {
		return loggedRow{key: vals[0].(uint64), frame: vals[1].(int64), chunk: vals[2].(int)}
	})
}

// storeOf spreads rows over up to four chunks. Row i carries the point value
// i and a RowID ordered by key, with i breaking ties so every id is unique.
func storeOf(rows []loggedRow) (*store.ChunkStore, error) {
	builders := make([]*chunk.Builder, 4)
	for i := range builders {
		builders[i] = chunk.NewBuilder(types.ParseEntityPath(entity))
	}
	for i, r := range rows {
		id := ct.RowID(r.key*10_000 + uint64(i))
		builders[r.chunk].WithRow(id, ct.Frame(r.frame), cells(ct.PointDesc, ct.Float32s(float32(i))))
	}

	s := store.New(store.Config{}, nil)
	for _, b := range builders {
		c, err := b.Build()
		if err != nil {
			return nil, err
		}
		if _, err := s.InsertChunk(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// expectedPoints returns, per frame, the value of the most recently logged
// row.
func expectedPoints(rows []loggedRow) map[int64]float32 {
	type latest struct {
		id    uint64
		value float32
	}
	best := make(map[int64]latest)
	for i, r := range rows {
		id := r.key*10_000 + uint64(i)
		if cur, ok := best[r.frame]; !ok || cur.id < id {
			best[r.frame] = latest{id: id, value: float32(i)}
		}
	}
	out := make(map[int64]float32, len(best))
	for f, l := range best {
		out[f] = l.value
	}
	return out
}

func TestProperty_Merge(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	expr := QueryExpression{
		FilteredIndex: frameIndex(),
		Selection:     []ColumnSelector{SelectTime("frame_nr"), SelectComponent(entity, "example.MyPoint")},
	}

	properties.Property("one row per index value, in order, carrying the latest point", prop.ForAll(
		func(rows []loggedRow) bool {
			s, err := storeOf(rows)
			if err != nil {
				return false
			}
			want := expectedPoints(rows)

			h := NewEngine(s, Config{}, nil).Query(expr)
			if h.NumRows() != uint64(len(want)) {
				return false
			}
			rec := h.Collect()
			if rec.NumRows() != int64(len(want)) {
				return false
			}

			frames := frameValues(rec.Column(0))
			points := pointValues(rec.Column(1))
			for i, f := range frames {
				if i > 0 && frames[i-1] >= f {
					return false
				}
				if points[i] != want[f] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genLoggedRow()),
	))

	properties.Property("handles over the same store agree", prop.ForAll(
		func(rows []loggedRow) bool {
			s, err := storeOf(rows)
			if err != nil {
				return false
			}
			e := NewEngine(s, Config{}, nil)
			return array.RecordEqual(e.Query(expr).Collect(), e.Query(expr).Collect())
		},
		gen.SliceOf(genLoggedRow()),
	))

	properties.Property("row by row and batched reads agree", prop.ForAll(
		func(rows []loggedRow, batch int) bool {
			s, err := storeOf(rows)
			if err != nil {
				return false
			}
			e := NewEngine(s, Config{}, nil)

			var byRow []float32
			h := e.Query(expr)
			for row := h.NextRow(); row != nil; row = h.NextRow() {
				byRow = append(byRow, pointValues(row[1])...)
			}

			var batched []float32
			h = e.Query(expr)
			for rec := h.NextBatch(batch); rec != nil; rec = h.NextBatch(batch) {
				if rec.NumRows() > int64(batch) {
					return false
				}
				batched = append(batched, pointValues(rec.Column(1))...)
			}
			return slices.Equal(byRow, batched)
		},
		gen.SliceOf(genLoggedRow()),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
