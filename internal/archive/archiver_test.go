package archive

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/arkilian/chunkstore/internal/chunk"
	ct "github.com/arkilian/chunkstore/internal/chunk/chunktest"
	storeerrors "github.com/arkilian/chunkstore/internal/errors"
	"github.com/arkilian/chunkstore/internal/manifest"
	"github.com/arkilian/chunkstore/internal/storage"
	"github.com/arkilian/chunkstore/internal/store"
	"github.com/arkilian/chunkstore/pkg/types"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointsChunk(t *testing.T, entity string, frames ...int64) *chunk.Chunk {
	t.Helper()
	rows := make([]ct.Row, len(frames))
	for i, f := range frames {
		rows[i] = ct.Row{
			ID: ct.RowID(uint64(f)),
			Time: chunk.TimePoint{
				ct.FrameNr: f,
				ct.LogTime: 1_700_000_000_000_000_000 + f,
			},
			Cells: map[types.ComponentDescriptor]arrow.Array{
				ct.PointDesc: ct.Float32s(float32(f), float32(-f)),
			},
		}
	}
	return ct.Build(t, entity, rows...)
}

func staticChunk(t *testing.T, entity string) *chunk.Chunk {
	t.Helper()
	return ct.Build(t, entity, ct.Row{
		ID:    ct.RowID(1000),
		Cells: map[types.ComponentDescriptor]arrow.Array{ct.LabelDesc: ct.Strings("static")},
	})
}

type fixture struct {
	objects  *storage.LocalStorage
	catalog  *manifest.SQLiteCatalog
	archiver *Archiver
	metrics  *Metrics
}

func newFixture(t *testing.T, cacheDir string) *fixture {
	t.Helper()
	dir := t.TempDir()
	objects, err := storage.NewLocalStorage(filepath.Join(dir, "objects"))
	require.NoError(t, err)
	catalog, err := manifest.NewCatalog(filepath.Join(dir, "manifest.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	metrics := NewMetrics()
	a := New(objects, catalog, Config{Prefix: "chunks", Concurrency: 2, CacheDir: cacheDir, Metrics: metrics}, nil)
	return &fixture{objects: objects, catalog: catalog, archiver: a, metrics: metrics}
}

// metricValue sums every series of the named archive metric.
func (f *fixture) metricValue(t *testing.T, name string) float64 {
	t.Helper()
	reg := prometheus.NewRegistry()
	for _, col := range f.metrics.PrometheusCollectors() {
		require.NoError(t, reg.Register(col))
	}
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != "chunkstore_archive_"+name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestEncodeDecode(t *testing.T) {
	c := pointsChunk(t, "/points", 1, 2, 3)

	data, err := Encode(c)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, c.ID(), got.ID())
	assert.Equal(t, c.EntityPath(), got.EntityPath())
	assert.Equal(t, c.IsSorted(), got.IsSorted())
	assert.Equal(t, c.RowIDs(), got.RowIDs())
	for _, name := range []string{"frame_nr", "log_time"} {
		want, ok := c.Timeline(name)
		require.True(t, ok)
		have, ok := got.Timeline(name)
		require.True(t, ok, name)
		assert.Equal(t, want.Timeline(), have.Timeline())
		assert.Equal(t, want.Times(), have.Times())
	}
	assert.True(t, array.RecordEqual(c.ToRecord(), got.ToRecord()))
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode([]byte("not snappy at all"))
	assert.Equal(t, storeerrors.CodeDecodeFailed, storeerrors.GetCode(err))

	data, err := Encode(pointsChunk(t, "/points", 1))
	require.NoError(t, err)
	_, err = Decode(data[:len(data)/2])
	assert.Equal(t, storeerrors.CodeDecodeFailed, storeerrors.GetCode(err))
}

func TestKey(t *testing.T) {
	f := newFixture(t, "")
	c := pointsChunk(t, "/world/points", 1)
	assert.Equal(t, "chunks/world/points/"+c.ID().String()+".chunk.sz", f.archiver.Key(c))

	bare := New(f.objects, f.catalog, Config{}, nil)
	assert.False(t, strings.HasPrefix(bare.Key(c), "/"))
}

func TestSaveAndLoad(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	chunks := []*chunk.Chunk{
		pointsChunk(t, "/points", 1, 2),
		pointsChunk(t, "/points", 10, 11, 12),
		staticChunk(t, "/points"),
		pointsChunk(t, "/other", 5),
	}
	entries, err := f.archiver.Save(ctx, chunks)
	require.NoError(t, err)
	require.Len(t, entries, len(chunks))
	for i, e := range entries {
		assert.Equal(t, chunks[i].ID(), e.ChunkID)
		ok, err := f.objects.Exists(ctx, e.ObjectKey)
		require.NoError(t, err)
		assert.True(t, ok, e.ObjectKey)
	}
	assert.Equal(t, float64(len(chunks)), f.metricValue(t, "chunks_saved_total"))

	dst := store.New(store.Config{}, nil)
	res, err := f.archiver.Load(ctx, manifest.Filter{
		EntityPath: "/points",
		Timeline:   "frame_nr",
		Range:      types.NewTimeRange(0, 5),
	}, dst)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 2, res.Loaded)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 2, res.Fetches)
	assert.Equal(t, 2, dst.NumChunks())

	_, ok := dst.Chunk(chunks[0].ID())
	assert.True(t, ok, "first chunk is in range")
	_, ok = dst.Chunk(chunks[2].ID())
	assert.True(t, ok, "static chunks always load")
	_, ok = dst.Chunk(chunks[1].ID())
	assert.False(t, ok, "pruned by time range")
	assert.Equal(t, float64(2), f.metricValue(t, "chunks_loaded_total"))
}

func TestLoad_UsesCache(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx := context.Background()

	_, err := f.archiver.Save(ctx, []*chunk.Chunk{pointsChunk(t, "/points", 1), staticChunk(t, "/points")})
	require.NoError(t, err)

	res, err := f.archiver.Load(ctx, manifest.Filter{}, store.New(store.Config{}, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, res.CacheHits)
	assert.Equal(t, 2, res.Fetches)

	res, err = f.archiver.Load(ctx, manifest.Filter{}, store.New(store.Config{}, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, res.CacheHits)
	assert.Equal(t, 0, res.Fetches)
	assert.Equal(t, 2, res.Loaded)
	assert.Equal(t, float64(2), f.metricValue(t, "cache_hits_total"))
}

func TestLoad_SkipsBrokenChunks(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	good := pointsChunk(t, "/points", 1)
	missing := pointsChunk(t, "/points", 2)
	corrupt := pointsChunk(t, "/points", 3)
	entries, err := f.archiver.Save(ctx, []*chunk.Chunk{good, missing, corrupt})
	require.NoError(t, err)

	require.NoError(t, f.objects.Delete(ctx, entries[1].ObjectKey))
	_, err = f.objects.Put(ctx, entries[2].ObjectKey, []byte("garbage"))
	require.NoError(t, err)

	dst := store.New(store.Config{}, nil)
	res, err := f.archiver.Load(ctx, manifest.Filter{}, dst)
	require.Error(t, err)
	assert.Len(t, storeerrors.Errors(err), 2)
	assert.Equal(t, 3, res.Matched)
	assert.Equal(t, 1, res.Loaded)

	_, ok := dst.Chunk(good.ID())
	assert.True(t, ok)
	assert.Equal(t, float64(2), f.metricValue(t, "failures_total"))
}

func TestLoad_DetectsMisplacedObjects(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	a := pointsChunk(t, "/points", 1)
	b := pointsChunk(t, "/points", 2)
	entries, err := f.archiver.Save(ctx, []*chunk.Chunk{a, b})
	require.NoError(t, err)

	data, err := f.objects.Get(ctx, entries[1].ObjectKey)
	require.NoError(t, err)
	_, err = f.objects.Put(ctx, entries[0].ObjectKey, data)
	require.NoError(t, err)

	_, err = f.archiver.Load(ctx, manifest.Filter{}, store.New(store.Config{}, nil))
	assert.Equal(t, storeerrors.CodeCorruptionDetected, storeerrors.GetCode(err))
}

func TestRemove(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	c := pointsChunk(t, "/points", 1)
	entries, err := f.archiver.Save(ctx, []*chunk.Chunk{c})
	require.NoError(t, err)

	require.NoError(t, f.archiver.Remove(ctx, c.ID()))

	ok, err := f.objects.Exists(ctx, entries[0].ObjectKey)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.catalog.Get(ctx, c.ID())
	assert.Equal(t, storeerrors.CodeEntryNotFound, storeerrors.GetCode(err))

	err = f.archiver.Remove(ctx, c.ID())
	assert.Equal(t, storeerrors.CodeEntryNotFound, storeerrors.GetCode(err))
}

func TestReadStream(t *testing.T) {
	c := pointsChunk(t, "/points", 1, 2)

	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, c))
	chunks, err := ReadStream(&buf)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, c.ID(), chunks[0].ID())
	assert.Equal(t, c.NumRows(), chunks[0].NumRows())

	_, err = ReadStream(strings.NewReader("not arrow"))
	assert.Equal(t, storeerrors.CodeDecodeFailed, storeerrors.GetCode(err))
}

func TestDecode_RejectsEmptyStream(t *testing.T) {
	rec := pointsChunk(t, "/points", 1).ToRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(rec.Schema()))
	require.NoError(t, w.Close())

	_, err := Decode(snappy.Encode(nil, buf.Bytes()))
	assert.Equal(t, storeerrors.CodeDecodeFailed, storeerrors.GetCode(err))
}
