package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/arkilian/chunkstore/internal/archive"
	ct "github.com/arkilian/chunkstore/internal/chunk/chunktest"
	"github.com/arkilian/chunkstore/internal/query"
	"github.com/arkilian/chunkstore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in   string
		want query.ColumnSelector
	}{
		{"time:frame_nr", query.SelectTime("frame_nr")},
		{"control:chunkstore.row_id", query.SelectControl("chunkstore.row_id")},
		{"/world/points:example.MyPoint", query.SelectComponent("/world/points", "example.MyPoint")},
		{"points:example.MyPoint", query.SelectComponent("/points", "example.MyPoint")},
	}
	for _, tt := range tests {
		got, err := parseSelector(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseSelector("frame_nr")
	assert.Error(t, err)
}

func TestParseTimeRange(t *testing.T) {
	r, err := parseTimeRange("-5:10")
	require.NoError(t, err)
	assert.Equal(t, types.NewTimeRange(-5, 10), r)

	for _, bad := range []string{"5", "a:1", "1:b"} {
		_, err := parseTimeRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestQueryFlags_Expression(t *testing.T) {
	qf := &queryFlags{
		index:      "frame_nr",
		timeRange:  "1:4",
		entities:   []string{"/points:example.MyPoint", "/points:example.MyColor", "/labels"},
		sparseFill: "none",
	}
	expr, err := qf.expression()
	require.NoError(t, err)
	require.NotNil(t, expr.FilteredIndex)
	assert.Equal(t, "frame_nr", expr.FilteredIndex.Name)
	assert.Equal(t, types.NewTimeRange(1, 4), *expr.FilteredIndexRange)
	assert.Equal(t, query.ViewContents{
		"/points": {"example.MyPoint", "example.MyColor"},
		"/labels": nil,
	}, expr.ViewContents)

	_, err = (&queryFlags{timeRange: "1:2", sparseFill: "none"}).expression()
	assert.Error(t, err, "a range needs an index")
}

func TestIngestAndQuery(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("CHUNKSTORE_LOG_LEVEL", "error")

	c := ct.Build(t, "/points",
		ct.Row{ID: ct.RowID(1), Time: ct.Frame(1), Cells: map[types.ComponentDescriptor]arrow.Array{ct.PointDesc: ct.Float32s(1.5)}},
		ct.Row{ID: ct.RowID(2), Time: ct.Frame(2), Cells: map[types.ComponentDescriptor]arrow.Array{ct.PointDesc: ct.Float32s(2.5)}},
	)
	path := filepath.Join(t.TempDir(), "points.arrows")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, archive.WriteStream(f, c))
	require.NoError(t, f.Close())

	out, err := run(t, "ingest", "--data-dir", dataDir, path)
	require.NoError(t, err)
	assert.Contains(t, out, "archived 1 of 1 chunks")

	out, err = run(t, "query", "--data-dir", dataDir,
		"--index", "frame_nr", "--range", "2:9",
		"--select", "time:frame_nr", "--format", "json")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"frame_nr":2`)

	out, err = run(t, "reconcile", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "checked 1 manifest entries against 1 objects")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "chunkstore version dev"))
}
