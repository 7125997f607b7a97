package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/arkilian/chunkstore/internal/query"
	"github.com/arkilian/chunkstore/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type queryFlags struct {
	index        string
	timeRange    string
	values       []int64
	entities     []string
	selection    []string
	sparseFill   string
	includeEmpty bool
	format       string
}

func newQueryCommand(flags *globalFlags) *cobra.Command {
	qf := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a dataframe query over the archive",
		Long: `Query loads the chunks a dataframe query needs from the archive and
prints the resulting rows.

Columns are selected with --select, one of:
  time:<timeline>          an index column
  control:<name>           a control column, e.g. control:chunkstore.row_id
  <entity>:<component>     a component column, e.g. /points:example.MyPoint`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if qf.sparseFill == "" {
				qf.sparseFill = a.Config().Query.SparseFill
			}
			expr, err := qf.expression()
			if err != nil {
				return err
			}

			res, err := a.LoadFor(ctx, expr)
			if err != nil {
				a.Logger().Warn("Some chunks could not be loaded", zap.Error(err))
			}
			a.Logger().Debug("Loaded chunks for query",
				zap.Int("matched", res.Matched),
				zap.Int("loaded", res.Loaded),
				zap.Int("cache_hits", res.CacheHits))

			if expr.FilteredIndex != nil {
				timeline, ok := a.Store().Timeline(expr.FilteredIndex.Name)
				if !ok {
					return fmt.Errorf("unknown timeline %q", expr.FilteredIndex.Name)
				}
				expr.FilteredIndex = &timeline
			}

			h := a.Engine().Query(expr)
			return writeResult(cmd.OutOrStdout(), qf.format, h, a.Config().Query.BatchSize)
		},
	}

	f := cmd.Flags()
	f.StringVar(&qf.index, "index", "", "Timeline to page rows over; static data only when unset")
	f.StringVar(&qf.timeRange, "range", "", "Inclusive index range as MIN:MAX")
	f.Int64SliceVar(&qf.values, "values", nil, "Index values to return")
	f.StringSliceVar(&qf.entities, "entity", nil, "Restrict the view to an entity, or ENTITY:COMPONENT (repeatable)")
	f.StringSliceVar(&qf.selection, "select", nil, "Output column (repeatable); the whole view when unset")
	f.StringVar(&qf.sparseFill, "sparse-fill", "", "Sparse fill strategy: none or latest_at_local")
	f.BoolVar(&qf.includeEmpty, "include-empty", false, "Keep semantically empty component columns")
	f.StringVar(&qf.format, "format", "table", "Output format: table, json or ipc")
	return cmd
}

func (qf *queryFlags) expression() (query.QueryExpression, error) {
	fill, err := query.ParseSparseFillStrategy(qf.sparseFill)
	if err != nil {
		return query.QueryExpression{}, err
	}
	expr := query.QueryExpression{
		SparseFillStrategy:              fill,
		IncludeSemanticallyEmptyColumns: qf.includeEmpty,
	}

	if qf.index != "" {
		expr.FilteredIndex = &types.Timeline{Name: qf.index}
	} else if qf.timeRange != "" || qf.values != nil {
		return expr, fmt.Errorf("--range and --values need --index")
	}
	if qf.timeRange != "" {
		r, err := parseTimeRange(qf.timeRange)
		if err != nil {
			return expr, err
		}
		expr.FilteredIndexRange = &r
	}
	if qf.values != nil {
		expr.FilteredIndexValues = qf.values
	}

	if len(qf.entities) > 0 {
		expr.ViewContents = query.ViewContents{}
		for _, e := range qf.entities {
			entity, component, ok := strings.Cut(e, ":")
			path := types.ParseEntityPath(entity)
			if !ok {
				expr.ViewContents[path] = nil
				continue
			}
			if components, seen := expr.ViewContents[path]; seen && components == nil {
				continue
			}
			expr.ViewContents[path] = append(expr.ViewContents[path], types.ComponentName(component))
		}
	}

	for _, s := range qf.selection {
		sel, err := parseSelector(s)
		if err != nil {
			return expr, err
		}
		expr.Selection = append(expr.Selection, sel)
	}
	return expr, nil
}

func parseTimeRange(s string) (types.TimeRange, error) {
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return types.TimeRange{}, fmt.Errorf("invalid range %q: want MIN:MAX", s)
	}
	minT, err := strconv.ParseInt(lo, 10, 64)
	if err != nil {
		return types.TimeRange{}, fmt.Errorf("invalid range start %q: %w", lo, err)
	}
	maxT, err := strconv.ParseInt(hi, 10, 64)
	if err != nil {
		return types.TimeRange{}, fmt.Errorf("invalid range end %q: %w", hi, err)
	}
	return types.NewTimeRange(minT, maxT), nil
}

func parseSelector(s string) (query.ColumnSelector, error) {
	kind, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return query.ColumnSelector{}, fmt.Errorf("invalid selector %q", s)
	}
	switch kind {
	case "time":
		return query.SelectTime(name), nil
	case "control":
		return query.SelectControl(name), nil
	default:
		return query.SelectComponent(types.ParseEntityPath(kind), name), nil
	}
}

func writeResult(w io.Writer, format string, h *query.Handle, batchSize int) error {
	switch format {
	case "json":
		for rec := h.NextBatch(batchSize); rec != nil; rec = h.NextBatch(batchSize) {
			err := array.RecordToJSON(rec, w)
			rec.Release()
			if err != nil {
				return err
			}
		}
		return nil

	case "ipc":
		iw := ipc.NewWriter(w, ipc.WithSchema(h.Schema()))
		for rec := h.NextBatch(batchSize); rec != nil; rec = h.NextBatch(batchSize) {
			err := iw.Write(rec)
			rec.Release()
			if err != nil {
				iw.Close()
				return err
			}
		}
		return iw.Close()

	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		names := make([]string, 0, h.Schema().NumFields())
		for _, field := range h.Schema().Fields() {
			names = append(names, field.Name)
		}
		fmt.Fprintln(tw, strings.Join(names, "\t"))
		for rec := h.NextBatch(batchSize); rec != nil; rec = h.NextBatch(batchSize) {
			writeRows(tw, rec)
			rec.Release()
		}
		return tw.Flush()

	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func writeRows(w io.Writer, rec arrow.Record) {
	cells := make([]string, rec.NumCols())
	for i := 0; i < int(rec.NumRows()); i++ {
		for j, col := range rec.Columns() {
			cells[j] = col.ValueStr(i)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}
