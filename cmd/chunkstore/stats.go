package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/arkilian/chunkstore/internal/store"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Load the whole archive and summarize it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			count, err := a.Catalog().Count(ctx)
			if err != nil {
				return err
			}
			res, loadErr := a.LoadAll(ctx)
			if res == nil {
				return loadErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "manifest: %s chunks, %d loaded (%d from cache)\n",
				humanize.Comma(count), res.Loaded, res.CacheHits)
			for _, tl := range a.Store().Timelines() {
				fmt.Fprintf(out, "timeline: %s (%s)\n", tl.Name, tl.Type)
			}
			writeStoreStats(out, a.Store().Stats())
			return loadErr
		},
	}
}

func writeStoreStats(w io.Writer, st store.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tCHUNKS\tROWS\tEVENTS\tSIZE")
	row := func(name string, es store.EntityStats) {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", name, es.NumChunks,
			humanize.Comma(int64(es.NumRows)), humanize.Comma(int64(es.NumEvents)), es.HeapSize())
	}
	for _, entity := range slices.Sorted(maps.Keys(st.PerEntity)) {
		row(entity.String(), st.PerEntity[entity])
	}
	row("(static)", st.Static)
	row("(temporal)", st.Temporal)
	row("(total)", st.Total())
	tw.Flush()
}
