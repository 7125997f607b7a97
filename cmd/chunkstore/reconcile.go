package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Compare the manifest with the archived objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Reconcile(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "checked %d manifest entries against %d objects\n",
				report.TotalManifestEntries, report.TotalStorageObjects)
			for _, d := range report.DanglingEntries {
				fmt.Fprintf(out, "dangling: %s -> %s\n", d.ChunkID, d.ObjectKey)
			}
			for _, key := range report.OrphanedObjects {
				fmt.Fprintf(out, "orphaned: %s\n", key)
			}
			if report.HasIssues() {
				return errors.New("manifest and storage disagree")
			}
			return nil
		},
	}
}
