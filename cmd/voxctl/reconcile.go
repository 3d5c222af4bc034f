package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/spf13/cobra"
)

func newReconcileCmd(opts *options) *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Report orphaned records and remove blobs no record points to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStudio(cmd, opts, func(e *env) error {
				report, err := e.studio.Reconcile(cmd.Context(), e.scope, prune)
				if err != nil {
					return err
				}

				return e.emit(report, func(w io.Writer) error {
					return writeReport(w, report)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "also remove orphaned records from the ledgers")

	return cmd
}

func writeReport(w io.Writer, report studio.ReconcileReport) error {
	lines := []string{
		"orphans: " + joinOrDash(report.Orphans),
		"pruned_orphans: " + joinOrDash(report.PrunedOrphans),
		"leaked_removed: " + joinOrDash(report.LeakedRemoved),
		"leaked_failed: " + joinOrDash(report.LeakedFailed),
	}

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))

	return err
}

func joinOrDash(ids []string) string {
	return dash(strings.Join(ids, ", "))
}
