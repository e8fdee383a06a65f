package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sponsorrail/internal/logtrace"
	"sponsorrail/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Inspect objects left in sponsor custody",
}

var reconcileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending reconciliation entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := logtrace.CtxWithCorrelationID(context.Background(), "sponsorrail-reconcile")
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.journal.Pending(ctx)
		if err != nil {
			return err
		}
		printEntries(cmd, entries)
		return nil
	},
}

var reconcileSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-check ownership of pending entries and resolve delivered ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := logtrace.CtxWithCorrelationID(context.Background(), "sponsorrail-reconcile")
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := reconcile.NewSweeper(a.journal, a.verifier(nil)).Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checked %d, resolved %d, skipped %d, pending %d\n",
			report.Checked, report.Resolved, report.Skipped, len(report.Pending))
		printEntries(cmd, report.Pending)
		return nil
	},
}

func printEntries(cmd *cobra.Command, entries []reconcile.Entry) {
	if len(entries) == 0 {
		return
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKFLOW\tREASON\tOBJECT\tUSER\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Workflow, e.Reason, e.ObjectID, e.User, e.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func init() {
	reconcileCmd.AddCommand(reconcileListCmd, reconcileSweepCmd)
	rootCmd.AddCommand(reconcileCmd)
}
