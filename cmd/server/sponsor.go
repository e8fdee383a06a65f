package main

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"sponsorrail/internal/logtrace"
)

var sponsorCmd = &cobra.Command{
	Use:   "sponsor",
	Short: "Print the sponsor address and its funding",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := logtrace.CtxWithCorrelationID(context.Background(), "sponsorrail-sponsor")
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		signer, err := a.identity.Load()
		if err != nil {
			return err
		}
		status, err := a.funding.Check(ctx, signer.Address())
		if err != nil {
			return err
		}
		out, err := jsoniter.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		if err := status.Require(a.cfg.Workflow.MinBalance); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sponsorCmd)
}
