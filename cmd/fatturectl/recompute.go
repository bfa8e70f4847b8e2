package main

import (
	"github.com/spf13/cobra"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Rebuild client totals and the balance summary from stored records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		l, err := e.ledger(ctx)
		if err != nil {
			return err
		}
		if err := l.Recompute(ctx); err != nil {
			return err
		}
		b := l.CurrentBalance()
		e.logger.Info("Recomputed derived records",
			"clients", l.Clients.Len(),
			"balance", b.CurrentBalance.StringFixed(2))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recomputeCmd)
}
