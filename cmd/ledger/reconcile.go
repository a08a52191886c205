package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

func reconcileCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [account-id]",
		Short: "replay transaction history and compare with stored balances",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := buildApplication(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			var results []*domain.Reconciliation
			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid account id %q", args[0])
				}
				r, err := app.core.Reconcile(ctx, id)
				if err != nil {
					return err
				}
				results = append(results, r)
			} else {
				// ReconcileAll 只回傳不平衡的帳戶
				results, err = app.core.ReconcileAll(ctx)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "all accounts balanced")
					return nil
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ACCOUNT\tEXPECTED\tACTUAL\tTRANSACTIONS\tBALANCED")
			mismatched := 0
			for _, r := range results {
				if !r.Balanced {
					mismatched++
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%t\n", r.AccountID,
					domain.FormatAmount(r.Expected).StringFixed(2),
					domain.FormatAmount(r.Actual).StringFixed(2),
					r.Transactions, r.Balanced)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if mismatched > 0 {
				return fmt.Errorf("%d accounts are out of balance", mismatched)
			}
			return nil
		},
	}
}
