package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// ReconcileCommands returns the reconciliation queue commands.
func ReconcileCommands(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Work the ambiguous outcome queue",
		Long: `Work the ambiguous outcome queue.

A completion call whose outcome is unknown holds its reservation until an
operator records the real cost from the provider's usage dashboard.
Resolving with 0 releases the reservation without a charge.`,
	}
	cmd.AddCommand(reconcileListCmd(env), reconcileResolveCmd(env))
	return cmd
}

func reconcileListCmd(env *Env) *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := env.Open(cmd.Context()); err != nil {
				return err
			}
			outcomes, err := env.Metering.ListAmbiguous(cmd.Context(), limit, all)
			if err != nil {
				return fmt.Errorf("list ambiguous outcomes: %w", err)
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "RESERVATION\tACCOUNT\tESTIMATE\tRESOLVED\tREASON\tCREATED")
			for _, o := range outcomes {
				resolved := "-"
				if o.ResolvedCost != nil {
					resolved = strconv.FormatInt(*o.ResolvedCost, 10)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					o.ReservationID, o.AccountID, o.EstimatedCost, resolved, o.Reason, formatTime(o.CreatedAt))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().BoolVar(&all, "all", false, "include resolved entries")
	return cmd
}

func reconcileResolveCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <reservation-id> <actual-cost>",
		Short: "Settle a queued outcome with its real cost",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cost, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("parse actual cost %q: %w", args[1], err)
			}
			if err := env.Open(cmd.Context()); err != nil {
				return err
			}

			s, err := env.Metering.Reconcile(cmd.Context(), args[0], cost)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "settled %s: charged=%d deficit=%d balance=%d\n",
				s.ReservationID, s.Charged, s.Deficit, s.Balance)
			return nil
		},
	}
}
