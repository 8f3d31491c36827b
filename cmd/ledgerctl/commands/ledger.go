package commands

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/quizforge/server/internal/model"
)

// LedgerCommands returns the balance, grant, deficits and sweep commands.
func LedgerCommands(env *Env) []*cobra.Command {
	return []*cobra.Command{
		balanceCmd(env),
		grantCmd(env),
		deficitsCmd(env),
		sweepCmd(env),
	}
}

func balanceCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account-id>",
		Short: "Show an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.Open(cmd.Context()); err != nil {
				return err
			}
			balance, err := env.Metering.Balance(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get balance: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", args[0], balance)
			return nil
		},
	}
}

func grantCmd(env *Env) *cobra.Command {
	var eventID string

	cmd := &cobra.Command{
		Use:   "grant <account-id> <amount>",
		Short: "Grant credits for a tier amount",
		Long: `Grant credits for a payment amount that matches a credit tier.

Re-running with the same --event-id is safe: the grant applies once.
Without --event-id a fresh id is generated, so every run grants again.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("parse amount %q: %w", args[1], err)
			}
			if eventID == "" {
				eventID = "admin-" + uuid.NewString()
			}
			if err := env.Open(cmd.Context()); err != nil {
				return err
			}

			result, err := env.Credit.Issue(cmd.Context(), model.GrantRequest{
				AccountID: args[0],
				Amount:    amount,
				EventID:   eventID,
				Source:    model.GrantSourceAdmin,
			})
			if err != nil {
				return fmt.Errorf("issue credits: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: event %s credits=%d balance=%d\n",
				result.Status, result.EventID, result.Credits, result.Balance)
			return nil
		},
	}
	cmd.Flags().StringVar(&eventID, "event-id", "", "idempotency key for the grant")
	return cmd
}

func deficitsCmd(env *Env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "deficits",
		Short: "List recorded billing deficits, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := env.Open(cmd.Context()); err != nil {
				return err
			}
			deficits, err := env.Metering.ListDeficits(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list deficits: %w", err)
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "RESERVATION\tACCOUNT\tACTUAL\tCHARGED\tSHORTFALL\tCREATED")
			for _, d := range deficits {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
					d.ReservationID, d.AccountID, d.ActualCost, d.Charged, d.Shortfall, formatTime(d.CreatedAt))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func sweepCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue reservations once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := env.Open(cmd.Context()); err != nil {
				return err
			}
			n, err := env.Metering.ExpireStale(cmd.Context())
			if err != nil {
				return fmt.Errorf("expire reservations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "expired "+strconv.Itoa(n)+" reservations")
			return nil
		},
	}
}
