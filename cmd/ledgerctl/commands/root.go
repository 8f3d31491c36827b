package commands

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCommand assembles the ledgerctl command tree around env.
func NewRootCommand(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "QuizForge ledger administration tool",
		Long: `QuizForge ledger administration tool

Inspects balances, grants credits, works the reconciliation and deficit
queues, and prepares operator credentials. Commands that touch the ledger
connect to the store named by metering.store in the server config.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&env.ConfigPath, "config", "", "path to config file")

	root.AddCommand(LedgerCommands(env)...)
	root.AddCommand(ReconcileCommands(env))
	root.AddCommand(CredentialCommands(env)...)
	return root
}

// Execute runs root and closes the ledger whether or not the command failed.
func Execute(ctx context.Context, root *cobra.Command, env *Env) error {
	defer env.Close(context.WithoutCancel(ctx))
	return root.ExecuteContext(ctx)
}
