// Package main provides ledgerctl, the operator CLI for the credit ledger.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/quizforge/server/cmd/ledgerctl/commands"
)

func main() {
	env := &commands.Env{}
	root := commands.NewRootCommand(env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := commands.Execute(ctx, root, env)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
