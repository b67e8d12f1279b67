package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rentalctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rt := &runtime{}
	cmd := &cobra.Command{
		Use:           "rentalctl",
		Short:         "Operator tooling for the rental booking backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			rt.close(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVar(&rt.envFile, flagEnvFile, "", "optional .env file loaded before the environment")

	cmd.AddCommand(
		newJobsCommand(rt),
		newReconcileCommand(rt),
		newRentalsCommand(rt),
		newBookingCommand(rt),
		newOutboxCommand(rt),
		newMigrateCommand(rt),
	)
	return cmd
}
