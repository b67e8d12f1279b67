package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/rentalhub-backend/internal/app"
	"github.com/angelmondragon/rentalhub-backend/internal/cron"
)

// Shared with cmd/cron-worker so a manual run and a scheduled run of the
// same job never overlap.
const lockKeyFormat = "rh:cron-worker:lock:%s"

const (
	jobRentalStart     = "rental-start"
	jobEscrowReconcile = "escrow-reconcile"
	jobRefundReconcile = "refund-reconcile"
)

func newJobsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger scheduled jobs",
	}
	cmd.AddCommand(newJobsListCommand(rt), newJobsRunCommand(rt))
	return cmd
}

func newJobsListCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered jobs and their schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := buildRegistry(cmd, rt)
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), registry.Entries())
		},
	}
}

func newJobsRunCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run one job now, holding the same lock as the cron worker",
		Example: "  rentalctl jobs run rental-start\n" +
			"  rentalctl jobs run escrow-reconcile",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, rt, args[0])
		},
	}
}

// newJobAliasCommand exposes one job under an operator-friendly verb.
func newJobAliasCommand(rt *runtime, use, short, job string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, rt, job)
		},
	}
}

func newReconcileCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair payments whose side effects did not complete",
	}
	cmd.AddCommand(
		newJobAliasCommand(rt, "escrow", "Release escrow still held on completed bookings", jobEscrowReconcile),
		newJobAliasCommand(rt, "refunds", "Refund cancelled bookings still holding escrow and retry processor refunds", jobRefundReconcile),
	)
	return cmd
}

func newRentalsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rentals",
		Short: "Drive rental lifecycle jobs",
	}
	cmd.AddCommand(newJobAliasCommand(rt, "start-due", "Start rentals whose start date has arrived", jobRentalStart))
	return cmd
}

func runJob(cmd *cobra.Command, rt *runtime, name string) error {
	ctx := cmd.Context()
	registry, err := buildRegistry(cmd, rt)
	if err != nil {
		return err
	}
	if _, ok := registry.Lookup(name); !ok {
		return fmt.Errorf("unknown job %q (see rentalctl jobs list)", name)
	}
	redisClient, err := rt.redisClient(ctx)
	if err != nil {
		return err
	}
	lock, err := cron.NewRedisLock(redisClient, lockKey(rt.cfg.App.Env), 0)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   rt.logger(),
		Registry: registry,
		Lock:     lock,
	})
	if err != nil {
		return err
	}
	if err := service.RunOnce(ctx, name); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %s finished\n", name)
	return nil
}

func buildRegistry(cmd *cobra.Command, rt *runtime) (*cron.Registry, error) {
	ctx := cmd.Context()
	services, err := rt.services(ctx)
	if err != nil {
		return nil, err
	}
	return app.NewJobRegistry(rt.cfg, rt.logger(), rt.db, services)
}

func printEntries(out io.Writer, entries []cron.Entry) error {
	sorted := append([]cron.Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Job.Name() < sorted[j].Job.Name() })

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSCHEDULE")
	for _, entry := range sorted {
		fmt.Fprintf(w, "%s\t%s\n", entry.Job.Name(), entry.Spec)
	}
	return w.Flush()
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
