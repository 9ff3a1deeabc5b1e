// Package sweepcmd runs the lifecycle sweeps on demand, one pass each.
package sweepcmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diploy/hostfleet/apps/cli/wiring"
	"github.com/diploy/hostfleet/domains/lifecycle/be/service"
)

// Command groups the four reconciliation sweeps. Each subcommand runs a
// single pass and prints the tally, which makes them usable from cron when
// the API server's scheduler is disabled.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a lifecycle reconciliation sweep once",
	}

	cmd.AddCommand(sweepCommand("expiry",
		"Delete tenants whose expiry plus grace period has passed",
		func(ctx context.Context, svcs *wiring.Services) (service.Report, error) {
			return svcs.Lifecycle.ExpirySweep(ctx)
		}))
	cmd.AddCommand(sweepCommand("unpaid",
		"Suspend delinquent tenants and delete long-suspended ones",
		func(ctx context.Context, svcs *wiring.Services) (service.Report, error) {
			return svcs.Lifecycle.UnpaidSweep(ctx)
		}))
	cmd.AddCommand(sweepCommand("usage",
		"Sample resource usage and enforce plan limits",
		func(ctx context.Context, svcs *wiring.Services) (service.Report, error) {
			return svcs.Lifecycle.UsageSweep(ctx)
		}))
	cmd.AddCommand(sweepCommand("backup",
		"Back up tenants whose last backup is stale and prune expired archives",
		func(ctx context.Context, svcs *wiring.Services) (service.Report, error) {
			return svcs.Lifecycle.BackupSweep(ctx)
		}))
	return cmd
}

func sweepCommand(name, short string, run func(context.Context, *wiring.Services) (service.Report, error)) *cobra.Command {
	var opts wiring.Options

	c := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svcs, cleanup, err := wiring.Build(ctx, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := run(ctx, svcs)
			if err != nil {
				return fmt.Errorf("%s sweep: %w", name, err)
			}
			printReport(name, report)
			return nil
		},
	}

	wiring.RegisterFlags(c.Flags(), &opts)
	return c
}

func printReport(name string, r service.Report) {
	fmt.Printf("%s sweep done\n", name)
	fmt.Printf("  processed: %d\n", r.Processed)
	if r.Deleted > 0 {
		fmt.Printf("  deleted:   %d\n", r.Deleted)
	}
	if r.Suspended > 0 {
		fmt.Printf("  suspended: %d\n", r.Suspended)
	}
	if r.Warned > 0 {
		fmt.Printf("  warned:    %d\n", r.Warned)
	}
	if r.Sampled > 0 {
		fmt.Printf("  sampled:   %d\n", r.Sampled)
	}
	if r.BackedUp > 0 {
		fmt.Printf("  backed up: %d\n", r.BackedUp)
	}
	if r.Pruned > 0 {
		fmt.Printf("  pruned:    %d\n", r.Pruned)
	}
	if r.Skipped > 0 {
		fmt.Printf("  skipped:   %d\n", r.Skipped)
	}
	if r.Failed > 0 {
		fmt.Printf("  failed:    %d\n", r.Failed)
	}
}
