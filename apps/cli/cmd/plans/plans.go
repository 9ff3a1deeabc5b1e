// Package planscmd manages the quota plan catalog.
package planscmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/diploy/hostfleet/apps/cli/wiring"
	"github.com/diploy/hostfleet/platform/go/quota"
)

// Command groups the plan catalog subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Quota plan catalog (seed, list)",
	}

	cmd.AddCommand(seedCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

func seedCommand() *cobra.Command {
	var opts wiring.Options

	c := &cobra.Command{
		Use:   "seed",
		Short: "Insert the built-in plans; existing slugs are left untouched",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svcs, cleanup, err := wiring.Build(ctx, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			plans := quota.DefaultPlans()
			if err := svcs.Plans.Seed(ctx, plans); err != nil {
				return fmt.Errorf("seed plans: %w", err)
			}
			fmt.Printf("seeded %d plans\n", len(plans))
			return nil
		},
	}

	wiring.RegisterFlags(c.Flags(), &opts)
	return c
}

func listCommand() *cobra.Command {
	var opts wiring.Options

	c := &cobra.Command{
		Use:   "list",
		Short: "List the plan catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svcs, cleanup, err := wiring.Build(ctx, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			plans, err := svcs.Plans.List(ctx)
			if err != nil {
				return fmt.Errorf("list plans: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tNAME\tPRICE\tCPU%\tMEM MB\tSTORAGE MB\tBACKUPS\tDEFAULT")
			for _, p := range plans {
				backups := "-"
				if p.HasBackups {
					backups = fmt.Sprintf("every %s, keep %s", p.BackupFrequency(), p.BackupRetention())
				}
				def := ""
				if p.IsDefault {
					def = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t$%.2f\t%.0f\t%.0f\t%.0f\t%s\t%s\n",
					p.Slug, p.Name, float64(p.PriceCents)/100,
					p.Limits.CPUPercent, p.Limits.MemoryMB, p.Limits.StorageMB,
					backups, def)
			}
			return w.Flush()
		},
	}

	wiring.RegisterFlags(c.Flags(), &opts)
	return c
}
