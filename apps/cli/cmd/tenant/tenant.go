// Package tenantcmd groups the tenant management subcommands.
package tenantcmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/diploy/hostfleet/apps/cli/wiring"
	"github.com/diploy/hostfleet/domains/tenants/be/service"
)

// Command groups tenant-related helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant management (create, delete, suspend, resume, extend, list)",
	}

	cmd.AddCommand(createCommand())
	cmd.AddCommand(deleteCommand())
	cmd.AddCommand(suspendCommand())
	cmd.AddCommand(resumeCommand())
	cmd.AddCommand(extendCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

func createCommand() *cobra.Command {
	var opts wiring.Options
	var (
		slug          string
		title         string
		planSlug      string
		ownerID       string
		adminEmail    string
		adminUsername string
		adminPassword string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Provision a tenant end to end (row, namespace, tree, config, schema, seed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svcs, cleanup, err := wiring.Build(ctx, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			params := service.ProvisionParams{
				Slug:          slug,
				Title:         title,
				AdminEmail:    adminEmail,
				AdminUsername: adminUsername,
				AdminPassword: adminPassword,
			}
			if ownerID != "" {
				owner, err := uuid.Parse(ownerID)
				if err != nil {
					return fmt.Errorf("parse owner id: %w", err)
				}
				params.OwnerID = &owner
			}
			if planSlug != "" {
				plan, err := svcs.Plans.GetBySlug(ctx, planSlug)
				if err != nil {
					return fmt.Errorf("resolve plan %q: %w", planSlug, err)
				}
				params.PlanID = &plan.ID
			}

			t, err := svcs.Tenants.Provision(ctx, params)
			if err != nil {
				return fmt.Errorf("provision tenant: %w", err)
			}

			fmt.Printf("tenant %s provisioned\n", t.Slug)
			fmt.Printf("  id:        %s\n", t.ID)
			fmt.Printf("  namespace: %s\n", t.NamespacePrefix)
			fmt.Printf("  root:      %s\n", t.RootPath)
			if t.ExpiresAt != nil {
				fmt.Printf("  expires:   %s\n", t.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	wiring.RegisterFlags(c.Flags(), &opts)
	c.Flags().StringVar(&slug, "slug", "", "tenant slug (required)")
	c.Flags().StringVar(&title, "title", "", "site title")
	c.Flags().StringVar(&planSlug, "plan", "", "plan slug (defaults to the catalog default; omit with no owner for a guest)")
	c.Flags().StringVar(&ownerID, "owner", "", "owner user id (omit for a guest tenant)")
	c.Flags().StringVar(&adminEmail, "admin-email", "", "admin account email (required)")
	c.Flags().StringVar(&adminUsername, "admin-username", "", "admin account username")
	c.Flags().StringVar(&adminPassword, "admin-password", "", "admin account password (required)")
	_ = c.MarkFlagRequired("slug")
	_ = c.MarkFlagRequired("admin-email")
	_ = c.MarkFlagRequired("admin-password")
	return c
}

func deleteCommand() *cobra.Command {
	var opts wiring.Options

	c := &cobra.Command{
		Use:   "delete <slug-or-id>",
		Short: "Deprovision a tenant (schema, tree, row); idempotent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svcs, cleanup, err := wiring.Build(ctx, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := resolveTenant(ctx, svcs, args[0])
			if err != nil {
				return err
			}
			if err := svcs.Tenants.Deprovision(ctx, id); err != nil {
				return fmt.Errorf("deprovision tenant: %w", err)
			}
			fmt.Printf("tenant %s deleted\n", args[0])
			return nil
		},
	}

	wiring.RegisterFlags(c.Flags(), &opts)
	return c
}

func suspendCommand() *cobra.Command {
	var opts wiring.Options
	var reason string

	c := &cobra.Command{
		Use:   "suspend <slug-or-id>",
		Short: "Suspend a tenant and point its hostname at the placeholder page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svcs, cleanup, err := wiring.Build(ctx, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := resolveTenant(ctx, svcs, args[0])
			if err != nil {
				return err
			}
			if err := svcs.Lifecycle.Suspend(ctx, id, reason); err != nil {
				return fmt.Errorf("suspend tenant: %w", err)
			}
			fmt.Printf("tenant %s suspended\n", args[0])
			return nil
		},
	}

	wiring.RegisterFlags(c.Flags(), &opts)
	c.Flags().StringVar(&reason, "reason", "suspended by operator", "suspension reason recorded on the tenant")
	return c
}

func resumeCommand() *cobra.Command {
	var opts wiring.Options

	c := &cobra.Command{
		Use:   "resume <slug-or-id>",
		Short: "Reactivate a suspended tenant (refused while usage is still over limits)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svcs, cleanup, err := wiring.Build(ctx, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := resolveTenant(ctx, svcs, args[0])
			if err != nil {
				return err
			}
			if err := svcs.Lifecycle.Resume(ctx, id); err != nil {
				return fmt.Errorf("resume tenant: %w", err)
			}
			fmt.Printf("tenant %s resumed\n", args[0])
			return nil
		},
	}

	wiring.RegisterFlags(c.Flags(), &opts)
	return c
}

func extendCommand() *cobra.Command {
	var opts wiring.Options
	var days int
	var forever bool

	c := &cobra.Command{
		Use:   "extend <slug-or-id>",
		Short: "Push a tenant's expiry out, or clear it with --forever",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !forever && days <= 0 {
				return fmt.Errorf("either --days or --forever is required")
			}

			svcs, cleanup, err := wiring.Build(ctx, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := resolveTenant(ctx, svcs, args[0])
			if err != nil {
				return err
			}

			var until *time.Time
			if !forever {
				u := time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)
				until = &u
			}
			if err := svcs.Lifecycle.ExtendExpiry(ctx, id, until); err != nil {
				return fmt.Errorf("extend tenant: %w", err)
			}
			if forever {
				fmt.Printf("tenant %s is now permanent\n", args[0])
			} else {
				fmt.Printf("tenant %s extended until %s\n", args[0], until.Format(time.RFC3339))
			}
			return nil
		},
	}

	wiring.RegisterFlags(c.Flags(), &opts)
	c.Flags().IntVar(&days, "days", 0, "days from now until the new expiry")
	c.Flags().BoolVar(&forever, "forever", false, "clear the expiry entirely")
	return c
}

func listCommand() *cobra.Command {
	var opts wiring.Options
	var status string

	c := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svcs, cleanup, err := wiring.Build(ctx, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			var statuses []service.Status
			if status != "" {
				statuses = append(statuses, service.StatusFromString(status))
			}
			tenants, err := svcs.Tenants.List(ctx, statuses...)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tSTATUS\tNAMESPACE\tCREATED\tEXPIRES")
			for _, t := range tenants {
				expires := "-"
				if t.ExpiresAt != nil {
					expires = t.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					t.Slug, t.Status, t.NamespacePrefix,
					t.CreatedAt.Format(time.RFC3339), expires)
			}
			return w.Flush()
		},
	}

	wiring.RegisterFlags(c.Flags(), &opts)
	c.Flags().StringVar(&status, "status", "", "filter by status (provisioning, active, suspended, deleted)")
	return c
}

// resolveTenant accepts either a tenant id or a slug.
func resolveTenant(ctx context.Context, svcs *wiring.Services, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	t, err := svcs.Tenants.GetBySlug(ctx, ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve tenant %q: %w", ref, err)
	}
	return t.ID, nil
}
