package main

import (
	"fmt"
	"strconv"

	"github.com/abduss/studiovault/internal/selection"
	"github.com/abduss/studiovault/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			if err := storage.EnsureSchema(cmd.Context(), svc.pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

func newUsageCommand(ctx *commandContext) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show the storage usage of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseID("tenant", tenant)
			if err != nil {
				return err
			}
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			usage, err := svc.ledger.Usage(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			rows := [][]string{{
				humanize.IBytes(uint64(usage.UsedBytes)),
				humanize.IBytes(uint64(usage.LimitBytes)),
				humanize.IBytes(uint64(usage.AvailableBytes)),
				strconv.FormatFloat(usage.UsagePercent, 'f', 1, 64) + "%",
			}}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Used", "Limit", "Available", "Usage"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newQuotaCommand(ctx *commandContext) *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Manage tenant storage limits",
	}

	var tenant, limit string
	setLimit := &cobra.Command{
		Use:   "set-limit",
		Short: "Set the storage limit of a tenant (e.g. 5GiB)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseID("tenant", tenant)
			if err != nil {
				return err
			}
			bytes, err := humanize.ParseBytes(limit)
			if err != nil {
				return fmt.Errorf("--limit: %w", err)
			}
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			acct, err := svc.ledger.SetLimit(cmd.Context(), tenantID, int64(bytes))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Limit set to %s (%s used)\n",
				humanize.IBytes(uint64(acct.LimitBytes)), humanize.IBytes(uint64(acct.UsedBytes)))
			return nil
		},
	}
	setLimit.Flags().StringVar(&tenant, "tenant", "", "Tenant ID")
	setLimit.Flags().StringVar(&limit, "limit", "", "New limit, e.g. 10GiB or 500MB")
	_ = setLimit.MarkFlagRequired("tenant")
	_ = setLimit.MarkFlagRequired("limit")

	quotaCmd.AddCommand(setLimit)
	return quotaCmd
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute used bytes from the asset catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseID("tenant", tenant)
			if err != nil {
				return err
			}
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			drift, err := svc.ledger.Reconcile(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			if drift.Delta() == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Ledger matches the catalog")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Corrected used bytes: %s -> %s\n",
				humanize.IBytes(uint64(drift.Before)), humanize.IBytes(uint64(drift.After)))
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newCustomersCommand(ctx *commandContext) *cobra.Command {
	customersCmd := &cobra.Command{
		Use:   "customers",
		Short: "Inspect customers and their selection limits",
	}

	var tenant string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the customers of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseID("tenant", tenant)
			if err != nil {
				return err
			}
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			customers, err := svc.customers.List(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			if len(customers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No customers")
				return nil
			}
			rows := make([][]string, 0, len(customers))
			for _, c := range customers {
				rows = append(rows, []string{
					c.ID.String(),
					c.DisplayName,
					strconv.FormatInt(c.Usage.AssetCount, 10),
					humanize.IBytes(uint64(c.Usage.TotalBytes)),
					fmt.Sprintf("%d/%d/%d", c.Limits.Album, c.Limits.Cover, c.Limits.Poster),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Assets", "Size", "Limits (album/cover/poster)"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	list.Flags().StringVar(&tenant, "tenant", "", "Tenant ID")
	_ = list.MarkFlagRequired("tenant")

	customersCmd.AddCommand(list)
	customersCmd.AddCommand(newLimitsCommand(ctx))
	return customersCmd
}

func newLimitsCommand(ctx *commandContext) *cobra.Command {
	var tenant, customerRef string
	var limits selection.Limits
	cmd := &cobra.Command{
		Use:   "set-limits",
		Short: "Set the per-category selection limits of a customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseID("tenant", tenant)
			if err != nil {
				return err
			}
			customerID, err := parseID("customer", customerRef)
			if err != nil {
				return err
			}
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.customers.SetLimits(cmd.Context(), tenantID, customerID, limits); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Limits updated: album=%d cover=%d poster=%d\n",
				limits.Album, limits.Cover, limits.Poster)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID")
	cmd.Flags().StringVar(&customerRef, "customer", "", "Customer ID")
	cmd.Flags().IntVar(&limits.Album, "album", 0, "Album selection limit")
	cmd.Flags().IntVar(&limits.Cover, "cover", 0, "Cover selection limit")
	cmd.Flags().IntVar(&limits.Poster, "poster", 0, "Poster selection limit")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}
