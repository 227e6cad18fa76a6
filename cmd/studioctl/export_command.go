package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/abduss/studiovault/internal/archive"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var tenant, customerRef, scopeName, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a customer's photos to a zip bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseID("tenant", tenant)
			if err != nil {
				return err
			}
			customerID, err := parseID("customer", customerRef)
			if err != nil {
				return err
			}
			scope, err := archive.ParseScope(scopeName)
			if err != nil {
				return err
			}
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := svc.customers.Get(cmd.Context(), tenantID, customerID); err != nil {
				return err
			}

			resolver := archive.NewHandler(nil, svc.exporter, svc.photos, svc.governor)
			assets, err := resolver.Assets(cmd.Context(), customerID, scope)
			if err != nil {
				return err
			}
			if len(assets) == 0 {
				return archive.ErrNoAssets
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}

			bar := progressbar.NewOptions(100,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("export"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			export := svc.exporter.Start(cmd.Context(), assets, f)
			for p := range export.Progress() {
				_ = bar.Set(p.Percent)
				bar.Describe(fmt.Sprintf("batch %d/%d", p.Batch, p.Batches))
			}
			_ = bar.Finish()

			result, exportErr := export.Wait()
			closeErr := f.Close()
			if err := errors.Join(exportErr, closeErr); err != nil {
				_ = os.Remove(out)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d of %d photo(s) to %s (%s)\n",
				len(result.Entries), result.Total, out, humanize.IBytes(uint64(result.Bytes)))
			for _, failure := range result.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "  skipped %s: %v\n", failure.Asset.Filename, failure.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID")
	cmd.Flags().StringVar(&customerRef, "customer", "", "Customer ID")
	cmd.Flags().StringVar(&scopeName, "scope", string(archive.ScopeAll), "Export scope: all or selection")
	cmd.Flags().StringVarP(&out, "out", "o", "photos.zip", "Output zip path")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}
