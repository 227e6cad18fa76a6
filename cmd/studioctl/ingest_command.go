package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/abduss/studiovault/internal/ingest"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var tenant, customerRef string
	var retries int
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Compress and upload local photos for a customer",
		Args:  cobra.MinimumNArgs(1),
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
			if _, err := svc.customers.Get(cmd.Context(), tenantID, customerID); err != nil {
				return err
			}

			sources, err := localSources(args)
			if err != nil {
				return err
			}
			target := ingest.Target{TenantID: tenantID, CustomerID: customerID}

			for attempt := 0; attempt <= retries && len(sources) > 0; attempt++ {
				if attempt > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "Retrying %d failed file(s)\n", len(sources))
				}
				batch, err := svc.pipeline.SubmitBatch(cmd.Context(), target, sources)
				if err != nil {
					return err
				}
				printIngestSummary(cmd.OutOrStdout(), followBatch(cmd.ErrOrStderr(), batch))
				sources = batch.RetrySources()
			}
			if len(sources) > 0 {
				return fmt.Errorf("%d file(s) failed", len(sources))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID")
	cmd.Flags().StringVar(&customerRef, "customer", "", "Customer ID")
	cmd.Flags().IntVar(&retries, "retries", 0, "Resubmit failed files up to this many times")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}

func localSources(paths []string) ([]ingest.FileSource, error) {
	sources := make([]ingest.FileSource, 0, len(paths))
	for i, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}
		path := p
		sources = append(sources, ingest.FileSource{
			ID:       strconv.Itoa(i + 1),
			Filename: filepath.Base(path),
			Size:     info.Size(),
			Open: func() (io.ReadCloser, error) {
				return os.Open(path)
			},
		})
	}
	return sources, nil
}

// followBatch drives a progress bar from the batch event stream until the
// batch finishes.
func followBatch(w io.Writer, batch *ingest.Batch) ingest.Summary {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("ingest"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	for ev := range batch.Events() {
		_ = bar.Set(ev.Aggregate.Percent)
		bar.Describe(fmt.Sprintf("%s %s", ev.File.Filename, ev.File.State))
	}
	_ = bar.Finish()
	return batch.Wait()
}

func printIngestSummary(w io.Writer, s ingest.Summary) {
	rows := make([][]string, 0, len(s.Files))
	for _, f := range s.Files {
		size := ""
		if f.CompressedBytes > 0 {
			size = humanize.IBytes(uint64(f.CompressedBytes))
		}
		detail := f.Error
		if f.ErrorKind != "" {
			detail = string(f.ErrorKind) + ": " + f.Error
		}
		rows = append(rows, []string{f.Filename, string(f.State), humanize.IBytes(uint64(f.OriginalBytes)), size, detail})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"File", "State", "Original", "Stored", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintf(w, "%d committed, %d failed, %d cancelled (%s stored)\n",
		s.Committed, s.Failed, s.Cancelled, humanize.IBytes(uint64(s.CommittedBytes)))
}
