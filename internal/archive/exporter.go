package archive

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/abduss/studiovault/internal/metrics"
	"github.com/abduss/studiovault/internal/photo"
	"github.com/klauspost/compress/zip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type fetcher interface {
	Open(ctx context.Context, a photo.Asset) (io.ReadCloser, error)
}

// Progress is reported once per completed batch.
type Progress struct {
	Batch     int `json:"batch"`
	Batches   int `json:"batches"`
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Failed    int `json:"failed"`
	Percent   int `json:"percent"`
}

// Entry is one file written to the bundle.
type Entry struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Bytes int64  `json:"bytes"`
}

// Result describes a finished bundle.
type Result struct {
	Total    int           `json:"total"`
	Entries  []Entry       `json:"entries"`
	Failures []*FetchError `json:"-"`
	Bytes    int64         `json:"bytes"`
}

// Options tunes an Exporter.
type Options struct {
	BatchSize    int
	FetchTimeout time.Duration
	Logger       *zap.Logger
}

// Exporter builds zip bundles from asset lists, fetching in fixed-size
// batches. Batches run in order; assets inside a batch are fetched
// concurrently.
type Exporter struct {
	source       fetcher
	batchSize    int
	fetchTimeout time.Duration
	logger       *zap.Logger
	tracer       trace.Tracer
}

// NewExporter constructs an exporter reading asset bytes from source.
func NewExporter(source fetcher, opts Options) *Exporter {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Exporter{
		source:       source,
		batchSize:    opts.BatchSize,
		fetchTimeout: opts.FetchTimeout,
		logger:       opts.Logger,
		tracer:       otel.Tracer("studiovault/archive"),
	}
}

// Batches returns how many batches an export of n assets takes.
func (e *Exporter) Batches(n int) int {
	return (n + e.batchSize - 1) / e.batchSize
}

type fetched struct {
	index int
	asset photo.Asset
	data  []byte
	err   error
}

// Export writes a zip of assets to w. An asset that cannot be fetched is
// omitted and reported in Result.Failures; only a write failure or ctx
// cancellation aborts. onProgress may be nil.
func (e *Exporter) Export(ctx context.Context, assets []photo.Asset, w io.Writer, onProgress func(Progress)) (Result, error) {
	if len(assets) == 0 {
		return Result{}, ErrNoAssets
	}

	zw := zip.NewWriter(w)
	names := newNamer()
	res := Result{Total: len(assets)}
	batches := e.Batches(len(assets))

	for b := 0; b < batches; b++ {
		start := b * e.batchSize
		end := min(start+e.batchSize, len(assets))

		results := e.fetchBatch(ctx, b+1, start, assets[start:end])
		if err := ctx.Err(); err != nil {
			return res, err
		}

		for _, r := range results {
			if r.err != nil {
				fe := &FetchError{Index: r.index, Asset: r.asset, Err: r.err}
				res.Failures = append(res.Failures, fe)
				metrics.ArchiveAsset("failed")
				e.logger.Warn("archive asset omitted",
					zap.Int("index", r.index),
					zap.String("asset_id", r.asset.ID.String()),
					zap.String("url", r.asset.URL),
					zap.Error(r.err),
				)
				continue
			}

			name := names.name(r.asset.Filename, r.index)
			if err := writeEntry(zw, name, r.asset.UploadedAt, r.data); err != nil {
				return res, fmt.Errorf("write %s: %w", name, err)
			}
			res.Entries = append(res.Entries, Entry{Index: r.index, Name: name, URL: r.asset.URL, Bytes: int64(len(r.data))})
			res.Bytes += int64(len(r.data))
			metrics.ArchiveAsset("ok")
		}

		if onProgress != nil {
			onProgress(Progress{
				Batch:     b + 1,
				Batches:   batches,
				Processed: end,
				Total:     len(assets),
				Failed:    len(res.Failures),
				Percent:   percent(end, len(assets)),
			})
		}
	}

	if err := zw.Close(); err != nil {
		return res, fmt.Errorf("finalize bundle: %w", err)
	}
	return res, nil
}

// fetchBatch fetches every asset of one batch concurrently and returns the
// results in list order.
func (e *Exporter) fetchBatch(ctx context.Context, batch, offset int, assets []photo.Asset) []fetched {
	ctx, span := e.tracer.Start(ctx, "archive.batch", trace.WithAttributes(
		attribute.Int("archive.batch", batch),
		attribute.Int("archive.batch_size", len(assets)),
	))
	defer span.End()

	results := make([]fetched, len(assets))
	var wg sync.WaitGroup
	for i, a := range assets {
		wg.Add(1)
		go func(i int, a photo.Asset) {
			defer wg.Done()
			data, err := e.fetch(ctx, a)
			results[i] = fetched{index: offset + i + 1, asset: a, data: data, err: err}
		}(i, a)
	}
	wg.Wait()
	return results
}

func (e *Exporter) fetch(ctx context.Context, a photo.Asset) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	rc, err := e.source.Open(ctx, a)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	type read struct {
		data []byte
		err  error
	}
	done := make(chan read, 1)
	go func() {
		data, err := io.ReadAll(rc)
		done <- read{data, err}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ExportOne fetches a single asset and copies it to w, returning the name
// it should be delivered under.
func (e *Exporter) ExportOne(ctx context.Context, a photo.Asset, w io.Writer) (string, int64, error) {
	data, err := e.fetch(ctx, a)
	if err != nil {
		metrics.ArchiveAsset("failed")
		return "", 0, &FetchError{Index: 1, Asset: a, Err: err}
	}
	name := newNamer().name(a.Filename, 1)
	n, err := w.Write(data)
	if err != nil {
		return name, int64(n), fmt.Errorf("deliver %s: %w", name, err)
	}
	metrics.ArchiveAsset("ok")
	return name, int64(n), nil
}

func writeEntry(zw *zip.Writer, name string, modified time.Time, data []byte) error {
	header := &zip.FileHeader{
		Name:   name,
		Method: zip.Store,
	}
	if !modified.IsZero() {
		header.Modified = modified
	}
	f, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}

func percent(processed, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(processed) * 100 / float64(total)))
}

// Export is an export running in the background.
type Export struct {
	progress chan Progress
	done     chan struct{}
	result   Result
	err      error
}

// Start runs Export asynchronously. Progress is buffered for every batch, so
// the export never waits on a slow reader.
func (e *Exporter) Start(ctx context.Context, assets []photo.Asset, w io.Writer) *Export {
	x := &Export{
		progress: make(chan Progress, e.Batches(len(assets))),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(x.done)
		defer close(x.progress)
		x.result, x.err = e.Export(ctx, assets, w, func(p Progress) {
			x.progress <- p
		})
	}()
	return x
}

// Progress yields one update per completed batch and is closed at the end.
func (x *Export) Progress() <-chan Progress {
	return x.progress
}

// Wait blocks until the export finishes.
func (x *Export) Wait() (Result, error) {
	<-x.done
	return x.result, x.err
}
