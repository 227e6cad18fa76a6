package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/abduss/studiovault/internal/events"
	"github.com/abduss/studiovault/internal/imaging"
	"github.com/abduss/studiovault/internal/metrics"
	"github.com/abduss/studiovault/internal/photo"
	"github.com/abduss/studiovault/internal/quota"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ledger interface {
	Preflight(ctx context.Context, tenantID uuid.UUID, estimatedBytes int64) error
	Commit(ctx context.Context, tenantID uuid.UUID, actualBytes int64) (quota.Account, error)
	Release(ctx context.Context, tenantID uuid.UUID, bytes int64) error
	Hold(ctx context.Context, tenantID uuid.UUID) (func(), error)
}

type compressor interface {
	Compress(ctx context.Context, r io.Reader) (imaging.Result, error)
}

type objectStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (photo.StoredObject, error)
	Remove(ctx context.Context, objectName string) error
}

type catalog interface {
	Insert(ctx context.Context, a photo.Asset) (photo.Asset, error)
}

// Params wires a Pipeline.
type Params struct {
	Ledger     ledger
	Compressor compressor
	Objects    objectStore
	Catalog    catalog
	Publisher  events.Publisher
	Logger     *zap.Logger
	// StageTimeout bounds the work on a single file once it left pending.
	StageTimeout time.Duration
	// PublishTimeout bounds each domain event publish.
	PublishTimeout time.Duration
	MaxFiles       int
}

const defaultPublishTimeout = 5 * time.Second

// Pipeline turns batches of raw files into committed catalog assets.
type Pipeline struct {
	ledger       ledger
	compressor   compressor
	objects      objectStore
	catalog      catalog
	publisher    events.Publisher
	logger       *zap.Logger
	tracer       trace.Tracer
	stageTimeout time.Duration
	maxFiles     int

	publishTimeout time.Duration

	mu      sync.Mutex
	batches map[uuid.UUID]*Batch
	newID   func() uuid.UUID
}

// NewPipeline constructs a pipeline.
func NewPipeline(p Params) *Pipeline {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Publisher == nil {
		p.Publisher = events.Nop{}
	}
	if p.StageTimeout <= 0 {
		p.StageTimeout = 2 * time.Minute
	}
	if p.PublishTimeout <= 0 {
		p.PublishTimeout = defaultPublishTimeout
	}
	return &Pipeline{
		ledger:         p.Ledger,
		compressor:     p.Compressor,
		objects:        p.Objects,
		catalog:        p.Catalog,
		publisher:      p.Publisher,
		logger:         p.Logger,
		tracer:         otel.Tracer("studiovault/ingest"),
		stageTimeout:   p.StageTimeout,
		maxFiles:       p.MaxFiles,
		publishTimeout: p.PublishTimeout,
		batches:        make(map[uuid.UUID]*Batch),
		newID:          uuid.New,
	}
}

// SubmitBatch checks the summed pre-compression size against the quota and,
// when admitted, starts processing in the background. A preflight rejection
// returns before anything is compressed, stored or committed.
//
// Files run sequentially in submission order. Cancelling ctx cancels only
// files still pending; a file already in flight finishes.
func (p *Pipeline) SubmitBatch(ctx context.Context, target Target, files []FileSource) (*Batch, error) {
	if len(files) == 0 {
		return nil, ErrEmptyBatch
	}
	if p.maxFiles > 0 && len(files) > p.maxFiles {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyFiles, len(files), p.maxFiles)
	}

	files = append([]FileSource(nil), files...)
	var estimate int64
	seen := make(map[string]bool, len(files))
	for i := range files {
		if files[i].ID == "" || seen[files[i].ID] {
			files[i].ID = p.newID().String()
		}
		seen[files[i].ID] = true
		estimate += files[i].Size
	}

	if err := p.ledger.Preflight(ctx, target.TenantID, estimate); err != nil {
		return nil, err
	}

	b := newBatch(ctx, p.newID(), target, files)

	p.mu.Lock()
	p.batches[b.ID] = b
	p.mu.Unlock()

	p.logger.Info("ingest batch admitted",
		zap.String("batch_id", b.ID.String()),
		zap.String("tenant_id", target.TenantID.String()),
		zap.String("customer_id", target.CustomerID.String()),
		zap.Int("files", len(files)),
		zap.String("estimate", humanize.Bytes(uint64(estimate))),
	)

	go p.run(ctx, b)
	return b, nil
}

// Batch returns a batch that is still running.
func (p *Pipeline) Batch(id uuid.UUID) (*Batch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.batches[id]
	return b, ok
}

func (p *Pipeline) run(ctx context.Context, b *Batch) {
	defer func() {
		p.mu.Lock()
		delete(p.batches, b.ID)
		p.mu.Unlock()
		b.finish()

		s := b.Snapshot()
		p.logger.Info("ingest batch finished",
			zap.String("batch_id", b.ID.String()),
			zap.Int("committed", s.Committed),
			zap.Int("failed", s.Failed),
			zap.Int("cancelled", s.Cancelled),
			zap.String("committed_bytes", humanize.Bytes(uint64(s.CommittedBytes))),
		)
	}()

	for _, t := range b.tasks {
		if ctx.Err() != nil {
			for i := b.cancelPending(); i > 0; i-- {
				metrics.FileIngested(string(StateCancelled))
			}
			break
		}
		if !b.claim(t) {
			metrics.FileIngested(string(StateCancelled))
			continue
		}

		stageCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.stageTimeout)
		p.process(stageCtx, b, t)
		cancel()
	}
}

func (p *Pipeline) process(ctx context.Context, b *Batch, t *task) {
	ctx, span := p.tracer.Start(ctx, "ingest.file", trace.WithAttributes(
		attribute.String("batch.id", b.ID.String()),
		attribute.String("file.id", t.source.ID),
		attribute.Int64("file.original_bytes", t.source.Size),
	))
	defer span.End()

	result, err := p.compress(ctx, t.source)
	if err != nil {
		p.failFile(span, b, t, KindCompression, err)
		return
	}
	b.setCompressed(t, result.Size())
	b.setState(t, StateTransferring, compressedProgress)

	assetID := p.newID()
	objectName := photo.ObjectName(b.Target.TenantID, b.Target.CustomerID, assetID)
	reader := newProgressReader(bytes.NewReader(result.Data), result.Size(), func(pct int) {
		b.setProgress(t, pct)
	})

	stored, err := p.objects.Put(ctx, objectName, reader, result.Size(), imaging.ContentType)
	if err != nil {
		p.failFile(span, b, t, KindTransfer, err)
		return
	}

	asset, kind, err := p.record(ctx, b.Target, photo.Asset{
		ID:          assetID,
		TenantID:    b.Target.TenantID,
		CustomerID:  b.Target.CustomerID,
		ObjectName:  objectName,
		URL:         stored.URL,
		Filename:    t.source.Filename,
		SizeBytes:   stored.Size,
		ContentType: imaging.ContentType,
		Checksum:    stored.Checksum,
		Width:       result.Width,
		Height:      result.Height,
	})
	if err != nil {
		p.discard(ctx, objectName)
		p.failFile(span, b, t, kind, err)
		return
	}

	b.commit(t, asset)
	metrics.FileIngested(string(StateCommitted))
	metrics.BytesCommitted(stored.Size)
	span.SetAttributes(attribute.Int64("file.stored_bytes", stored.Size))

	p.publish(events.AssetCommitted, b.Target, map[string]any{
		"asset_id":   asset.ID,
		"url":        asset.URL,
		"filename":   asset.Filename,
		"size_bytes": asset.SizeBytes,
	})
}

// record commits the bytes and inserts the catalog row under the ledger
// hold, releasing the bytes again when the insert fails.
func (p *Pipeline) record(ctx context.Context, target Target, a photo.Asset) (photo.Asset, Kind, error) {
	unhold, err := p.ledger.Hold(ctx, target.TenantID)
	if err != nil {
		return photo.Asset{}, KindQuota, err
	}
	defer unhold()

	if _, err := p.ledger.Commit(ctx, target.TenantID, a.SizeBytes); err != nil {
		return photo.Asset{}, KindQuota, err
	}

	asset, err := p.catalog.Insert(ctx, a)
	if err != nil {
		if relErr := p.ledger.Release(ctx, target.TenantID, a.SizeBytes); relErr != nil {
			p.logger.Error("release after catalog failure", zap.String("object", a.ObjectName), zap.Error(relErr))
		}
		return photo.Asset{}, KindCatalog, err
	}
	return asset, "", nil
}

// publish runs on its own short deadline so a slow broker does not hold up
// the next file.
func (p *Pipeline) publish(eventType string, target Target, payload map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
	defer cancel()
	if err := p.publisher.Publish(ctx, eventType, target.TenantID, target.CustomerID, payload); err != nil {
		p.logger.Warn("publish event", zap.String("type", eventType), zap.Error(err))
	}
}

func (p *Pipeline) compress(ctx context.Context, src FileSource) (imaging.Result, error) {
	if src.Open == nil {
		return imaging.Result{}, fmt.Errorf("no source for %s", src.ID)
	}
	rc, err := src.Open()
	if err != nil {
		return imaging.Result{}, fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()
	return p.compressor.Compress(ctx, rc)
}

func (p *Pipeline) discard(ctx context.Context, objectName string) {
	if err := p.objects.Remove(ctx, objectName); err != nil {
		p.logger.Error("remove uncommitted object", zap.String("object", objectName), zap.Error(err))
	}
}

func (p *Pipeline) failFile(span trace.Span, b *Batch, t *task, kind Kind, cause error) {
	err := &FileError{FileID: t.source.ID, Kind: kind, Err: cause}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))

	b.fail(t, err)
	metrics.FileIngested(string(StateFailed))
	p.logger.Warn("ingest file failed",
		zap.String("batch_id", b.ID.String()),
		zap.String("tenant_id", b.Target.TenantID.String()),
		zap.String("customer_id", b.Target.CustomerID.String()),
		zap.String("file_id", t.source.ID),
		zap.String("filename", t.source.Filename),
		zap.String("kind", string(kind)),
		zap.Error(cause),
	)
}
