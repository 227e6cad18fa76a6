package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/abduss/studiovault/internal/events"
	"github.com/abduss/studiovault/internal/photo"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobState is the lifecycle of an asynchronous export.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Scope selects which assets an export covers.
type Scope string

const (
	ScopeAll       Scope = "all"
	ScopeSelection Scope = "selection"
)

// ParseScope validates a scope name; empty means all.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeSelection:
		return ScopeSelection, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
}

// Failure is the serialisable form of a FetchError.
type Failure struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Error    string `json:"error"`
}

// JobStatus is a point-in-time view of a job.
type JobStatus struct {
	ID          uuid.UUID  `json:"id"`
	CustomerID  uuid.UUID  `json:"customer_id"`
	Scope       Scope      `json:"scope"`
	State       JobState   `json:"state"`
	Progress    Progress   `json:"progress"`
	Files       int        `json:"files"`
	Bytes       int64      `json:"bytes"`
	Failures    []Failure  `json:"failures,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Terminal reports whether the job will not change again.
func (s JobStatus) Terminal() bool {
	return s.State != JobRunning
}

// Job is one export tracked by the registry.
type Job struct {
	tenantID   uuid.UUID
	customerID uuid.UUID
	path       string

	mu      sync.Mutex
	status  JobStatus
	changed chan struct{}
}

// Status returns the job's current view.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Changed returns a channel closed at the next status change.
func (j *Job) Changed() <-chan struct{} {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.changed
}

func (j *Job) update(fn func(*JobStatus)) {
	j.mu.Lock()
	fn(&j.status)
	close(j.changed)
	j.changed = make(chan struct{})
	j.mu.Unlock()
}

// JobParams wires a JobRegistry.
type JobParams struct {
	Dir       string
	TTL       time.Duration
	Publisher events.Publisher
	Logger    *zap.Logger
}

// JobRegistry runs exports in the background, keeping each finished bundle
// in a temporary file until its TTL expires.
type JobRegistry struct {
	exporter  *Exporter
	dir       string
	ttl       time.Duration
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

// NewJobRegistry constructs a registry.
func NewJobRegistry(exporter *Exporter, p JobParams) *JobRegistry {
	if p.TTL <= 0 {
		p.TTL = 30 * time.Minute
	}
	if p.Publisher == nil {
		p.Publisher = events.Nop{}
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &JobRegistry{
		exporter:  exporter,
		dir:       p.Dir,
		ttl:       p.TTL,
		publisher: p.Publisher,
		logger:    p.Logger,
		now:       time.Now,
		base:      base,
		cancel:    cancel,
		jobs:      make(map[uuid.UUID]*Job),
	}
}

// Create starts an export of assets for a customer.
func (r *JobRegistry) Create(tenantID, customerID uuid.UUID, scope Scope, assets []photo.Asset) (*Job, error) {
	if len(assets) == 0 {
		return nil, ErrNoAssets
	}

	f, err := os.CreateTemp(r.dir, "studiovault-export-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create bundle file: %w", err)
	}

	job := &Job{
		tenantID:   tenantID,
		customerID: customerID,
		path:       f.Name(),
		changed:    make(chan struct{}),
		status: JobStatus{
			ID:         uuid.New(),
			CustomerID: customerID,
			Scope:      scope,
			State:      JobRunning,
			Progress:   Progress{Total: len(assets), Batches: r.exporter.Batches(len(assets))},
			CreatedAt:  r.now(),
		},
	}

	r.mu.Lock()
	r.jobs[job.status.ID] = job
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(job, f, assets)
	return job, nil
}

func (r *JobRegistry) run(job *Job, f *os.File, assets []photo.Asset) {
	defer r.wg.Done()

	x := r.exporter.Start(r.base, assets, f)
	for p := range x.Progress() {
		job.update(func(s *JobStatus) { s.Progress = p })
	}
	res, err := x.Wait()
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close bundle file: %w", closeErr)
	}

	completed := r.now()
	expires := completed.Add(r.ttl)
	failures := make([]Failure, 0, len(res.Failures))
	for _, fe := range res.Failures {
		failures = append(failures, Failure{Index: fe.Index, Filename: fe.Asset.Filename, URL: fe.Asset.URL, Error: fe.Err.Error()})
	}

	if err != nil {
		_ = os.Remove(job.path)
		r.logger.Error("archive export failed", zap.String("job_id", job.status.ID.String()), zap.Error(err))
	} else {
		r.logger.Info("archive export completed",
			zap.String("job_id", job.status.ID.String()),
			zap.String("customer_id", job.customerID.String()),
			zap.Int("files", len(res.Entries)),
			zap.Int("omitted", len(failures)),
			zap.String("size", humanize.Bytes(uint64(res.Bytes))),
		)
		if pubErr := r.publisher.Publish(r.base, events.ArchiveCompleted, job.tenantID, job.customerID, map[string]any{
			"job_id":  job.status.ID,
			"scope":   job.status.Scope,
			"files":   len(res.Entries),
			"omitted": len(failures),
			"bytes":   res.Bytes,
		}); pubErr != nil {
			r.logger.Warn("publish archive completed", zap.Error(pubErr))
		}
	}

	job.update(func(s *JobStatus) {
		s.Files = len(res.Entries)
		s.Bytes = res.Bytes
		s.Failures = failures
		s.CompletedAt = &completed
		s.ExpiresAt = &expires
		if err != nil {
			s.State = JobFailed
			s.Error = err.Error()
			return
		}
		s.State = JobCompleted
	})
}

// Get returns a job visible to customerID.
func (r *JobRegistry) Get(customerID, jobID uuid.UUID) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.customerID != customerID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Open returns the finished bundle for download.
func (r *JobRegistry) Open(customerID, jobID uuid.UUID) (*os.File, JobStatus, error) {
	job, err := r.Get(customerID, jobID)
	if err != nil {
		return nil, JobStatus{}, err
	}
	status := job.Status()
	if status.State != JobCompleted {
		return nil, status, ErrJobNotReady
	}
	f, err := os.Open(job.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, status, ErrJobNotFound
		}
		return nil, status, fmt.Errorf("open bundle: %w", err)
	}
	return f, status, nil
}

// Run expires finished jobs until ctx is done.
func (r *JobRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep removes jobs whose TTL has passed and returns how many it removed.
func (r *JobRegistry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	var expired []*Job
	for id, job := range r.jobs {
		status := job.Status()
		if status.ExpiresAt != nil && now.After(*status.ExpiresAt) {
			expired = append(expired, job)
			delete(r.jobs, id)
		}
	}
	r.mu.Unlock()

	for _, job := range expired {
		if err := os.Remove(job.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("remove expired bundle", zap.String("path", job.path), zap.Error(err))
		}
	}
	return len(expired)
}

// Close cancels running exports and removes every bundle.
func (r *JobRegistry) Close() {
	r.cancel()
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, job := range r.jobs {
		_ = os.Remove(job.path)
		delete(r.jobs, id)
	}
}
