package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/abduss/studiovault/internal/photo"
	"github.com/google/uuid"
)

const (
	// transitionsPerFile counts compressing, transferring and a terminal state.
	transitionsPerFile = 3
	eventSlack         = 8
)

type task struct {
	source FileSource
	status FileStatus
	err    error
}

// Batch is one in-flight ingestion. All state lives behind mu; the progress
// stream is a copy of every state transition.
type Batch struct {
	ID     uuid.UUID
	Target Target

	ctx    context.Context
	mu     sync.Mutex
	sendMu sync.Mutex
	tasks  []*task
	byID   map[string]*task
	events chan Event
	done   chan struct{}
}

func newBatch(ctx context.Context, id uuid.UUID, target Target, files []FileSource) *Batch {
	b := &Batch{
		ID:     id,
		Target: target,
		ctx:    ctx,
		byID:   make(map[string]*task, len(files)),
		// Room for every state transition of every file, so a batch whose
		// stream is never read still runs to completion. Progress events
		// only use slots no pending transition needs.
		events: make(chan Event, len(files)*transitionsPerFile+eventSlack),
		done:   make(chan struct{}),
	}
	for _, f := range files {
		t := &task{
			source: f,
			status: FileStatus{
				ID:            f.ID,
				Filename:      f.Filename,
				State:         StatePending,
				OriginalBytes: f.Size,
			},
		}
		b.tasks = append(b.tasks, t)
		b.byID[f.ID] = t
	}
	return b
}

// Events is the progress stream. It is closed when the batch finishes.
func (b *Batch) Events() <-chan Event {
	return b.events
}

// Done is closed once every file reached a terminal state.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the batch finishes and returns its summary.
func (b *Batch) Wait() Summary {
	<-b.done
	return b.Snapshot()
}

// Cancel removes a pending file from the batch. Files that already started
// run to completion.
func (b *Batch) Cancel(fileID string) error {
	b.mu.Lock()
	t, ok := b.byID[fileID]
	b.mu.Unlock()
	if !ok {
		return ErrFileNotFound
	}

	cancelled := b.update(t, true, func() bool {
		if t.status.State != StatePending {
			return false
		}
		t.status.State = StateCancelled
		return true
	})
	if !cancelled {
		return ErrFileNotPending
	}
	return nil
}

// Snapshot returns the current state of every file.
func (b *Batch) Snapshot() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Summary{BatchID: b.ID, Files: make([]FileStatus, 0, len(b.tasks))}
	for _, t := range b.tasks {
		s.Files = append(s.Files, t.status)
		switch t.status.State {
		case StateCommitted:
			s.Committed++
			s.CommittedBytes += t.status.CompressedBytes
		case StateFailed:
			s.Failed++
		case StateCancelled:
			s.Cancelled++
		}
	}
	s.Total = len(b.tasks) - s.Cancelled
	select {
	case <-b.done:
		s.Done = true
	default:
	}
	return s
}

// Failed returns the ids of failed files.
func (b *Batch) Failed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ids []string
	for _, t := range b.tasks {
		if t.status.State == StateFailed {
			ids = append(ids, t.status.ID)
		}
	}
	return ids
}

// RetrySources returns the sources of failed files, ready to submit as a
// new batch.
func (b *Batch) RetrySources() []FileSource {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sources []FileSource
	for _, t := range b.tasks {
		if t.status.State == StateFailed {
			sources = append(sources, t.source)
		}
	}
	return sources
}

// Err returns the recorded failure for a file, or nil.
func (b *Batch) Err(fileID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.byID[fileID]; ok {
		return t.err
	}
	return nil
}

// claim moves a pending file to compressing. It fails when the file was
// cancelled in the meantime.
func (b *Batch) claim(t *task) bool {
	return b.update(t, true, func() bool {
		if t.status.State != StatePending {
			return false
		}
		t.status.State = StateCompressing
		return true
	})
}

func (b *Batch) setState(t *task, state State, progress int) {
	b.update(t, true, func() bool {
		t.status.State = state
		if progress > t.status.Progress {
			t.status.Progress = progress
		}
		return true
	})
}

func (b *Batch) setProgress(t *task, progress int) {
	b.update(t, false, func() bool {
		if progress <= t.status.Progress {
			return false
		}
		t.status.Progress = progress
		return true
	})
}

func (b *Batch) setCompressed(t *task, size int64) {
	b.mu.Lock()
	t.status.CompressedBytes = size
	b.mu.Unlock()
}

func (b *Batch) commit(t *task, a photo.Asset) {
	b.update(t, true, func() bool {
		t.status.State = StateCommitted
		t.status.Progress = committedProgress
		t.status.Asset = &a
		return true
	})
}

func (b *Batch) fail(t *task, err error) {
	b.update(t, true, func() bool {
		t.status.State = StateFailed
		t.err = err
		t.status.Error = err.Error()
		var fe *FileError
		if errors.As(err, &fe) {
			t.status.ErrorKind = fe.Kind
		}
		return true
	})
}

// cancelPending marks every still-pending file cancelled and reports how
// many it touched.
func (b *Batch) cancelPending() int {
	n := 0
	for _, t := range b.tasks {
		if b.update(t, true, func() bool {
			if t.status.State != StatePending {
				return false
			}
			t.status.State = StateCancelled
			return true
		}) {
			n++
		}
	}
	return n
}

func (b *Batch) finish() {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	b.mu.Lock()
	close(b.done)
	b.mu.Unlock()
	close(b.events)
}

// update applies fn under the state lock and, when it reports a change,
// publishes the resulting event. sendMu keeps the stream in mutation order
// without holding mu while a send blocks.
func (b *Batch) update(t *task, transition bool, fn func() bool) bool {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	changed := fn()
	var ev Event
	var reserved int
	if changed {
		ev = b.eventLocked(t)
		reserved = b.reservedLocked()
	}
	b.mu.Unlock()

	if changed {
		b.publish(ev, transition, reserved)
	}
	return changed
}

// reservedLocked is the number of transitions still ahead in the batch.
func (b *Batch) reservedLocked() int {
	n := 0
	for _, t := range b.tasks {
		switch t.status.State {
		case StatePending:
			n += transitionsPerFile
		case StateCompressing:
			n += 2
		case StateTransferring:
			n++
		}
	}
	return n
}

func (b *Batch) eventLocked(t *task) Event {
	agg := Aggregate{Total: len(b.tasks)}
	for _, other := range b.tasks {
		switch other.status.State {
		case StateCommitted:
			agg.Committed++
		case StateFailed:
			agg.Failed++
		case StateCancelled:
			agg.Total--
		}
	}
	if agg.Total > 0 {
		agg.Percent = agg.Committed * 100 / agg.Total
	}
	return Event{BatchID: b.ID, File: t.status, Aggregate: agg}
}

// publish delivers an event; sendMu must be held, so only consumers change
// the buffer length meanwhile. Progress is dropped unless it leaves room for
// the reserved transitions, which therefore never find the buffer full.
func (b *Batch) publish(ev Event, transition bool, reserved int) {
	if !transition {
		if len(b.events)+reserved >= cap(b.events) {
			return
		}
		select {
		case b.events <- ev:
		default:
		}
		return
	}
	select {
	case b.events <- ev:
	case <-b.ctx.Done():
	}
}
