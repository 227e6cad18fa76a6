package imaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Pool bounds the number of concurrent encoders shared by every batch.
type Pool struct {
	slots  chan struct{}
	opts   Options
	encode func(io.Reader, Options) (Result, error)
}

// NewPool creates a pool with the given worker count.
func NewPool(workers int, opts Options) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{slots: make(chan struct{}, workers), opts: opts, encode: Compress}
}

// Compress waits for a free worker, then normalises r. The source is read
// to the end before Compress can return, so the caller may close it as soon
// as Compress returns, even on a context error.
func (p *Pool) Compress(ctx context.Context, r io.Reader) (Result, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		<-p.slots
		return Result{}, fmt.Errorf("read source: %w", err)
	}

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		// The slot is held until the encoder returns, even if ctx ends first.
		defer func() { <-p.slots }()
		res, err := p.encode(bytes.NewReader(raw), p.opts)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Options returns the policy the pool applies.
func (p *Pool) Options() Options {
	return p.opts
}
