// Package batch provides a generic FIFO queue of input batches processed one
// batch at a time through a caller-supplied asynchronous transform. It
// decouples bursty, synchronous arrival from slow, I/O-bound transformation.
package batch

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Transform converts one whole input batch into an output sequence. It may
// use internal concurrency across the batch items, but the processor never
// runs two transforms at once.
type Transform[In, Out any] func(ctx context.Context, items []In) ([]Out, error)

// Result is the outcome of draining one batch. InputCount is the size of the
// dequeued batch; Output may be empty when no item was relevant.
type Result[Out any] struct {
	InputCount int
	Output     []Out
}

// Processor serializes possibly-expensive batch transforms behind a simple
// poll/complete contract. Add never blocks; Next polls.
type Processor[In, Out any] struct {
	transform Transform[In, Out]

	mu       sync.Mutex
	queue    [][]In
	inFlight bool
}

// New creates a processor around the given transform.
func New[In, Out any](transform Transform[In, Out]) *Processor[In, Out] {
	return &Processor[In, Out]{transform: transform}
}

// Add enqueues a batch. O(1), never blocks, safe to call while a previous
// batch is mid-transform.
func (p *Processor[In, Out]) Add(items []In) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, items)
}

// Next drains the oldest queued batch: it invokes the transform exactly once
// on the whole batch and waits for it. An empty queue returns a zero Result
// immediately; Next is a poll, not a wait-until-available. A failing
// transform propagates its error to the caller; the failed batch is not
// retried and its unconsumed items are lost.
func (p *Processor[In, Out]) Next(ctx context.Context) (Result[Out], error) {
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return Result[Out]{}, nil
	}
	if p.inFlight {
		p.mu.Unlock()
		return Result[Out]{}, errors.New("batch transform already in flight")
	}
	items := p.queue[0]
	p.queue = p.queue[1:]
	p.inFlight = true
	p.mu.Unlock()

	out, err := p.transform(ctx, items)

	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()

	if err != nil {
		return Result[Out]{}, errors.Wrap(err, "batch transform failed")
	}

	return Result[Out]{InputCount: len(items), Output: out}, nil
}

// Complete reports whether the queue holds no unprocessed batches and no
// transform is currently in flight.
func (p *Processor[In, Out]) Complete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == 0 && !p.inFlight
}
