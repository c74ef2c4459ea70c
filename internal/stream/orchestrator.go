// Package stream turns a wallet's raw transaction history into a stream of
// reconciled position records. The orchestrator drives a batch processor over
// the classifier, groups classified transactions by position key, finalizes
// each position once, and applies a completion/cancellation protocol that
// never truncates or duplicates output.
package stream

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/vadiminshakov/lptracker/internal/batch"
	"github.com/vadiminshakov/lptracker/internal/domain"
	"github.com/vadiminshakov/lptracker/internal/services/source"
)

const (
	defaultAugmentConcurrency = 4
	eventBuffer               = 64
)

// Classifier maps a batch of raw transactions to classified transactions
// tagged with position key and operation kind. May fail; failure is fatal to
// the whole stream.
type Classifier interface {
	Classify(ctx context.Context, txs []domain.RawTransaction) ([]domain.ClassifiedTransaction, error)
}

// Aggregator builds a position's canonical transaction log and derived
// economics from every classified transaction sharing one key. Deterministic
// and non-mutating.
type Aggregator interface {
	Build(key string, txs []domain.ClassifiedTransaction) (*domain.PositionAggregate, error)
}

// Augmenter attaches current unrealized value to a still-open position. It
// returns an enriched copy and never mutates its input.
type Augmenter interface {
	Augment(ctx context.Context, position *domain.PositionAggregate) (*domain.PositionAggregate, error)
}

type finalizeResult struct {
	key      string
	position *domain.PositionAggregate
}

// Orchestrator coordinates source, classifier, aggregator and augmenter into
// one output event stream. All orchestrator state is owned by the run loop
// goroutine; finalize steps report back through an internal channel, so no
// locks guard the counters, the transaction log or the pending set.
type Orchestrator struct {
	src        source.Source
	aggregator Aggregator
	augmenter  Augmenter
	logger     *zap.Logger

	processor *batch.Processor[domain.RawTransaction, domain.ClassifiedTransaction]
	sem       *semaphore.Weighted

	events  chan domain.Event
	results chan finalizeResult
	done    chan struct{}

	cancelOnce sync.Once
	cancelReq  chan struct{}

	// loop-owned state
	state      State
	counters   domain.ProgressCounters
	txLog      []domain.ClassifiedTransaction
	pending    map[string]struct{}
	augmenting int
	inDrain    bool
	failed     bool
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithAugmentConcurrency caps how many open-position augmentations may run at
// once.
func WithAugmentConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// New creates an orchestrator. Call Start to begin streaming and consume
// Events until the end or error event.
func New(src source.Source, classifier Classifier, aggregator Aggregator, augmenter Augmenter, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.L()
	}

	o := &Orchestrator{
		src:        src,
		aggregator: aggregator,
		augmenter:  augmenter,
		logger:     logger,
		processor:  batch.New(classifier.Classify),
		sem:        semaphore.NewWeighted(defaultAugmentConcurrency),
		events:     make(chan domain.Event, eventBuffer),
		results:    make(chan finalizeResult),
		done:       make(chan struct{}),
		cancelReq:  make(chan struct{}),
		pending:    make(map[string]struct{}),
		state:      StateAccepting,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Events returns the output stream. The channel is closed after the end or
// error event; consumers must drain it.
func (o *Orchestrator) Events() <-chan domain.Event {
	return o.events
}

// Cancel requests cooperative cancellation: the source is cancelled, no new
// batches are drained and no new finalize steps start, but every pending
// finalize step runs to completion and emits before the terminal signal.
// Idempotent.
func (o *Orchestrator) Cancel() {
	o.cancelOnce.Do(func() {
		o.src.Cancel()
		close(o.cancelReq)
	})
}

// Start launches the run loop.
func (o *Orchestrator) Start(ctx context.Context) {
	go o.run(ctx)
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.Cancel() // release the source if the loop exits first
	defer close(o.events)
	defer close(o.done)

	srcCh := o.src.Events()
	cancelCh := o.cancelReq
	ctxCh := ctx.Done()

	for !o.state.Terminal() && !o.failed {
		// source exhausted with backlog remaining: drain between signals
		if o.state == StateDraining && !o.processor.Complete() {
			select {
			case res := <-o.results:
				o.finishFinalize(res)
			case <-cancelCh:
				cancelCh = nil
				o.requestCancel()
			default:
				o.drainOne(ctx)
			}
			continue
		}

		// a source that went away without satisfying the completion
		// condition leaves residual state undefined; close out instead of
		// hanging
		if srcCh == nil && o.processor.Complete() && len(o.pending) == 0 && !o.counters.Complete() {
			o.logger.Warn("source ended before signature discovery completed",
				zap.Int("received", o.counters.SignaturesReceived),
				zap.Int("processed", o.counters.SignaturesProcessed))
			o.finish()
			return
		}

		select {
		case ev, ok := <-srcCh:
			if !ok {
				srcCh = nil
				o.handleSourceEnd()
				continue
			}
			o.handleSourceEvent(ctx, ev)
		case res := <-o.results:
			o.finishFinalize(res)
		case <-cancelCh:
			cancelCh = nil
			o.requestCancel()
		case <-ctxCh:
			ctxCh = nil
			cancelCh = nil
			o.Cancel()
			o.requestCancel()
		}
	}
}

func (o *Orchestrator) handleSourceEvent(ctx context.Context, ev source.Event) {
	switch ev.Type {
	case source.EventSignatureCount:
		if ev.Count > o.counters.SignaturesReceived {
			o.counters.SignaturesReceived = ev.Count
		}
		o.emit(domain.Event{Type: domain.EventSignatureCount, Count: ev.Count})
		o.checkCompletion()
	case source.EventAllSignaturesFound:
		o.counters.AllSignaturesFound = true
		o.emit(domain.Event{Type: domain.EventAllSignaturesFound})
		o.checkCompletion()
	case source.EventRawTransactions:
		o.processor.Add(ev.Transactions)
		o.drainOne(ctx)
	case source.EventError:
		o.fail(errors.Wrap(ev.Err, "transaction source failed"))
	case source.EventEnd:
		o.handleSourceEnd()
	}
}

func (o *Orchestrator) handleSourceEnd() {
	if o.state == StateAccepting {
		o.transition(StateDraining)
	}
}

// drainOne classifies the oldest queued batch, appends its output to the
// transaction log and triggers a finalize step for every open-kind
// transaction (the one-shot trigger per position lifecycle).
func (o *Orchestrator) drainOne(ctx context.Context) {
	if o.state == StateCancelling || o.state.Terminal() {
		return
	}

	res, err := o.processor.Next(ctx)
	if err != nil {
		o.fail(errors.Wrap(err, "classification failed"))
		return
	}
	if res.InputCount == 0 {
		return
	}

	o.counters.SignaturesProcessed += res.InputCount

	// completion must not fire while later transactions of this batch still
	// await their finalize trigger
	o.inDrain = true
	defer func() { o.inDrain = false }()

	if len(res.Output) > 0 {
		o.txLog = append(o.txLog, res.Output...)
		o.emit(domain.Event{Type: domain.EventTransactionCount, Count: len(o.txLog)})

		for _, tx := range res.Output {
			if tx.Kind == domain.OperationOpen {
				o.beginFinalize(ctx, tx.PositionKey)
			}
			if o.failed || o.state.Terminal() {
				return
			}
		}
	}

	o.reconcileState()
	o.checkCompletion()
}

func (o *Orchestrator) beginFinalize(ctx context.Context, key string) {
	if o.state == StateCancelling || o.state.Terminal() {
		return
	}
	if _, inFlight := o.pending[key]; inFlight {
		return
	}

	o.pending[key] = struct{}{}

	txs := o.collect(key)
	position, err := o.aggregator.Build(key, txs)
	if err != nil {
		o.fail(errors.Wrapf(err, "build position %s", key))
		return
	}

	if position.Closed {
		o.emit(domain.Event{
			Type:         domain.EventPositionAndTransactions,
			Transactions: position.Transactions,
			Position:     position,
		})
		o.endFinalize(key)
		return
	}

	o.augmenting++
	o.emit(domain.Event{Type: domain.EventUpdatingOpenPositions, Count: o.augmenting})
	go o.augment(ctx, key, position)
}

// augment runs off the loop, bounded by the concurrency semaphore. A failed
// augmentation emits the position open and unaugmented instead of killing
// the stream.
func (o *Orchestrator) augment(ctx context.Context, key string, position *domain.PositionAggregate) {
	out := position
	if err := o.sem.Acquire(ctx, 1); err == nil {
		augmented, err := o.augmenter.Augment(ctx, position)
		o.sem.Release(1)
		if err != nil {
			o.logger.Warn("augmentation failed, emitting position unaugmented",
				zap.String("position", key), zap.Error(err))
		} else if augmented != nil {
			out = augmented
		}
	}

	select {
	case o.results <- finalizeResult{key: key, position: out}:
	case <-o.done:
	}
}

func (o *Orchestrator) finishFinalize(res finalizeResult) {
	o.augmenting--
	o.emit(domain.Event{
		Type:         domain.EventPositionAndTransactions,
		Transactions: res.position.Transactions,
		Position:     res.position,
	})
	o.endFinalize(res.key)
}

func (o *Orchestrator) endFinalize(key string) {
	delete(o.pending, key)
	if o.inDrain || len(o.pending) > 0 {
		return
	}
	if o.state == StateCancelling {
		// the last pending step flushed; cancellation finalizes now
		o.finish()
		return
	}
	o.checkCompletion()
}

func (o *Orchestrator) collect(key string) []domain.ClassifiedTransaction {
	var txs []domain.ClassifiedTransaction
	for _, tx := range o.txLog {
		if tx.PositionKey == key {
			txs = append(txs, tx)
		}
	}
	return txs
}

// checkCompletion evaluates the normal-completion condition after every
// forwarded signal and every batch drain. The condition itself ignores the
// pending set; the terminal emission waits for it to empty, because the
// pending set must be empty before end reaches a listener.
func (o *Orchestrator) checkCompletion() {
	if o.failed || o.state == StateCancelling || o.state.Terminal() {
		return
	}
	if !o.counters.Complete() {
		return
	}
	if len(o.pending) > 0 {
		return
	}
	o.finish()
}

func (o *Orchestrator) requestCancel() {
	if o.state == StateCancelling || o.state.Terminal() {
		return
	}
	o.transition(StateCancelling)
	if len(o.pending) == 0 {
		o.finish()
	}
}

// finish emits the terminal signal exactly once and moves to the terminal
// state. Nothing is emitted afterwards.
func (o *Orchestrator) finish() {
	if o.state.Terminal() {
		return
	}
	next := StateDone
	if o.state == StateCancelling {
		next = StateCancelled
	}
	o.events <- domain.Event{Type: domain.EventEnd}
	o.transition(next)
	o.logger.Info("position stream finished",
		zap.Stringer("state", o.state),
		zap.Int("transactions", len(o.txLog)))
}

// emit routes every candidate output through the emission gate.
func (o *Orchestrator) emit(ev domain.Event) {
	switch gate(len(o.pending), o.state) {
	case verdictEmit:
		o.events <- ev
	case verdictFinalizeCancel:
		o.finish()
	case verdictDrop:
	}
}

func (o *Orchestrator) fail(err error) {
	if o.failed || o.state.Terminal() {
		return
	}
	o.failed = true
	o.logger.Error("position stream failed", zap.Error(err))
	o.events <- domain.Event{Type: domain.EventError, Err: err}
}

func (o *Orchestrator) reconcileState() {
	if o.state == StateDraining && o.processor.Complete() && len(o.pending) > 0 {
		o.transition(StateFinalizing)
	}
}

func (o *Orchestrator) transition(next State) {
	st, err := o.state.transitionTo(next)
	if err != nil {
		o.logger.Error("state transition rejected", zap.Error(err))
		return
	}
	if st != o.state {
		o.logger.Debug("stream state changed", zap.Stringer("from", o.state), zap.Stringer("to", st))
		o.state = st
	}
}
