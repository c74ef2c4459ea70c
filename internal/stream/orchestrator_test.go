package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lptracker/internal/domain"
	"github.com/vadiminshakov/lptracker/internal/services/aggregator"
	"github.com/vadiminshakov/lptracker/internal/services/source"
)

type fakeSource struct {
	ch         chan source.Event
	cancelOnce sync.Once
	cancels    atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan source.Event)}
}

func (f *fakeSource) Events() <-chan source.Event { return f.ch }

func (f *fakeSource) Cancel() {
	f.cancelOnce.Do(func() {
		f.cancels.Add(1)
	})
}

func (f *fakeSource) push(t *testing.T, ev source.Event) {
	t.Helper()
	select {
	case f.ch <- ev:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not consume source event")
	}
}

type classifyFunc func(ctx context.Context, txs []domain.RawTransaction) ([]domain.ClassifiedTransaction, error)

func (f classifyFunc) Classify(ctx context.Context, txs []domain.RawTransaction) ([]domain.ClassifiedTransaction, error) {
	return f(ctx, txs)
}

type augmentFunc func(ctx context.Context, position *domain.PositionAggregate) (*domain.PositionAggregate, error)

func (f augmentFunc) Augment(ctx context.Context, position *domain.PositionAggregate) (*domain.PositionAggregate, error) {
	return f(ctx, position)
}

func identityAugmenter() augmentFunc {
	return func(_ context.Context, position *domain.PositionAggregate) (*domain.PositionAggregate, error) {
		enriched := *position
		enriched.UnrealizedValue = decimal.NewFromInt(42)
		return &enriched, nil
	}
}

// tableClassifier classifies raw transactions by signature lookup; unknown
// signatures are irrelevant and classify to nothing.
func tableClassifier(table map[string]domain.ClassifiedTransaction) classifyFunc {
	return func(_ context.Context, txs []domain.RawTransaction) ([]domain.ClassifiedTransaction, error) {
		var out []domain.ClassifiedTransaction
		for _, tx := range txs {
			if classified, ok := table[tx.Signature]; ok {
				out = append(out, classified)
			}
		}
		return out, nil
	}
}

func rawBatch(sigs ...string) []domain.RawTransaction {
	txs := make([]domain.RawTransaction, 0, len(sigs))
	for i, sig := range sigs {
		txs = append(txs, domain.RawTransaction{
			Signature: sig,
			BlockTime: time.Unix(int64(1700000000+i), 0),
		})
	}
	return txs
}

func classified(sig, key string, kind domain.OperationKind, at int64) domain.ClassifiedTransaction {
	return domain.ClassifiedTransaction{
		Signature:   sig,
		PositionKey: key,
		Pair:        domain.Pair{From: "SOL", To: "USDC"},
		Kind:        kind,
		AmountA:     decimal.NewFromInt(1),
		AmountB:     decimal.NewFromInt(100),
		BlockTime:   time.Unix(at, 0),
	}
}

func collectEvents(t *testing.T, orch *Orchestrator) []domain.Event {
	t.Helper()
	var events []domain.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-orch.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for stream to finish, got %d events", len(events))
		}
	}
}

func eventTypes(events []domain.Event) []domain.EventType {
	types := make([]domain.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func TestClosedPositionEmittedImmediatelyThenEnd(t *testing.T) {
	src := newFakeSource()
	table := map[string]domain.ClassifiedTransaction{
		"sig1":  classified("sig1", "P1", domain.OperationOpen, 1700000000),
		"sig10": classified("sig10", "P1", domain.OperationClose, 1700000100),
	}

	orch := New(src, tableClassifier(table), aggregator.New(), identityAugmenter(), zap.NewNop())
	orch.Start(context.Background())

	go func() {
		src.push(t, source.Event{Type: source.EventSignatureCount, Count: 10})
		src.push(t, source.Event{Type: source.EventAllSignaturesFound})
		src.push(t, source.Event{Type: source.EventRawTransactions,
			Transactions: rawBatch("sig1", "sig2", "sig3", "sig4", "sig5", "sig6", "sig7", "sig8", "sig9", "sig10")})
	}()

	events := collectEvents(t, orch)

	require.Equal(t, []domain.EventType{
		domain.EventSignatureCount,
		domain.EventAllSignaturesFound,
		domain.EventTransactionCount,
		domain.EventPositionAndTransactions,
		domain.EventEnd,
	}, eventTypes(events))

	pos := events[3].Position
	require.Equal(t, "P1", pos.Key)
	require.True(t, pos.Closed)
	require.Len(t, events[3].Transactions, 2)
}

func TestOpenPositionAugmentedBeforeEnd(t *testing.T) {
	src := newFakeSource()
	table := map[string]domain.ClassifiedTransaction{
		"sig1": classified("sig1", "P1", domain.OperationOpen, 1700000000),
	}

	orch := New(src, tableClassifier(table), aggregator.New(), identityAugmenter(), zap.NewNop())
	orch.Start(context.Background())

	go func() {
		src.push(t, source.Event{Type: source.EventSignatureCount, Count: 10})
		src.push(t, source.Event{Type: source.EventAllSignaturesFound})
		src.push(t, source.Event{Type: source.EventRawTransactions,
			Transactions: rawBatch("sig1", "sig2", "sig3", "sig4", "sig5", "sig6", "sig7", "sig8", "sig9", "sig10")})
	}()

	events := collectEvents(t, orch)

	require.Equal(t, []domain.EventType{
		domain.EventSignatureCount,
		domain.EventAllSignaturesFound,
		domain.EventTransactionCount,
		domain.EventUpdatingOpenPositions,
		domain.EventPositionAndTransactions,
		domain.EventEnd,
	}, eventTypes(events))

	require.Equal(t, 1, events[3].Count)

	pos := events[4].Position
	require.False(t, pos.Closed)
	require.True(t, pos.UnrealizedValue.Equal(decimal.NewFromInt(42)))
}

func TestCancelFlushesInFlightFinalizeThenEnds(t *testing.T) {
	src := newFakeSource()
	table := map[string]domain.ClassifiedTransaction{
		"sig1": classified("sig1", "P1", domain.OperationOpen, 1700000000),
		"sig2": classified("sig2", "P2", domain.OperationOpen, 1700000001),
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var startOnce sync.Once
	blockingAugmenter := augmentFunc(func(_ context.Context, position *domain.PositionAggregate) (*domain.PositionAggregate, error) {
		startOnce.Do(func() { close(started) })
		<-release
		return position, nil
	})

	orch := New(src, tableClassifier(table), aggregator.New(), blockingAugmenter, zap.NewNop())
	orch.Start(context.Background())

	go func() {
		src.push(t, source.Event{Type: source.EventSignatureCount, Count: 1})
		src.push(t, source.Event{Type: source.EventRawTransactions, Transactions: rawBatch("sig1")})

		<-started
		orch.Cancel()
		orch.Cancel() // idempotent

		// give the idle loop a moment to pick up the cancel request, then
		// verify transactions arriving after cancellation produce no events
		time.Sleep(100 * time.Millisecond)
		src.push(t, source.Event{Type: source.EventRawTransactions, Transactions: rawBatch("sig2")})

		close(release)
	}()

	events := collectEvents(t, orch)

	require.Equal(t, []domain.EventType{
		domain.EventSignatureCount,
		domain.EventTransactionCount,
		domain.EventUpdatingOpenPositions,
		domain.EventPositionAndTransactions,
		domain.EventEnd,
	}, eventTypes(events))

	require.Equal(t, "P1", events[3].Position.Key)
	require.Equal(t, int32(1), src.cancels.Load())
}

func TestCancelWithNothingPendingEndsImmediately(t *testing.T) {
	src := newFakeSource()
	orch := New(src, tableClassifier(nil), aggregator.New(), identityAugmenter(), zap.NewNop())
	orch.Start(context.Background())

	go func() {
		src.push(t, source.Event{Type: source.EventSignatureCount, Count: 5})
		orch.Cancel()
	}()

	events := collectEvents(t, orch)

	require.Equal(t, []domain.EventType{
		domain.EventSignatureCount,
		domain.EventEnd,
	}, eventTypes(events))
}

func TestClassifierFailureEmitsErrorWithoutEnd(t *testing.T) {
	src := newFakeSource()

	var batches atomic.Int32
	failing := classifyFunc(func(_ context.Context, txs []domain.RawTransaction) ([]domain.ClassifiedTransaction, error) {
		if batches.Add(1) == 2 {
			return nil, errors.New("decoder blew up")
		}
		return nil, nil
	})

	orch := New(src, failing, aggregator.New(), identityAugmenter(), zap.NewNop())
	orch.Start(context.Background())

	go func() {
		src.push(t, source.Event{Type: source.EventSignatureCount, Count: 4})
		src.push(t, source.Event{Type: source.EventRawTransactions, Transactions: rawBatch("sig1", "sig2")})
		src.push(t, source.Event{Type: source.EventRawTransactions, Transactions: rawBatch("sig3", "sig4")})
	}()

	events := collectEvents(t, orch)

	types := eventTypes(events)
	require.Equal(t, domain.EventError, types[len(types)-1])
	require.NotContains(t, types, domain.EventEnd)
	require.ErrorContains(t, events[len(events)-1].Err, "decoder blew up")
}

func TestSourceErrorForwardedWithoutEnd(t *testing.T) {
	src := newFakeSource()
	orch := New(src, tableClassifier(nil), aggregator.New(), identityAugmenter(), zap.NewNop())
	orch.Start(context.Background())

	go func() {
		src.push(t, source.Event{Type: source.EventSignatureCount, Count: 3})
		src.push(t, source.Event{Type: source.EventError, Err: errors.New("rpc node gone")})
	}()

	events := collectEvents(t, orch)

	require.Equal(t, []domain.EventType{
		domain.EventSignatureCount,
		domain.EventError,
	}, eventTypes(events))
	require.ErrorContains(t, events[1].Err, "rpc node gone")
}

func TestAugmentationFailureEmitsUnaugmentedPosition(t *testing.T) {
	src := newFakeSource()
	table := map[string]domain.ClassifiedTransaction{
		"sig1": classified("sig1", "P1", domain.OperationOpen, 1700000000),
	}

	failing := augmentFunc(func(_ context.Context, _ *domain.PositionAggregate) (*domain.PositionAggregate, error) {
		return nil, errors.New("price feed down")
	})

	orch := New(src, tableClassifier(table), aggregator.New(), failing, zap.NewNop())
	orch.Start(context.Background())

	go func() {
		src.push(t, source.Event{Type: source.EventSignatureCount, Count: 1})
		src.push(t, source.Event{Type: source.EventAllSignaturesFound})
		src.push(t, source.Event{Type: source.EventRawTransactions, Transactions: rawBatch("sig1")})
	}()

	events := collectEvents(t, orch)

	types := eventTypes(events)
	require.Contains(t, types, domain.EventPositionAndTransactions)
	require.Equal(t, domain.EventEnd, types[len(types)-1])

	for _, ev := range events {
		if ev.Type == domain.EventPositionAndTransactions {
			require.False(t, ev.Position.Closed)
			require.True(t, ev.Position.UnrealizedValue.IsZero())
		}
	}
}

func TestCompletenessAcrossBatchesAndKeys(t *testing.T) {
	src := newFakeSource()
	table := map[string]domain.ClassifiedTransaction{
		"sig1": classified("sig1", "P1", domain.OperationOpen, 1700000000),
		"sig2": classified("sig2", "P2", domain.OperationOpen, 1700000001),
		"sig3": classified("sig3", "P1", domain.OperationClose, 1700000002),
		"sig4": classified("sig4", "P3", domain.OperationOpen, 1700000003),
	}

	orch := New(src, tableClassifier(table), aggregator.New(), identityAugmenter(), zap.NewNop())
	orch.Start(context.Background())

	go func() {
		src.push(t, source.Event{Type: source.EventSignatureCount, Count: 2})
		// the batch holding P1's close arrives later than P1's open trigger
		src.push(t, source.Event{Type: source.EventRawTransactions, Transactions: rawBatch("sig1", "sig2")})
		src.push(t, source.Event{Type: source.EventSignatureCount, Count: 4})
		src.push(t, source.Event{Type: source.EventRawTransactions, Transactions: rawBatch("sig3", "sig4")})
		src.push(t, source.Event{Type: source.EventAllSignaturesFound})
		close(src.ch)
	}()

	events := collectEvents(t, orch)

	keys := map[string]int{}
	var ends int
	for _, ev := range events {
		switch ev.Type {
		case domain.EventPositionAndTransactions:
			keys[ev.Position.Key]++
		case domain.EventEnd:
			ends++
		}
	}

	// one emission per distinct position key, one terminal signal
	require.Equal(t, map[string]int{"P1": 1, "P2": 1, "P3": 1}, keys)
	require.Equal(t, 1, ends)
	require.Equal(t, domain.EventEnd, events[len(events)-1].Type)
}

func TestTransactionCountMonotonic(t *testing.T) {
	src := newFakeSource()
	table := map[string]domain.ClassifiedTransaction{
		"sig1": classified("sig1", "P1", domain.OperationOpen, 1700000000),
		"sig2": classified("sig2", "P1", domain.OperationDeposit, 1700000001),
		"sig3": classified("sig3", "P1", domain.OperationClose, 1700000002),
	}

	orch := New(src, tableClassifier(table), aggregator.New(), identityAugmenter(), zap.NewNop())
	orch.Start(context.Background())

	go func() {
		src.push(t, source.Event{Type: source.EventSignatureCount, Count: 3})
		src.push(t, source.Event{Type: source.EventRawTransactions, Transactions: rawBatch("sig1")})
		src.push(t, source.Event{Type: source.EventRawTransactions, Transactions: rawBatch("sig2")})
		src.push(t, source.Event{Type: source.EventRawTransactions, Transactions: rawBatch("sig3")})
		src.push(t, source.Event{Type: source.EventAllSignaturesFound})
	}()

	events := collectEvents(t, orch)

	var counts []int
	for _, ev := range events {
		if ev.Type == domain.EventTransactionCount {
			counts = append(counts, ev.Count)
		}
	}

	require.Equal(t, []int{1, 2, 3}, counts)
}

func TestEndWaitsForCompletionCondition(t *testing.T) {
	src := newFakeSource()
	orch := New(src, tableClassifier(nil), aggregator.New(), identityAugmenter(), zap.NewNop())
	orch.Start(context.Background())

	done := make(chan struct{})
	var events []domain.Event
	go func() {
		defer close(done)
		events = collectEvents(t, orch)
	}()

	src.push(t, source.Event{Type: source.EventSignatureCount, Count: 2})
	src.push(t, source.Event{Type: source.EventRawTransactions, Transactions: rawBatch("sig1", "sig2")})

	// processed == received but discovery is not finished: no end yet
	select {
	case <-done:
		t.Fatal("stream finished before allSignaturesFound")
	case <-time.After(100 * time.Millisecond):
	}

	src.push(t, source.Event{Type: source.EventAllSignaturesFound})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}

	require.Equal(t, domain.EventEnd, events[len(events)-1].Type)
}
