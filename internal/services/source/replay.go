package source

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lptracker/internal/domain"
)

const defaultBatchSize = 25

// rawRecord is one line of a wallet history dump.
type rawRecord struct {
	Signature string          `json:"signature"`
	BlockTime int64           `json:"block_time"`
	Payload   json.RawMessage `json:"payload"`
}

// Replay streams a recorded wallet history from a JSONL dump, paging it into
// batches the way a live signature fetcher would.
type Replay struct {
	path      string
	batchSize int
	logger    *zap.Logger

	events     chan Event
	cancelOnce sync.Once
	cancelled  chan struct{}
}

// NewReplay creates a replay source for the given history dump.
func NewReplay(path string, batchSize int, logger *zap.Logger) *Replay {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.L()
	}

	return &Replay{
		path:      path,
		batchSize: batchSize,
		logger:    logger.With(zap.String("session", uuid.New().String())),
		events:    make(chan Event),
		cancelled: make(chan struct{}),
	}
}

// Events returns the signal stream. The channel is closed after the end or
// error signal.
func (r *Replay) Events() <-chan Event {
	return r.events
}

// Cancel stops paging. Idempotent.
func (r *Replay) Cancel() {
	r.cancelOnce.Do(func() {
		close(r.cancelled)
	})
}

// Start launches the replay goroutine. Signals are delivered on Events.
func (r *Replay) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Replay) run(ctx context.Context) {
	defer close(r.events)

	f, err := os.Open(r.path)
	if err != nil {
		r.send(ctx, Event{Type: EventError, Err: errors.Wrap(err, "open history dump")})
		return
	}
	defer f.Close()

	r.logger.Info("replaying wallet history", zap.String("path", r.path), zap.Int("batch_size", r.batchSize))

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		total int
		page  []domain.RawTransaction
	)

	flush := func() bool {
		if len(page) == 0 {
			return true
		}
		total += len(page)
		if !r.send(ctx, Event{Type: EventSignatureCount, Count: total}) {
			return false
		}
		if !r.send(ctx, Event{Type: EventRawTransactions, Transactions: page}) {
			return false
		}
		page = nil
		return true
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec rawRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			r.send(ctx, Event{Type: EventError, Err: errors.Wrap(err, "decode history record")})
			return
		}

		page = append(page, domain.RawTransaction{
			Signature: rec.Signature,
			BlockTime: time.Unix(rec.BlockTime, 0).UTC(),
			Payload:   rec.Payload,
		})

		if len(page) >= r.batchSize {
			if !flush() {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		r.send(ctx, Event{Type: EventError, Err: errors.Wrap(err, "read history dump")})
		return
	}

	if !flush() {
		return
	}
	if !r.send(ctx, Event{Type: EventAllSignaturesFound}) {
		return
	}

	r.logger.Info("wallet history replayed", zap.Int("signatures", total))
	r.send(ctx, Event{Type: EventEnd})
}

func (r *Replay) send(ctx context.Context, ev Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.cancelled:
		return false
	case <-ctx.Done():
		return false
	}
}
