// Package positions persists emitted position records in a WAL so consumers
// (web stream, exporters) can replay them.
package positions

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/lptracker/internal/domain"
)

const (
	DefaultDir   = "./wal/positions"
	segmentLimit = 100
	maxSegments  = 10

	positionKeyPrefix = "position_"
)

// Record is one journalled position with its WAL index.
type Record struct {
	Index    uint64                   `json:"index"`
	Position domain.PositionAggregate `json:"position"`
}

// WALStore persists position records in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed position store.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "position_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init position WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save writes the position record to WAL.
func (s *WALStore) Save(position *domain.PositionAggregate) error {
	if s == nil || s.wal == nil {
		return errors.New("position store is not initialized")
	}
	if position == nil || position.Key == "" {
		return errors.New("position key is required")
	}

	payload, err := json.Marshal(position)
	if err != nil {
		return errors.Wrap(err, "marshal position")
	}

	key := fmt.Sprintf("%s%s", positionKeyPrefix, position.Key)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// PositionsAfter returns all position records written after the provided WAL index.
func (s *WALStore) PositionsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("position store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, positionKeyPrefix) {
			continue
		}

		var position domain.PositionAggregate
		if err := json.Unmarshal(payload, &position); err != nil {
			return nil, errors.Wrap(err, "decode position record")
		}
		records = append(records, Record{Index: idx, Position: position})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("position store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
