package positions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/lptracker/internal/domain"
)

func testPosition(key string) *domain.PositionAggregate {
	return &domain.PositionAggregate{
		Key:        key,
		Pair:       domain.Pair{From: "SOL", To: "USDC"},
		Closed:     true,
		DepositedA: decimal.RequireFromString("10"),
		DepositedB: decimal.RequireFromString("1000"),
		WithdrawnA: decimal.RequireFromString("11"),
		WithdrawnB: decimal.RequireFromString("1100"),
		FeesA:      decimal.RequireFromString("0.2"),
		FeesB:      decimal.RequireFromString("15"),
		ProfitA:    decimal.RequireFromString("1.2"),
		ProfitB:    decimal.RequireFromString("115"),
		OpenedAt:   time.Unix(1700000000, 0).UTC(),
		ClosedAt:   time.Unix(1700009000, 0).UTC(),
	}
}

func TestSaveAndReadBack(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(testPosition("P1")))
	require.NoError(t, store.Save(testPosition("P2")))

	records, err := store.PositionsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, "P1", records[0].Position.Key)
	require.Equal(t, "P2", records[1].Position.Key)
	require.True(t, records[0].Position.ProfitB.Equal(decimal.RequireFromString("115")))
	require.True(t, records[0].Position.Closed)
}

func TestPositionsAfterSkipsConsumedRecords(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(testPosition("P1")))

	records, err := store.PositionsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	last := records[0].Index

	records, err = store.PositionsAfter(last)
	require.NoError(t, err)
	require.Empty(t, records)

	require.NoError(t, store.Save(testPosition("P2")))

	records, err = store.PositionsAfter(last)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "P2", records[0].Position.Key)
}

func TestSaveRejectsInvalidPosition(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.Error(t, store.Save(nil))
	require.Error(t, store.Save(&domain.PositionAggregate{}))
}

func TestUninitializedStore(t *testing.T) {
	var store *WALStore
	require.Error(t, store.Save(testPosition("P1")))
	_, err := store.PositionsAfter(0)
	require.Error(t, err)
	require.Zero(t, store.CurrentIndex())
}
