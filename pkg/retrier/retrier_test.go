package retrier

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := New().Do(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := New().WithAttempts(5).Do(context.Background(), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := New().WithAttempts(2).Do(context.Background(), func(_ context.Context) error {
		calls++
		return errors.Errorf("attempt %d failed", calls)
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
	require.Contains(t, err.Error(), "attempt 2")
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- New().WithAttempts(10).Do(ctx, func(_ context.Context) error {
			calls++
			if calls == 1 {
				cancel()
			}
			return errors.New("always fails")
		})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retrier ignored context cancellation")
	}
}

func TestDoWithData(t *testing.T) {
	calls := 0
	result, err := DoWithData(New().WithAttempts(3), context.Background(), func(_ context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, result)
}
