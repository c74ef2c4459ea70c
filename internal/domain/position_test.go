package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRemainingClampsAtZero(t *testing.T) {
	p := &PositionAggregate{
		DepositedA: decimal.RequireFromString("10"),
		WithdrawnA: decimal.RequireFromString("4"),
		DepositedB: decimal.RequireFromString("100"),
		WithdrawnB: decimal.RequireFromString("130"),
	}

	require.True(t, p.RemainingA().Equal(decimal.RequireFromString("6")))
	// withdrawals can exceed deposits when fees were compounded in
	require.True(t, p.RemainingB().IsZero())
}

func TestOperationKindString(t *testing.T) {
	require.Equal(t, "open", OperationOpen.String())
	require.Equal(t, "close", OperationClose.String())
	require.Equal(t, "unknown", OperationKind(99).String())
}

func TestEventTypeString(t *testing.T) {
	require.Equal(t, "positionAndTransactions", EventPositionAndTransactions.String())
	require.Equal(t, "end", EventEnd.String())
	require.Equal(t, "unknown", EventType(99).String())
}
