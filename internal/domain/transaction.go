// Package domain defines core data structures used throughout the position tracker.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationKind describes what a classified transaction does to a position.
type OperationKind int

const (
	// OperationOpen is the opening deposit that creates a position.
	OperationOpen OperationKind = iota
	// OperationDeposit adds liquidity to an existing position.
	OperationDeposit
	// OperationWithdraw removes part of the liquidity.
	OperationWithdraw
	// OperationFeeClaim collects accrued trading fees.
	OperationFeeClaim
	// OperationClose removes the remaining liquidity and closes the position.
	OperationClose
)

// String returns the string representation.
func (k OperationKind) String() string {
	switch k {
	case OperationOpen:
		return "open"
	case OperationDeposit:
		return "deposit"
	case OperationWithdraw:
		return "withdraw"
	case OperationFeeClaim:
		return "fee_claim"
	case OperationClose:
		return "close"
	default:
		return "unknown"
	}
}

// RawTransaction is an opaque, timestamped unit of on-chain activity as
// delivered by the transaction source. It is consumed once by the batch
// processor and discarded.
type RawTransaction struct {
	Signature string    `json:"signature"`
	BlockTime time.Time `json:"block_time"`
	Payload   []byte    `json:"payload"`
}

// ClassifiedTransaction is a raw transaction annotated with the position it
// affects and its operation kind. Immutable once produced.
type ClassifiedTransaction struct {
	Signature   string          `json:"signature"`
	PositionKey string          `json:"position_key"`
	Pair        Pair            `json:"pair"`
	Kind        OperationKind   `json:"kind"`
	AmountA     decimal.Decimal `json:"amount_a"`
	AmountB     decimal.Decimal `json:"amount_b"`
	FeeA        decimal.Decimal `json:"fee_a"`
	FeeB        decimal.Decimal `json:"fee_b"`
	BlockTime   time.Time       `json:"block_time"`
}
