package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionAggregate is one deposit-to-withdrawal liquidity lifecycle derived
// from every classified transaction sharing a position key. Aggregates are
// built on demand, emitted and discarded; they are never cached or mutated
// after emission.
type PositionAggregate struct {
	Key          string                  `json:"key"`
	Pair         Pair                    `json:"pair"`
	Transactions []ClassifiedTransaction `json:"transactions"`
	Closed       bool                    `json:"closed"`

	DepositedA decimal.Decimal `json:"deposited_a"`
	DepositedB decimal.Decimal `json:"deposited_b"`
	WithdrawnA decimal.Decimal `json:"withdrawn_a"`
	WithdrawnB decimal.Decimal `json:"withdrawn_b"`
	FeesA      decimal.Decimal `json:"fees_a"`
	FeesB      decimal.Decimal `json:"fees_b"`
	ProfitA    decimal.Decimal `json:"profit_a"`
	ProfitB    decimal.Decimal `json:"profit_b"`

	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at,omitempty"`

	// UnrealizedValue is the current quote-token value of the liquidity still
	// in the pool. Set by the live-state augmenter for open positions only.
	UnrealizedValue decimal.Decimal `json:"unrealized_value,omitempty"`
}

// RemainingA returns how much of token A is still deposited in the pool.
func (p *PositionAggregate) RemainingA() decimal.Decimal {
	rem := p.DepositedA.Sub(p.WithdrawnA)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// RemainingB returns how much of token B is still deposited in the pool.
func (p *PositionAggregate) RemainingB() decimal.Decimal {
	rem := p.DepositedB.Sub(p.WithdrawnB)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}
