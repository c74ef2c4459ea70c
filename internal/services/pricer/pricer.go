// Package pricer quotes current token prices for valuing open positions.
package pricer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/lptracker/internal/domain"
)

// Pricer returns the current price of the pair's base token in quote units.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}
