// Package augmenter attaches current on-chain value to still-open positions.
package augmenter

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lptracker/internal/domain"
	"github.com/vadiminshakov/lptracker/internal/services/pricer"
	"github.com/vadiminshakov/lptracker/pkg/retrier"
)

// LiveState prices the liquidity still deposited in the pool and attaches
// its current quote-token value to the position. The input aggregate is
// never mutated; an enriched copy is returned.
type LiveState struct {
	pricer  pricer.Pricer
	retrier *retrier.Retrier
	logger  *zap.Logger
}

// New creates a live-state augmenter on top of the given pricer.
func New(p pricer.Pricer, logger *zap.Logger) *LiveState {
	if logger == nil {
		logger = zap.L()
	}
	return &LiveState{
		pricer:  p,
		retrier: retrier.New(),
		logger:  logger,
	}
}

// Augment returns a copy of the open position carrying its unrealized value:
// remaining base tokens priced at the current spot rate plus remaining quote
// tokens.
func (a *LiveState) Augment(ctx context.Context, position *domain.PositionAggregate) (*domain.PositionAggregate, error) {
	if position == nil {
		return nil, errors.New("nil position")
	}
	if position.Closed {
		return position, nil
	}

	price, err := retrier.DoWithData(a.retrier, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return a.pricer.GetPrice(ctx, position.Pair)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "price %s", position.Pair.String())
	}

	enriched := *position
	enriched.UnrealizedValue = position.RemainingA().Mul(price).Add(position.RemainingB())

	a.logger.Debug("augmented open position",
		zap.String("position", position.Key),
		zap.String("unrealized_value", enriched.UnrealizedValue.String()))

	return &enriched, nil
}
