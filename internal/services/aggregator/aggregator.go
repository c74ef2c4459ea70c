// Package aggregator reconciles the classified transactions of one position
// key into a canonical transaction log with derived economics.
package aggregator

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/lptracker/internal/domain"
)

// Reconciler is a pure position builder: the same ordered transaction set
// always yields an identical aggregate, and the input is never mutated.
type Reconciler struct{}

// New creates a reconciler.
func New() *Reconciler {
	return &Reconciler{}
}

// Build constructs the position aggregate for one key. Sign conventions are
// reconciled (outflow amounts may arrive negative from the decoder), and a
// fee-claim record is synthesized from fee fields carried on the closing
// transaction.
func (r *Reconciler) Build(key string, txs []domain.ClassifiedTransaction) (*domain.PositionAggregate, error) {
	if len(txs) == 0 {
		return nil, errors.Errorf("no transactions for position %s", key)
	}

	log := normalize(txs)

	pos := &domain.PositionAggregate{
		Key:          key,
		Pair:         log[0].Pair,
		Transactions: log,
		OpenedAt:     log[0].BlockTime,
		DepositedA:   decimal.Zero,
		DepositedB:   decimal.Zero,
		WithdrawnA:   decimal.Zero,
		WithdrawnB:   decimal.Zero,
		FeesA:        decimal.Zero,
		FeesB:        decimal.Zero,
	}

	for _, tx := range log {
		switch tx.Kind {
		case domain.OperationOpen, domain.OperationDeposit:
			pos.DepositedA = pos.DepositedA.Add(tx.AmountA)
			pos.DepositedB = pos.DepositedB.Add(tx.AmountB)
		case domain.OperationWithdraw:
			pos.WithdrawnA = pos.WithdrawnA.Add(tx.AmountA)
			pos.WithdrawnB = pos.WithdrawnB.Add(tx.AmountB)
		case domain.OperationClose:
			pos.WithdrawnA = pos.WithdrawnA.Add(tx.AmountA)
			pos.WithdrawnB = pos.WithdrawnB.Add(tx.AmountB)
			pos.Closed = true
			pos.ClosedAt = tx.BlockTime
		case domain.OperationFeeClaim:
			pos.FeesA = pos.FeesA.Add(tx.FeeA)
			pos.FeesB = pos.FeesB.Add(tx.FeeB)
		}
	}

	pos.ProfitA = pos.WithdrawnA.Add(pos.FeesA).Sub(pos.DepositedA)
	pos.ProfitB = pos.WithdrawnB.Add(pos.FeesB).Sub(pos.DepositedB)

	return pos, nil
}

// normalize copies, orders and sign-reconciles the raw classified set and
// synthesizes fee-claim records inferable from close transactions.
func normalize(txs []domain.ClassifiedTransaction) []domain.ClassifiedTransaction {
	log := make([]domain.ClassifiedTransaction, 0, len(txs))
	for _, tx := range txs {
		switch tx.Kind {
		case domain.OperationWithdraw, domain.OperationClose:
			tx.AmountA = tx.AmountA.Abs()
			tx.AmountB = tx.AmountB.Abs()
		}

		if tx.Kind == domain.OperationClose && (tx.FeeA.IsPositive() || tx.FeeB.IsPositive()) {
			fee := tx
			fee.Kind = domain.OperationFeeClaim
			fee.AmountA = decimal.Zero
			fee.AmountB = decimal.Zero
			log = append(log, fee)
			tx.FeeA = decimal.Zero
			tx.FeeB = decimal.Zero
		}

		log = append(log, tx)
	}

	sort.SliceStable(log, func(i, j int) bool {
		if !log[i].BlockTime.Equal(log[j].BlockTime) {
			return log[i].BlockTime.Before(log[j].BlockTime)
		}
		return log[i].Signature < log[j].Signature
	})

	return log
}
