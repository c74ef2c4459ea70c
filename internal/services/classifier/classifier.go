// Package classifier maps raw wallet transactions to classified
// liquidity-pool operations.
package classifier

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lptracker/internal/domain"
)

// payload is the decoded pool instruction carried by a raw transaction.
type payload struct {
	Program  string `json:"program"`
	Event    string `json:"event"`
	Position string `json:"position"`
	Pair     string `json:"pair"`
	AmountA  string `json:"amount_a"`
	AmountB  string `json:"amount_b"`
	FeeA     string `json:"fee_a"`
	FeeB     string `json:"fee_b"`
}

var eventKinds = map[string]domain.OperationKind{
	"open_position":    domain.OperationOpen,
	"add_liquidity":    domain.OperationDeposit,
	"remove_liquidity": domain.OperationWithdraw,
	"claim_fee":        domain.OperationFeeClaim,
	"close_position":   domain.OperationClose,
}

// LP classifies liquidity-pool activity. Transactions irrelevant to any pool
// position (swaps, transfers, unknown programs) classify to nothing.
type LP struct {
	logger *zap.Logger
}

// New creates an LP classifier.
func New(logger *zap.Logger) *LP {
	if logger == nil {
		logger = zap.L()
	}
	return &LP{logger: logger}
}

// Classify converts one raw batch into classified transactions. A malformed
// payload fails the whole batch; there is no partial retry.
func (c *LP) Classify(ctx context.Context, txs []domain.RawTransaction) ([]domain.ClassifiedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []domain.ClassifiedTransaction
	for _, tx := range txs {
		classified, ok, err := c.classifyOne(tx)
		if err != nil {
			return nil, errors.Wrapf(err, "classify %s", tx.Signature)
		}
		if !ok {
			continue
		}
		out = append(out, classified)
	}

	if len(out) > 0 {
		c.logger.Debug("classified batch", zap.Int("in", len(txs)), zap.Int("out", len(out)))
	}

	return out, nil
}

func (c *LP) classifyOne(tx domain.RawTransaction) (domain.ClassifiedTransaction, bool, error) {
	if len(tx.Payload) == 0 {
		return domain.ClassifiedTransaction{}, false, nil
	}

	var p payload
	if err := json.Unmarshal(tx.Payload, &p); err != nil {
		return domain.ClassifiedTransaction{}, false, errors.Wrap(err, "decode payload")
	}

	kind, ok := eventKinds[p.Event]
	if !ok || p.Position == "" {
		return domain.ClassifiedTransaction{}, false, nil
	}

	pair, err := parsePair(p.Pair)
	if err != nil {
		return domain.ClassifiedTransaction{}, false, err
	}

	amountA, err := parseAmount(p.AmountA)
	if err != nil {
		return domain.ClassifiedTransaction{}, false, errors.Wrap(err, "amount_a")
	}
	amountB, err := parseAmount(p.AmountB)
	if err != nil {
		return domain.ClassifiedTransaction{}, false, errors.Wrap(err, "amount_b")
	}
	feeA, err := parseAmount(p.FeeA)
	if err != nil {
		return domain.ClassifiedTransaction{}, false, errors.Wrap(err, "fee_a")
	}
	feeB, err := parseAmount(p.FeeB)
	if err != nil {
		return domain.ClassifiedTransaction{}, false, errors.Wrap(err, "fee_b")
	}

	return domain.ClassifiedTransaction{
		Signature:   tx.Signature,
		PositionKey: p.Position,
		Pair:        pair,
		Kind:        kind,
		AmountA:     amountA,
		AmountB:     amountB,
		FeeA:        feeA,
		FeeB:        feeB,
		BlockTime:   tx.BlockTime,
	}, true, nil
}

func parsePair(s string) (domain.Pair, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 {
		return domain.Pair{}, errors.Errorf("invalid pair %q", s)
	}
	return domain.Pair{From: parts[0], To: parts[1]}, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
