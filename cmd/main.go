// Command lptracker reconciles a wallet's liquidity-pool history into a
// stream of position records with computed profit/fee economics.
//
// Usage:
//
//	lptracker setup                  (interactive config wizard)
//	lptracker --config config.yaml
//	lptracker --wallet <addr> --history dump.jsonl
//
// Open positions are valued through Binance or Bybit public price endpoints;
// no API keys are required.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/adshao/go-binance/v2"
	"github.com/hirokisan/bybit/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/lptracker/config"
	"github.com/vadiminshakov/lptracker/internal/domain"
	"github.com/vadiminshakov/lptracker/internal/services/aggregator"
	"github.com/vadiminshakov/lptracker/internal/services/augmenter"
	"github.com/vadiminshakov/lptracker/internal/services/classifier"
	"github.com/vadiminshakov/lptracker/internal/services/pricer"
	"github.com/vadiminshakov/lptracker/internal/services/source"
	"github.com/vadiminshakov/lptracker/internal/setup"
	"github.com/vadiminshakov/lptracker/internal/storage/positions"
	"github.com/vadiminshakov/lptracker/internal/stream"
	"github.com/vadiminshakov/lptracker/internal/web"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	var priceSource pricer.Pricer
	switch cfg.Platform {
	case "binance":
		priceSource = pricer.NewBinancePricer(binance.NewClient("", ""))
	case "bybit":
		priceSource = pricer.NewBybitPricer(bybit.NewClient())
	default:
		logger.Fatal("unsupported platform", zap.String("platform", cfg.Platform))
	}

	store, err := positions.NewWALStore(cfg.WalDir)
	if err != nil {
		logger.Fatal("failed to open position journal", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := source.NewReplay(cfg.HistoryFile, cfg.BatchSize, logger)
	orch := stream.New(
		src,
		classifier.New(logger),
		aggregator.New(),
		augmenter.New(priceSource, logger),
		logger.With(zap.String("wallet", cfg.Wallet)),
		stream.WithAugmentConcurrency(cfg.AugmentConcurrency),
	)

	src.Start(ctx)
	orch.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.WebAddr != "" {
		g.Go(func() error {
			logger.Info("position stream server listening", zap.String("addr", cfg.WebAddr))
			return web.NewServer(cfg.WebAddr, store).Start(gctx)
		})
	}

	g.Go(func() error {
		defer stop()
		return consume(orch, store, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("lptracker failed", zap.Error(err))
	}
}

// consume drains the orchestrator's stream, journalling every reconciled
// position, until the terminal signal.
func consume(orch *stream.Orchestrator, store *positions.WALStore, logger *zap.Logger) error {
	for ev := range orch.Events() {
		switch ev.Type {
		case domain.EventSignatureCount:
			logger.Info("signatures discovered", zap.Int("count", ev.Count))
		case domain.EventAllSignaturesFound:
			logger.Info("signature discovery finished")
		case domain.EventTransactionCount:
			logger.Info("classified transactions", zap.Int("count", ev.Count))
		case domain.EventUpdatingOpenPositions:
			logger.Info("valuing open positions", zap.Int("in_flight", ev.Count))
		case domain.EventPositionAndTransactions:
			logger.Info("position reconciled",
				zap.String("position", ev.Position.Key),
				zap.String("pair", ev.Position.Pair.String()),
				zap.Bool("closed", ev.Position.Closed),
				zap.String("profit_a", ev.Position.ProfitA.String()),
				zap.String("profit_b", ev.Position.ProfitB.String()))
			if err := store.Save(ev.Position); err != nil {
				logger.Error("failed to journal position", zap.String("position", ev.Position.Key), zap.Error(err))
			}
		case domain.EventError:
			return ev.Err
		case domain.EventEnd:
			logger.Info("position stream complete")
		}
	}
	return nil
}
