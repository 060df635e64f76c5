package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tradevault/config"
	"tradevault/native/trade"
	"tradevault/observability/logging"
	"tradevault/rpc"
	"tradevault/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TRADEVAULT_ENV"))
	logger := logging.Setup("tradevaultd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	vault, err := cfg.Vault()
	if err != nil {
		panic(fmt.Sprintf("Invalid vault address: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	ledger, err := trade.NewLedger(db)
	if err != nil {
		logger.Error("Failed to open trade ledger", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("trade ledger opened", "trades", ledger.Len())

	bank := trade.NewAccountBank(db)
	// Collaborator contracts register here as integrations come online.
	registry := trade.NewStaticRegistry()
	engine := trade.NewEngine(ledger, trade.NewCustody(bank, registry, vault))
	if cfg.CancelPolicy == "sellerOnly" {
		engine.SetCancelPolicy(trade.CancelSellerOnly)
	}
	engine.SetCompoundLegs(cfg.CompoundLegs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runSweeper(ctx, engine, time.Duration(cfg.SweepIntervalSecs)*time.Second, logger)

	server := rpc.NewServer(engine, logger, cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	if err := server.Start(ctx, cfg.RPCAddress); err != nil {
		logger.Error("RPC server failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// runSweeper drives expiry reclassification on a fixed interval. The predicate
// keeps idle ticks cheap; the sweep itself is idempotent.
func runSweeper(ctx context.Context, engine *trade.Engine, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !engine.IsSweepNeeded() {
				continue
			}
			swept, err := engine.CheckExpiredTrades()
			if err != nil {
				logger.Error("expiry sweep failed", slog.Any("error", err))
				continue
			}
			if swept > 0 {
				logger.Info("expiry sweep completed", "swept", swept)
			}
		}
	}
}
