package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/distli-mesh/aggregator/params"
	"github.com/distli-mesh/aggregator/pkg/chain"
	"github.com/distli-mesh/aggregator/pkg/enterprise"
	"github.com/distli-mesh/aggregator/pkg/orderbook"
	"github.com/distli-mesh/aggregator/pkg/util"
)

func main() {
	cfg := params.LoadEnterprise(os.Args[1:])

	logFile := os.Getenv("LOG_FILE")
	var logger *zap.Logger
	var err error
	if logFile != "" {
		logger, err = util.NewLoggerWithFile(logFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Infow("enterprise_starting", "validator_id", cfg.ValidatorID, "port", cfg.Port, "stake", cfg.Stake)

	c := chain.New(cfg.ValidatorID, cfg.DataDir, cfg.Stake)
	book := orderbook.NewBook()

	server := enterprise.NewServer(c, book, cfg.TrackerURL, sugar)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runSelfHeartbeat(ctx, c, cfg.ValidatorID)
	go runHeartbeatCleanup(ctx, c)
	go runMiningLoop(ctx, c, sugar)

	go func() {
		sugar.Infow("enterprise_listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("enterprise_listen_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("enterprise_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

// runSelfHeartbeat keeps this process's own validator record alive —
// without it, a long-running single-validator process would fall
// outside its own 120s staleness window and never mine again.
func runSelfHeartbeat(ctx context.Context, c *chain.Chain, validatorID string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.UpdateValidatorHeartbeat(validatorID)
		}
	}
}

// runHeartbeatCleanup evicts stale validators every 30s, well under the
// 120s staleness window, so a dead validator's stake drops out of
// selection promptly.
func runHeartbeatCleanup(ctx context.Context, c *chain.Chain) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanupStaleValidators()
		}
	}
}

// runMiningLoop ticks mine_block every second; it is a no-op whenever
// pending is empty or no validator is active (spec.md §4.2).
func runMiningLoop(ctx context.Context, c *chain.Chain, sugar *zap.SugaredLogger) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if block, ok := c.MineBlock(); ok {
				sugar.Infow("block_mined", "height", block.Height, "hash", block.Hash, "txs", len(block.Transactions))
			}
		}
	}
}
