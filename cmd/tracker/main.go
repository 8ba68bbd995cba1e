package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/distli-mesh/aggregator/params"
	"github.com/distli-mesh/aggregator/pkg/forwarder"
	"github.com/distli-mesh/aggregator/pkg/tracker"
	"github.com/distli-mesh/aggregator/pkg/util"
)

func main() {
	cfg := params.LoadTracker(os.Args[1:])

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

	sugar.Infow("tracker_starting", "addr", cfg.ListenAddr, "enterprise_url", cfg.EnterpriseURL)

	fwd := forwarder.New(cfg.DataDir, cfg.EnterpriseURL, sugar, util.RealClock{}, cfg.ForwardInterval)
	hub := tracker.NewHub(cfg.EnterpriseURL, fwd, sugar)
	server := tracker.NewServer(hub, sugar)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go fwd.Run(ctx)

	go func() {
		sugar.Infow("tracker_listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("tracker_listen_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("tracker_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
