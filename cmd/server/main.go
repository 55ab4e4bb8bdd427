// Command server re-runs reconciliation for every configured wallet on a
// fixed interval and serves the results:
//   - /health
//   - /metrics (Prometheus)
//   - /status
//   - /events?wallet=&method=&hash= (JSON)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eth-tax-ledger/internal/app"
	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	source := flag.String("source", app.SourceExplorer, "Raw record source: files, store or explorer")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	interval := flag.Duration("interval", 0, "Run interval (default server.interval)")
	addr := flag.String("addr", "", "HTTP listen address (default server.addr)")
	flag.Parse()

	cfg, err := app.Bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *interval > 0 {
		cfg.Server.Interval = *interval
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	log := logger.Get().WithComponent("server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stores, cleanup, err := app.OpenStores(ctx, cfg, *useMemory)
	if err != nil {
		log.WithError(err).Fatal("Failed to create stores")
	}
	defer cleanup()

	src, err := app.SelectSource(*source, cfg, stores)
	if err != nil {
		log.WithError(err).Fatal("Invalid source")
	}

	runner, closeOracle, err := app.NewRunner(ctx, cfg, pipeline.Stores{Events: stores.Events, Reports: stores.Reports})
	if err != nil {
		log.WithError(err).Fatal("Failed to build pipeline")
	}
	defer closeOracle()

	srv := NewServer(cfg, src, stores.Events, runner)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
			cancel()
		}
	}()

	err = srv.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		log.WithError(serr).Warn("HTTP shutdown")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("Server error")
	}
	log.Info("Shutdown complete")
}
