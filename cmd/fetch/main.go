// Command fetch pulls the native, token and internal transaction streams of
// every configured wallet from the explorer API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eth-tax-ledger/internal/app"
	"eth-tax-ledger/internal/explorer"
	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	outDir := flag.String("out-dir", "", "Directory for the JSON stream files (default explorer.data_dir)")
	noFiles := flag.Bool("no-files", false, "Skip writing JSON stream files")
	store := flag.Bool("store", false, "Insert fetched records into the raw record store (requires POSTGRES_DSN)")
	flag.Parse()

	cfg, err := app.Bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.Explorer.DataDir = *outDir
	}
	log := logger.Get().WithComponent("fetch")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var stores *app.Stores
	if *store {
		var cleanup func()
		stores, cleanup, err = app.OpenStores(ctx, cfg, false)
		if err != nil {
			log.WithError(err).Fatal("Failed to open stores")
		}
		defer cleanup()
		if !stores.Persistent {
			log.Fatal("-store requires a postgres DSN")
		}
	}

	source := &explorer.ClientSource{Client: app.NewExplorerClient(cfg.Explorer)}

	failed := 0
	for _, wallet := range cfg.WalletAddresses() {
		started := time.Now()
		wlog := log.WithField("wallet", storage.WalletKey(wallet))

		set, err := source.Fetch(ctx, wallet)
		if err != nil {
			wlog.WithError(err).Error("Fetch failed")
			failed++
			continue
		}

		fields := logger.Fields{
			"native":   len(set.Native),
			"token":    len(set.Token),
			"internal": len(set.Internal),
		}
		if !*noFiles {
			if err := explorer.WriteFiles(cfg.Explorer.DataDir, wallet, set); err != nil {
				wlog.WithError(err).Error("Write files failed")
				failed++
				continue
			}
			fields["dir"] = cfg.Explorer.DataDir
		}
		if stores != nil {
			inserted, err := stores.Raw.InsertBulk(ctx, wallet, set)
			if err != nil {
				wlog.WithError(err).Error("Store records failed")
				failed++
				continue
			}
			fields["inserted"] = inserted
		}
		logger.LogDuration(wlog, "fetch", started, fields)
	}

	if failed > 0 {
		log.WithField("failed", failed).Error("Fetch finished with failures")
		os.Exit(1)
	}
}
