// Command verify replays the stored raw records of every configured wallet
// and compares the result with the stored events.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"eth-tax-ledger/internal/app"
	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/pipeline"
	"eth-tax-ledger/internal/verification"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	method := flag.String("method", "", "Accounting method to verify (default accounting.method)")
	verbose := flag.Bool("v", false, "Print every divergent field")
	flag.Parse()

	cfg, err := app.Bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get().WithComponent("verify")

	m := domain.AccountingMethod(strings.ToUpper(cfg.Accounting.Method))
	if *method != "" {
		m = domain.AccountingMethod(strings.ToUpper(*method))
	}
	if !m.IsValid() {
		log.WithField("method", string(m)).Fatal("Unknown accounting method")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := app.OpenStores(ctx, cfg, false)
	if err != nil {
		log.WithError(err).Fatal("Failed to open stores")
	}
	defer cleanup()
	if !stores.Persistent {
		log.Fatal("Verification requires a postgres DSN")
	}

	runner, closeOracle, err := app.NewRunner(ctx, cfg, pipeline.Stores{})
	if err != nil {
		log.WithError(err).Fatal("Failed to build pipeline")
	}
	defer closeOracle()

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		RawStore:   stores.Raw,
		EventStore: stores.Events,
		Runner:     runner,
	})

	failed := false
	for _, wallet := range cfg.WalletAddresses() {
		report, err := verifier.VerifyWallet(ctx, wallet, m)
		if err != nil {
			log.WithError(err).Error("Verification failed")
			failed = true
			continue
		}
		printReport(report, *verbose)
		if !report.OK() {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}

func printReport(r *verification.Report, verbose bool) {
	status := "OK"
	if !r.OK() {
		status = "DIVERGENT"
	}
	fmt.Printf("%s %s: %s (%d matched, %d divergent, %d missing, %d unexpected)\n",
		r.Wallet, r.Method, status, r.Matched, r.Divergent, len(r.Missing), len(r.Unexpected))

	if !verbose {
		return
	}
	for _, res := range r.Results {
		for _, d := range res.Divergences {
			fmt.Printf("  %s %s: stored=%v replayed=%v\n", res.TxHash, d.Field, d.Expected, d.Actual)
		}
	}
	for _, h := range r.Missing {
		fmt.Printf("  %s: missing from replay\n", h)
	}
	for _, h := range r.Unexpected {
		fmt.Printf("  %s: not stored\n", h)
	}
}
