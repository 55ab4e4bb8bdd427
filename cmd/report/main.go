// Command report runs the reconciliation and cost-basis pipeline once for
// every configured wallet and writes the tax report, the full-fidelity
// event export and a markdown summary.
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
	"eth-tax-ledger/internal/costbasis"
	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/observability"
	"eth-tax-ledger/internal/pipeline"
	"eth-tax-ledger/internal/reporting"
	"eth-tax-ledger/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	source := flag.String("source", app.SourceFiles, "Raw record source: files, store or explorer")
	method := flag.String("method", "", "Accounting method: FIFO, LIFO, WAC or all (default accounting.method)")
	outputDir := flag.String("output-dir", "", "Output directory (default output.dir)")
	persist := flag.Bool("persist", false, "Persist events and report rows to the configured databases")
	flag.Parse()

	cfg, err := app.Bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	log := logger.Get().WithComponent("report")

	methods, err := selectMethods(*method, cfg.Accounting.Method)
	if err != nil {
		log.WithError(err).Fatal("Invalid method")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := app.OpenStores(ctx, cfg, !*persist && *source != app.SourceStore)
	if err != nil {
		log.WithError(err).Fatal("Failed to open stores")
	}
	defer cleanup()

	src, err := app.SelectSource(*source, cfg, stores)
	if err != nil {
		log.WithError(err).Fatal("Invalid source")
	}

	var runStores pipeline.Stores
	if *persist {
		runStores = pipeline.Stores{Events: stores.Events, Reports: stores.Reports}
	}
	runner, closeOracle, err := app.NewRunner(ctx, cfg, runStores)
	if err != nil {
		log.WithError(err).Fatal("Failed to build pipeline")
	}
	defer closeOracle()

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		log.WithError(err).Fatal("Failed to create output directory")
	}

	failed := 0
	for _, wallet := range cfg.WalletAddresses() {
		wlog := log.WithField("wallet", storage.WalletKey(wallet))

		set, err := src.Fetch(ctx, wallet)
		if err != nil {
			wlog.WithError(err).Error("Load records failed")
			failed++
			continue
		}

		for _, m := range methods {
			res, err := runner.WithMethod(m).Run(ctx, wallet, set)
			if err != nil {
				wlog.WithError(err).Error("Run failed")
				failed++
				continue
			}
			files, err := writeOutputs(cfg.Output.Dir, res, len(methods) > 1)
			if err != nil {
				wlog.WithError(err).Error("Write report failed")
				failed++
				continue
			}
			observability.RecordReportGenerated()
			for _, f := range files {
				fmt.Println(f)
			}
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func selectMethods(flagValue, configured string) ([]costbasis.Method, error) {
	name := flagValue
	if name == "" {
		name = configured
	}
	if strings.EqualFold(name, "all") {
		return []costbasis.Method{costbasis.FIFO{}, costbasis.LIFO{}, costbasis.WAC{}}, nil
	}
	m, err := costbasis.FromName(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return []costbasis.Method{m}, nil
}

// writeOutputs writes the three files of one run. With several methods the
// method is part of the file names so runs do not overwrite each other.
func writeOutputs(dir string, res *pipeline.RunResult, withMethod bool) ([]string, error) {
	prefix := storage.WalletKey(res.Wallet)
	if withMethod {
		prefix += "_" + strings.ToLower(string(res.Method))
	}

	summary, err := reporting.Summarize(app.SummaryInput(res))
	if err != nil {
		return nil, err
	}

	taxPath := app.OutputPath(dir, prefix, "tax_report.csv")
	eventsPath := app.OutputPath(dir, prefix, "events.csv")
	summaryPath := app.OutputPath(dir, prefix, "summary.md")

	if err := writeFile(taxPath, func(f *os.File) error {
		return reporting.RenderTaxCSV(f, reporting.BuildTaxRows(res.Events, res.Method))
	}); err != nil {
		return nil, err
	}
	if err := writeFile(eventsPath, func(f *os.File) error {
		return reporting.RenderEventsCSV(f, res.Events)
	}); err != nil {
		return nil, err
	}
	if err := os.WriteFile(summaryPath, []byte(reporting.RenderMarkdown(summary)), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", summaryPath, err)
	}

	return []string{taxPath, eventsPath, summaryPath}, nil
}

func writeFile(path string, render func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
