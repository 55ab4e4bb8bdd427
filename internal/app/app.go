// Package app wires configuration, logging, storage and the pipeline for
// the command binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"eth-tax-ledger/internal/config"
	"eth-tax-ledger/internal/explorer"
	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/pipeline"
	"eth-tax-ledger/internal/price"
	"eth-tax-ledger/internal/reporting"
	"eth-tax-ledger/internal/storage"
	chstore "eth-tax-ledger/internal/storage/clickhouse"
	"eth-tax-ledger/internal/storage/memory"
	"eth-tax-ledger/internal/storage/migrations"
	pgstore "eth-tax-ledger/internal/storage/postgres"
)

// Stores holds the storage implementations selected by configuration.
type Stores struct {
	Raw     storage.RawRecordStore
	Events  storage.EventStore
	Reports storage.ReportRowStore

	// Persistent reports whether Raw and Events are backed by Postgres.
	Persistent bool
}

// Bootstrap loads .env if present, reads the configuration file and
// configures the global logger from it.
func Bootstrap(configPath string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	l := cfg.Logging
	if err := logger.Get().Configure(l.Level, l.Format, l.Output, l.MaxAge); err != nil {
		return nil, fmt.Errorf("configure logger: %w", err)
	}
	return cfg, nil
}

// OpenStores connects the configured databases and applies migrations.
// Postgres backs raw records and events, ClickHouse backs report rows.
// A missing DSN, or useMemory, selects in-memory stores for that side.
func OpenStores(ctx context.Context, cfg *config.Config, useMemory bool) (*Stores, func(), error) {
	stores := &Stores{
		Raw:     memory.NewRawRecordStore(),
		Events:  memory.NewEventStore(),
		Reports: memory.NewReportRowStore(),
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if useMemory {
		return stores, cleanup, nil
	}

	log := logger.Get().WithComponent("app")

	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		stores.Raw = pgstore.NewRawRecordStore(pool)
		stores.Events = pgstore.NewEventStore(pool)
		stores.Persistent = true
		log.Info("Using postgres for raw records and events")
	}

	if dsn := cfg.Storage.ClickhouseDSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		stores.Reports = chstore.NewReportRowStore(conn)
		log.Info("Using clickhouse for report rows")
	}

	return stores, cleanup, nil
}

// NewRunner builds the pricing chain and the pipeline runner. The returned
// close func releases the shared price cache.
func NewRunner(ctx context.Context, cfg *config.Config, stores pipeline.Stores) (*pipeline.Runner, func() error, error) {
	oracle, closeOracle, err := price.FromConfig(ctx, cfg.Pricing)
	if err != nil {
		return nil, nil, fmt.Errorf("build price oracle: %w", err)
	}
	runner, err := pipeline.FromConfig(cfg, oracle, stores)
	if err != nil {
		closeOracle()
		return nil, nil, err
	}
	return runner, closeOracle, nil
}

// NewExplorerClient creates the explorer client described by cfg.
func NewExplorerClient(cfg config.ExplorerConfig) *explorer.Client {
	return explorer.NewClient(cfg.BaseURL,
		explorer.WithAPIKey(cfg.APIKey),
		explorer.WithChainID(cfg.ChainID),
		explorer.WithPageSize(cfg.PageSize),
		explorer.WithRequestsPerSecond(cfg.RequestsPerSecond),
		explorer.WithTimeout(cfg.Timeout),
		explorer.WithMaxRetries(cfg.MaxRetries),
	)
}

// Source kinds accepted by SelectSource.
const (
	SourceFiles    = "files"
	SourceStore    = "store"
	SourceExplorer = "explorer"
)

// SelectSource returns the raw record source named by kind.
func SelectSource(kind string, cfg *config.Config, stores *Stores) (explorer.Source, error) {
	switch strings.ToLower(kind) {
	case SourceFiles:
		return &explorer.FileSource{Dir: cfg.Explorer.DataDir}, nil
	case SourceStore:
		return &explorer.StoreSource{Store: stores.Raw}, nil
	case SourceExplorer:
		return &explorer.ClientSource{Client: NewExplorerClient(cfg.Explorer)}, nil
	default:
		return nil, fmt.Errorf("unknown source %q (want %s, %s or %s)", kind, SourceFiles, SourceStore, SourceExplorer)
	}
}

// SummaryInput converts a run result into the input of reporting.Summarize.
func SummaryInput(res *pipeline.RunResult) reporting.SummaryInput {
	balances := make([]reporting.BalanceRow, 0, len(res.Balances))
	for _, b := range res.Balances {
		balances = append(balances, reporting.BalanceRow{Asset: b.Asset, Quantity: b.Amount})
	}
	return reporting.SummaryInput{
		Wallet:          storage.WalletKey(res.Wallet),
		Method:          res.Method,
		Rows:            reporting.BuildTaxRows(res.Events, res.Method),
		Balances:        balances,
		DroppedRecords:  len(res.Dropped),
		Duplicates:      res.Duplicates,
		IntegrityErrors: res.Errors,
		GeneratedAt:     res.CompletedAt,
	}
}

// OutputPath returns <dir>/<wallet>_<name>.
func OutputPath(dir, wallet, name string) string {
	return filepath.Join(dir, wallet+"_"+name)
}
