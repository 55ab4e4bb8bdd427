package pipeline

import (
	"fmt"
	"time"

	"eth-tax-ledger/internal/classify"
	"eth-tax-ledger/internal/config"
	"eth-tax-ledger/internal/costbasis"
	"eth-tax-ledger/internal/normalization"
	"eth-tax-ledger/internal/price"
	"eth-tax-ledger/internal/storage"
)

// Stores groups the optional persistence targets of a Runner.
type Stores struct {
	Events  storage.EventStore
	Reports storage.ReportRowStore
}

// FromConfig builds a Runner from a validated configuration.
func FromConfig(cfg *config.Config, oracle price.Oracle, stores Stores) (*Runner, error) {
	rules, err := classify.DefaultRules(cfg)
	if err != nil {
		return nil, fmt.Errorf("build rules: %w", err)
	}

	method, err := costbasis.FromName(cfg.Accounting.Method)
	if err != nil {
		return nil, err
	}

	return New(Options{
		Normalizer:           normalization.NewNormalizer(cfg.Chain.NativeSymbol, cfg.Chain.NativeDecimals),
		Classifier:           classify.New(rules),
		Method:               method,
		NativeSymbol:         cfg.Chain.NativeSymbol,
		Epsilon:              cfg.Epsilon(),
		FiscalYearStartMonth: time.Month(cfg.Accounting.FiscalYearStartMonth),
		LongTermAfter:        cfg.Accounting.LongTermAfter,
		Oracle:               oracle,
		Pairs:                price.NewPairBook(cfg.Chain.NativeSymbol, cfg.Pricing.Quote, cfg.Pricing.Pairs),
		PrefetchConcurrency:  cfg.Pricing.PrefetchConcurrency,
		EventStore:           stores.Events,
		ReportStore:          stores.Reports,
	})
}
