package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"eth-tax-ledger/internal/costbasis"
	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/pipeline"
	"eth-tax-ledger/internal/storage"
)

// ErrNoStoredEvents is returned when a wallet has no persisted events for the method.
var ErrNoStoredEvents = errors.New("no stored events")

// ReplayVerifier implements Verifier by re-running the pipeline over the
// stored raw records.
type ReplayVerifier struct {
	raw    storage.RawRecordStore
	events storage.EventStore
	runner *pipeline.Runner
	log    *logger.Entry
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	RawStore   storage.RawRecordStore
	EventStore storage.EventStore
	Runner     *pipeline.Runner
}

// NewReplayVerifier creates a new ReplayVerifier. The runner is used
// without persistence so verification never rewrites what it checks.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		raw:    opts.RawStore,
		events: opts.EventStore,
		runner: opts.Runner.WithoutPersistence(),
		log:    logger.Get().WithComponent("verification"),
	}
}

var _ Verifier = (*ReplayVerifier)(nil)

// VerifyWallet replays wallet under method and compares every event.
func (v *ReplayVerifier) VerifyWallet(ctx context.Context, wallet common.Address, method domain.AccountingMethod) (*Report, error) {
	m, err := costbasis.FromName(string(method))
	if err != nil {
		return nil, err
	}

	// 1. Load stored events
	stored, err := v.events.GetByWallet(ctx, wallet, method)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("%w: wallet %s method %s", ErrNoStoredEvents, storage.WalletKey(wallet), method)
	}

	// 2. Replay from raw records
	set, err := v.raw.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("load raw records: %w", err)
	}
	res, err := v.runner.WithMethod(m).Run(ctx, wallet, set)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	replayed := make(map[string]*domain.EventSnapshot, len(res.Events))
	for i, ev := range res.Events {
		replayed[ev.TxHash] = ev.Snapshot(i)
	}

	// 3. Compare
	report := &Report{
		Wallet:  storage.WalletKey(wallet),
		Method:  method,
		Results: make([]EventResult, 0, len(stored)),
	}
	for _, s := range stored {
		r, ok := replayed[s.TxHash]
		if !ok {
			report.Missing = append(report.Missing, s.TxHash)
			continue
		}
		delete(replayed, s.TxHash)

		divergences := CompareSnapshots(s, r)
		report.Total++
		report.Results = append(report.Results, EventResult{
			TxHash:      s.TxHash,
			Match:       len(divergences) == 0,
			Divergences: divergences,
		})
		if len(divergences) == 0 {
			report.Matched++
		} else {
			report.Divergent++
		}
	}
	for _, ev := range res.Events {
		if _, left := replayed[ev.TxHash]; left {
			report.Unexpected = append(report.Unexpected, ev.TxHash)
		}
	}

	v.log.WithFields(logger.Fields{
		"wallet":     report.Wallet,
		"method":     string(method),
		"matched":    report.Matched,
		"divergent":  report.Divergent,
		"missing":    len(report.Missing),
		"unexpected": len(report.Unexpected),
	}).Info("Verified wallet")

	return report, nil
}
