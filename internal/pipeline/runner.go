// Package pipeline runs one wallet's raw records through normalization,
// reconciliation, classification and the sequential accounting pass.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"eth-tax-ledger/internal/classify"
	"eth-tax-ledger/internal/costbasis"
	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/ledger"
	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/normalization"
	"eth-tax-ledger/internal/observability"
	"eth-tax-ledger/internal/price"
	"eth-tax-ledger/internal/reconcile"
	"eth-tax-ledger/internal/reporting"
	"eth-tax-ledger/internal/storage"
)

// ErrNotConfigured is returned when a mandatory option is missing.
var ErrNotConfigured = errors.New("pipeline not configured")

// Options configures a Runner. EventStore and ReportStore are optional;
// without them a run is not persisted.
type Options struct {
	Normalizer *normalization.Normalizer
	Classifier *classify.Classifier
	Method     costbasis.Method

	NativeSymbol         string
	Epsilon              decimal.Decimal
	FiscalYearStartMonth time.Month
	LongTermAfter        time.Duration

	Oracle              price.Oracle
	Pairs               *price.PairBook
	PrefetchConcurrency int

	EventStore  storage.EventStore
	ReportStore storage.ReportRowStore

	Logger *logger.Log
}

// Runner processes record sets. It holds no per-wallet state, so one
// Runner can serve many wallets sequentially.
type Runner struct {
	opts Options
	log  *logger.Entry
}

// RunResult is the outcome of one Run.
type RunResult struct {
	RunID       uuid.UUID
	Wallet      common.Address
	Method      domain.AccountingMethod
	StartedAt   time.Time
	CompletedAt time.Time

	Events     []*domain.CanonicalEvent
	Dropped    []domain.DroppedRecord
	Duplicates int
	Balances   []ledger.Balance
	Totals     ledger.Totals

	CategoryCounts map[domain.Category]int
	IssueCounts    map[domain.IssueKind]int
	PriceFailures  int

	// Errors lists record-level problems in human readable form.
	Errors []string
}

// New creates a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Normalizer == nil || opts.Classifier == nil || opts.Method == nil {
		return nil, fmt.Errorf("%w: normalizer, classifier and method are required", ErrNotConfigured)
	}
	if opts.NativeSymbol == "" {
		return nil, fmt.Errorf("%w: native symbol is required", ErrNotConfigured)
	}
	if opts.Pairs == nil {
		opts.Pairs = price.NewPairBook(opts.NativeSymbol, "", nil)
	}
	if opts.PrefetchConcurrency <= 0 {
		opts.PrefetchConcurrency = price.DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	return &Runner{
		opts: opts,
		log:  opts.Logger.WithComponent("pipeline"),
	}, nil
}

// WithMethod returns a Runner sharing every option except the accounting method.
func (r *Runner) WithMethod(m costbasis.Method) *Runner {
	opts := r.opts
	opts.Method = m
	return &Runner{opts: opts, log: r.log}
}

// WithoutPersistence returns a Runner that never writes to the stores.
func (r *Runner) WithoutPersistence() *Runner {
	opts := r.opts
	opts.EventStore = nil
	opts.ReportStore = nil
	return &Runner{opts: opts, log: r.log}
}

// Method returns the accounting method of r.
func (r *Runner) Method() domain.AccountingMethod {
	return r.opts.Method.ID()
}

// Run processes set for wallet. Per-record and per-event problems are
// reported in the result; only cancellation, an ordering violation and
// storage failures return an error.
func (r *Runner) Run(ctx context.Context, wallet common.Address, set *domain.RecordSet) (*RunResult, error) {
	if set == nil {
		set = &domain.RecordSet{}
	}

	res := &RunResult{
		RunID:          uuid.New(),
		Wallet:         wallet,
		Method:         r.opts.Method.ID(),
		StartedAt:      time.Now().UTC(),
		CategoryCounts: make(map[domain.Category]int),
		IssueCounts:    make(map[domain.IssueKind]int),
	}
	log := r.log.WithFields(logger.Fields{
		"run_id": res.RunID.String(),
		"wallet": storage.WalletKey(wallet),
		"method": string(res.Method),
	})
	log.WithField("records", set.Len()).Info("Starting run")

	err := r.run(ctx, wallet, set, res, log)
	status := "success"
	if err != nil {
		status = "error"
	}
	res.CompletedAt = time.Now().UTC()
	observability.RecordPipelineRun("run", status, res.CompletedAt.Sub(res.StartedAt).Seconds())
	if err != nil {
		return nil, err
	}

	logger.LogDuration(log, "run", res.StartedAt, logger.Fields{
		"events":  len(res.Events),
		"dropped": len(res.Dropped),
		"issues":  countIssues(res.IssueCounts),
	})
	return res, nil
}

func (r *Runner) run(ctx context.Context, wallet common.Address, set *domain.RecordSet, res *RunResult, log *logger.Entry) error {
	// 1. Normalize
	phase := time.Now()
	records, dropped := r.opts.Normalizer.NormalizeSet(set)
	res.Dropped = dropped
	for _, kind := range []domain.RecordKind{domain.KindNative, domain.KindToken, domain.KindInternal} {
		observability.RecordNormalized(kind.String(), len(set.Stream(kind)))
	}
	for _, d := range dropped {
		observability.RecordDropped(d.Kind.String())
		msg := fmt.Sprintf("%s[%d] %s: %s", d.Kind, d.StreamIndex, d.TxHash, d.Reason)
		res.Errors = append(res.Errors, msg)
		log.WithFields(logger.Fields{
			"kind":  d.Kind.String(),
			"index": d.StreamIndex,
			"hash":  d.TxHash,
		}).Warn("Dropped record: " + d.Reason)
	}
	observability.RecordPipelineRun("normalize", "success", time.Since(phase).Seconds())

	// 2. Merge
	phase = time.Now()
	merged := reconcile.Merge(wallet, records)
	res.Duplicates = merged.Duplicates
	observability.RecordDuplicates(merged.Duplicates)
	if err := reconcile.ValidateOrdering(merged.Events); err != nil {
		observability.RecordPipelineRun("merge", "error", time.Since(phase).Seconds())
		return fmt.Errorf("merge wallet %s: %w", storage.WalletKey(wallet), err)
	}
	observability.RecordPipelineRun("merge", "success", time.Since(phase).Seconds())

	// 3. Classify and resolve
	phase = time.Now()
	for _, ev := range merged.Events {
		r.opts.Classifier.Classify(ev, merged.Legs(ev.TxHash))
	}
	observability.RecordPipelineRun("classify", "success", time.Since(phase).Seconds())

	// 4. Prefetch prices
	table := price.NewTable()
	if r.opts.Oracle != nil {
		phase = time.Now()
		var err error
		table, err = price.Prefetch(ctx, r.opts.Oracle, r.priceRequests(merged.Events), r.opts.PrefetchConcurrency)
		if err != nil {
			observability.RecordPipelineRun("prefetch", "error", time.Since(phase).Seconds())
			return err
		}
		res.PriceFailures = table.Failures()
		observability.RecordPipelineRun("prefetch", "success", time.Since(phase).Seconds())
		log.WithFields(logger.Fields{
			"prices":   table.Len(),
			"failures": table.Failures(),
		}).Debug("Prefetched prices")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// 5. Apply in order
	phase = time.Now()
	book := ledger.New(r.opts.NativeSymbol, r.opts.Epsilon)
	engine := costbasis.NewEngine(r.opts.Method, r.opts.LongTermAfter)
	for _, ev := range merged.Events {
		book.Apply(ev)
		r.value(ev, table)
		engine.Apply(ev)
		ev.FiscalYear = domain.FiscalYear(ev.Timestamp, r.opts.FiscalYearStartMonth)

		res.CategoryCounts[ev.Category]++
		observability.RecordEventClassified(string(ev.Category))
		for _, issue := range ev.Issues {
			res.IssueCounts[issue.Kind]++
			observability.RecordIssue(string(issue.Kind))
			log.WithFields(logger.Fields{
				"hash":     ev.TxHash,
				"category": string(ev.Category),
				"issue":    string(issue.Kind),
			}).Warn(issue.String())
		}
	}
	res.Events = merged.Events
	res.Balances = book.Balances()
	res.Totals = book.Totals()
	observability.RecordPipelineRun("apply", "success", time.Since(phase).Seconds())

	// 6. Persist
	return r.persist(ctx, wallet, res)
}

func (r *Runner) persist(ctx context.Context, wallet common.Address, res *RunResult) error {
	if r.opts.EventStore == nil && r.opts.ReportStore == nil {
		return nil
	}
	phase := time.Now()

	if r.opts.EventStore != nil {
		snapshots := make([]*domain.EventSnapshot, len(res.Events))
		for i, ev := range res.Events {
			snapshots[i] = ev.Snapshot(i)
		}
		if err := r.opts.EventStore.ReplaceByWallet(ctx, wallet, res.Method, snapshots); err != nil {
			observability.RecordPipelineRun("persist", "error", time.Since(phase).Seconds())
			return fmt.Errorf("persist events: %w", err)
		}
	}

	if r.opts.ReportStore != nil {
		rows := reporting.BuildTaxRows(res.Events, res.Method)
		if err := r.opts.ReportStore.InsertBulk(ctx, rows); err != nil {
			observability.RecordPipelineRun("persist", "error", time.Since(phase).Seconds())
			return fmt.Errorf("persist report rows: %w", err)
		}
	}

	observability.RecordPipelineRun("persist", "success", time.Since(phase).Seconds())
	return nil
}

func countIssues(counts map[domain.IssueKind]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}
