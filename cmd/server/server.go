package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"eth-tax-ledger/internal/config"
	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/explorer"
	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/observability"
	"eth-tax-ledger/internal/pipeline"
	"eth-tax-ledger/internal/storage"
)

// Server runs scheduled reconciliation and answers queries over the
// persisted events.
type Server struct {
	wallets  []common.Address
	interval time.Duration
	source   explorer.Source
	events   storage.EventStore
	runner   *pipeline.Runner
	log      *logger.Entry

	// State
	mu      sync.Mutex
	running bool
	lastRun time.Time
	runs    int
	runErrs int
	started time.Time
}

// NewServer creates a Server for the configured wallets. A non-positive
// interval means hourly.
func NewServer(cfg *config.Config, source explorer.Source, events storage.EventStore, runner *pipeline.Runner) *Server {
	interval := cfg.Server.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Server{
		wallets:  cfg.WalletAddresses(),
		interval: interval,
		source:   source,
		events:   events,
		runner:   runner,
		log:      logger.Get().WithComponent("server"),
		started:  time.Now().UTC(),
	}
}

// Run processes all wallets immediately and then on every tick until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	s.log.WithField("interval", s.interval.String()).Info("Starting scheduler")

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce processes every wallet sequentially. A run still in progress
// when the next tick fires makes that tick a no-op.
func (s *Server) runOnce(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Info("Run already in progress, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	start := time.Now()
	failures := 0
	for _, wallet := range s.wallets {
		if ctx.Err() != nil {
			break
		}
		if err := s.runWallet(ctx, wallet); err != nil {
			failures++
			s.log.WithError(err).WithField("wallet", storage.WalletKey(wallet)).Error("Wallet run failed")
		}
	}

	status := "success"
	if failures > 0 {
		status = "error"
	}
	observability.RecordPipelineRun("scheduled", status, time.Since(start).Seconds())

	s.mu.Lock()
	s.running = false
	s.lastRun = time.Now().UTC()
	s.runs++
	s.runErrs += failures
	s.mu.Unlock()
}

func (s *Server) runWallet(ctx context.Context, wallet common.Address) error {
	set, err := s.source.Fetch(ctx, wallet)
	if err != nil {
		return err
	}
	_, err = s.runner.Run(ctx, wallet, set)
	return err
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/events", s.handleEvents)

	return mux
}

// StatusResponse is the JSON body of /status.
type StatusResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	Wallets   int       `json:"wallets"`
	Method    string    `json:"method"`
	LastRun   time.Time `json:"last_run"`
	Runs      int       `json:"runs"`
	RunErrors int       `json:"run_errors"`
	Running   bool      `json:"running"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Wallets:   len(s.wallets),
		Method:    string(s.runner.Method()),
		LastRun:   s.lastRun,
		Runs:      s.runs,
		RunErrors: s.runErrs,
		Running:   s.running,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// EventResponse is one event of /events.
type EventResponse struct {
	Seq         int               `json:"seq"`
	TxHash      string            `json:"tx_hash"`
	BlockNumber uint64            `json:"block_number"`
	Timestamp   time.Time         `json:"timestamp"`
	Category    string            `json:"category"`
	Rule        string            `json:"rule"`
	Fields      map[string]string `json:"fields"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	walletParam := strings.TrimSpace(q.Get("wallet"))
	if !common.IsHexAddress(walletParam) {
		writeError(w, http.StatusBadRequest, "wallet must be a hex address")
		return
	}
	wallet := common.HexToAddress(walletParam)

	method := s.runner.Method()
	if m := q.Get("method"); m != "" {
		method = domain.AccountingMethod(strings.ToUpper(m))
		if !method.IsValid() {
			writeError(w, http.StatusBadRequest, "method must be FIFO, LIFO or WAC")
			return
		}
	}

	if hash := q.Get("hash"); hash != "" {
		ev, err := s.events.GetByHash(r.Context(), wallet, method, hash)
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		if err != nil {
			s.log.WithError(err).Error("Load event failed")
			writeError(w, http.StatusInternalServerError, "load event failed")
			return
		}
		writeJSON(w, http.StatusOK, toResponse(ev))
		return
	}

	events, err := s.events.GetByWallet(r.Context(), wallet, method)
	if err != nil {
		s.log.WithError(err).Error("Load events failed")
		writeError(w, http.StatusInternalServerError, "load events failed")
		return
	}
	resp := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, toResponse(ev))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toResponse(ev *domain.EventSnapshot) EventResponse {
	return EventResponse{
		Seq:         ev.Seq,
		TxHash:      ev.TxHash,
		BlockNumber: ev.BlockNumber,
		Timestamp:   ev.Timestamp,
		Category:    string(ev.Category),
		Rule:        ev.Rule,
		Fields:      ev.Fields,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
