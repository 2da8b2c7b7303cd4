package poller

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/drawsync/internal/api"
	"github.com/rickgao/drawsync/internal/metrics"
	"github.com/rickgao/drawsync/internal/model"
)

// PlaysFetcher lists an account's plays.
type PlaysFetcher interface {
	GetPlayerPlays(ctx context.Context, account, status string) ([]api.Play, error)
}

// SettlementConfig holds settlement polling configuration.
type SettlementConfig struct {
	MaxAttempts int           // default 20
	MinBackoff  time.Duration // delay before the first fetch (default 3s)
	MaxBackoff  time.Duration // delay ceiling (default 6s)
	BackoffStep time.Duration // added per attempt (default 500ms)
	Timeout     time.Duration // per-request timeout
	TicketCost  decimal.Decimal
}

// DefaultSettlementConfig returns sensible defaults.
func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		MaxAttempts: 20,
		MinBackoff:  3 * time.Second,
		MaxBackoff:  6 * time.Second,
		BackoffStep: 500 * time.Millisecond,
		Timeout:     10 * time.Second,
		TicketCost:  decimal.NewFromInt(50),
	}
}

// Backoff returns the delay before the given 1-based attempt.
func (c SettlementConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.MinBackoff + time.Duration(attempt-1)*c.BackoffStep
	if d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	return d
}

// SettlementResult is reported once per poll, when the ticket settles or
// when the attempt bound is exhausted.
type SettlementResult struct {
	RequestID string
	Attempts  int  // fetches made, including the final one
	Settled   bool // the ticket reached a terminal status
	Exhausted bool // the bound ran out; Snapshot is the final fetch
	Found     bool
	Entry     model.Entry   // the ticket, when Found
	Snapshot  []model.Entry // the full play list from the last fetch
}

// Settler polls the play list until a ticket leaves pending. At most one
// poll per request id runs at a time.
type Settler struct {
	cfg     SettlementConfig
	client  PlaysFetcher
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewSettler creates a Settler.
func NewSettler(cfg SettlementConfig, client PlaysFetcher, m *metrics.Metrics, logger *slog.Logger) *Settler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	return &Settler{
		cfg:      cfg,
		client:   client,
		logger:   logger.With("component", "settlement"),
		metrics:  m,
		inFlight: make(map[string]struct{}),
	}
}

// InFlight reports whether a poll for requestID is running.
func (s *Settler) InFlight(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[requestID]
	return ok
}

func (s *Settler) acquire(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[requestID]; ok {
		return false
	}
	s.inFlight[requestID] = struct{}{}
	return true
}

func (s *Settler) releaseID(requestID string) {
	s.mu.Lock()
	delete(s.inFlight, requestID)
	s.mu.Unlock()
}

// Poll blocks until requestID settles, the bound is exhausted, or ctx ends.
// handle is called at most once with the outcome; it is not called when ctx
// ends first or the final fetch fails. Returns false without polling when a
// poll for requestID is already running.
func (s *Settler) Poll(ctx context.Context, account, requestID string, handle func(SettlementResult)) bool {
	if !s.acquire(requestID) {
		s.logger.Debug("settlement poll already running", "request_id", requestID)
		return false
	}
	defer s.releaseID(requestID)

	log := s.logger.With("request_id", requestID)
	log.Info("settlement polling started", "max_attempts", s.cfg.MaxAttempts)

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			s.metrics.SettlementOutcome("cancelled")
			return true
		case <-time.After(s.cfg.Backoff(attempt)):
		}

		snapshot, err := s.fetch(ctx, account, log)
		if err != nil {
			if ctx.Err() != nil {
				s.metrics.SettlementOutcome("cancelled")
				return true
			}
			log.Warn("settlement poll failed", "attempt", attempt, "error", err)
			s.metrics.BackgroundError("settlement")
			continue
		}

		entry, found := findEntry(snapshot, requestID)
		if found && entry.Status.IsTerminal() {
			log.Info("ticket settled", "status", entry.Status, "attempt", attempt)
			s.metrics.SettlementOutcome("settled")
			if handle != nil {
				handle(SettlementResult{
					RequestID: requestID,
					Attempts:  attempt,
					Settled:   true,
					Found:     true,
					Entry:     entry,
					Snapshot:  snapshot,
				})
			}
			return true
		}

		log.Debug("ticket still pending", "attempt", attempt, "found", found)
	}

	// One last unconditional fetch so the caller can merge whatever the
	// backend knows; the ticket stays pending from the caller's view.
	snapshot, err := s.fetch(ctx, account, log)
	if err != nil {
		log.Warn("final settlement fetch failed", "error", err)
		s.metrics.BackgroundError("settlement")
		s.metrics.SettlementOutcome("exhausted")
		return true
	}

	entry, found := findEntry(snapshot, requestID)
	log.Warn("settlement polling exhausted",
		"attempts", s.cfg.MaxAttempts,
		"status", entry.Status,
	)
	s.metrics.SettlementOutcome("exhausted")

	if handle != nil {
		handle(SettlementResult{
			RequestID: requestID,
			Attempts:  s.cfg.MaxAttempts + 1,
			Settled:   found && entry.Status.IsTerminal(),
			Exhausted: true,
			Found:     found,
			Entry:     entry,
			Snapshot:  snapshot,
		})
	}
	return true
}

func (s *Settler) fetch(ctx context.Context, account string, log *slog.Logger) ([]model.Entry, error) {
	s.metrics.SettlementAttempt()

	reqCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	plays, err := s.client.GetPlayerPlays(reqCtx, account, "")
	if err != nil {
		return nil, err
	}
	return ConvertPlays(plays, s.cfg.TicketCost, log), nil
}

// ConvertPlays converts backend plays to entries, skipping records without
// a request id.
func ConvertPlays(plays []api.Play, ticketCost decimal.Decimal, logger *slog.Logger) []model.Entry {
	entries := make([]model.Entry, 0, len(plays))
	for _, p := range plays {
		if p.RequestID == "" {
			if logger != nil {
				logger.Warn("skipping play without request id", "entry_deploy_hash", p.EntryDeployHash)
			}
			continue
		}
		entries = append(entries, p.ToEntry(ticketCost, logger))
	}
	return entries
}

func findEntry(entries []model.Entry, requestID string) (model.Entry, bool) {
	for _, e := range entries {
		if strings.EqualFold(e.RequestID, requestID) {
			return e, true
		}
	}
	return model.Entry{}, false
}
