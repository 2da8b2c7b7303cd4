// Package resolver upgrades placeholder tickets to their canonical request id
// by polling the backend for the record matching an entry deploy hash.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/drawsync/internal/api"
	"github.com/rickgao/drawsync/internal/metrics"
	"github.com/rickgao/drawsync/internal/model"
)

// Fetcher looks up a play by its entry deploy hash.
type Fetcher interface {
	GetPlayByDeployHash(ctx context.Context, deployHash string) (*api.Play, error)
}

// Config holds resolver configuration.
type Config struct {
	MaxAttempts int
	Interval    time.Duration
	TicketCost  decimal.Decimal
}

// DefaultConfig returns the standard 15 attempts at 2s intervals.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 15,
		Interval:    2 * time.Second,
		TicketCost:  decimal.NewFromInt(50),
	}
}

// Result is the backend's view of a resolved ticket.
type Result struct {
	DeployHash string
	RequestID  string
	Entry      model.Entry // backend record converted, keyed by RequestID
}

// Patch upgrades a placeholder entry with the resolved identifiers. The
// awaiting flag is kept unless the backend already reports a terminal status.
func (r *Result) Patch(e model.Entry) model.Entry {
	resolved := r.Entry

	e.RequestID = r.RequestID
	e.IsPlaceholder = false
	if resolved.PlayID != "" {
		e.PlayID = resolved.PlayID
	}
	if resolved.RoundID > 0 {
		e.RoundID = resolved.RoundID
	}
	if resolved.Status.IsTerminal() {
		e.Status = resolved.Status
		e.PrizeAmount = resolved.PrizeAmount
		e.SettledDate = resolved.SettledDate
		e.AwaitingFulfillment = false
	}
	if e.Tx.Entry == "" {
		e.Tx.Entry = r.DeployHash
	}
	if e.Tx.Settle == "" {
		e.Tx.Settle = resolved.Tx.Settle
	}
	return e.Normalize()
}

// Resolver polls the backend until a deploy hash is indexed.
type Resolver struct {
	cfg     Config
	fetch   Fetcher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Resolver.
func New(cfg Config, fetch Fetcher, m *metrics.Metrics, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	return &Resolver{
		cfg:     cfg,
		fetch:   fetch,
		logger:  logger.With("component", "resolver"),
		metrics: m,
	}
}

// Resolve returns the backend record for deployHash, or nil when the record
// never appears within the attempt bound, the backend answers with a
// non-404 error, or ctx is cancelled. Failure is never an error: the caller
// keeps its placeholder.
func (r *Resolver) Resolve(ctx context.Context, deployHash string) *Result {
	log := r.logger.With("deploy_hash", deployHash)

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		r.metrics.ResolveAttempt()

		play, err := r.fetch.GetPlayByDeployHash(ctx, deployHash)
		switch {
		case err == nil && play.RequestID != "":
			entry := play.ToEntry(r.cfg.TicketCost, log)
			log.Info("deploy hash resolved",
				"request_id", entry.RequestID,
				"play_id", entry.PlayID,
				"status", entry.Status,
				"attempt", attempt,
			)
			r.metrics.ResolveOutcome("resolved")
			return &Result{DeployHash: deployHash, RequestID: entry.RequestID, Entry: entry}

		case err == nil:
			log.Debug("play indexed without request id", "attempt", attempt)

		case api.IsNotFound(err):
			log.Debug("play not indexed yet", "attempt", attempt, "max_attempts", r.cfg.MaxAttempts)

		case ctx.Err() != nil:
			r.metrics.ResolveOutcome("cancelled")
			return nil

		case isAPIError(err):
			log.Warn("resolution aborted", "attempt", attempt, "error", err)
			r.metrics.ResolveOutcome("aborted")
			return nil

		default:
			// Transport failure, retried within the bound.
			log.Warn("resolution request failed", "attempt", attempt, "error", err)
		}

		if attempt == r.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			r.metrics.ResolveOutcome("cancelled")
			return nil
		case <-time.After(r.cfg.Interval):
		}
	}

	log.Warn("deploy hash not resolved", "max_attempts", r.cfg.MaxAttempts)
	r.metrics.ResolveOutcome("exhausted")
	return nil
}

func isAPIError(err error) bool {
	var apiErr *api.APIError
	return errors.As(err, &apiErr)
}
