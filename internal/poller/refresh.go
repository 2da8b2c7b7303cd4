package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/drawsync/internal/api"
	"github.com/rickgao/drawsync/internal/metrics"
	"github.com/rickgao/drawsync/internal/model"
)

// Source provides the backend reads used by a refresh.
type Source interface {
	PlaysFetcher
	GetCurrentLottery(ctx context.Context) (*api.LotteryCurrent, error)
}

// Snapshot is the result of one refresh. A failed half leaves its field nil
// and sets the matching error.
type Snapshot struct {
	Round     *model.Round
	Entries   []model.Entry
	RoundErr  error
	PlaysErr  error
	FetchedAt time.Time
	Duration  time.Duration
}

// SnapshotHandler receives refresh snapshots.
type SnapshotHandler interface {
	HandleSnapshot(s Snapshot)
}

// SnapshotHandlerFunc is a function adapter for SnapshotHandler.
type SnapshotHandlerFunc func(Snapshot)

func (f SnapshotHandlerFunc) HandleSnapshot(s Snapshot) {
	f(s)
}

// RefreshConfig holds refresh loop configuration.
type RefreshConfig struct {
	Interval   time.Duration // default 30s
	Timeout    time.Duration // per-request timeout (default 10s)
	TicketCost decimal.Decimal
}

// DefaultRefreshConfig returns sensible defaults.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval:   30 * time.Second,
		Timeout:    10 * time.Second,
		TicketCost: decimal.NewFromInt(50),
	}
}

// Refresher periodically fetches the round and the account's plays.
type Refresher struct {
	cfg     RefreshConfig
	source  Source
	account string
	handler SnapshotHandler
	logger  *slog.Logger
	metrics *metrics.Metrics

	trigger chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a Refresher for account.
func NewRefresher(cfg RefreshConfig, source Source, account string, handler SnapshotHandler, m *metrics.Metrics, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		cfg:     cfg,
		source:  source,
		account: account,
		handler: handler,
		logger:  logger.With("component", "refresh"),
		metrics: m,
		trigger: make(chan struct{}, 1),
	}
}

// Start begins the refresh loop. The first refresh runs immediately.
func (r *Refresher) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("refresh loop started", "interval", r.cfg.Interval)

	return nil
}

// Stop gracefully shuts down the loop.
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("refresh loop stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests an immediate refresh. Coalesces with a pending trigger.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Refresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.refresh()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.refresh()
		case <-r.trigger:
			r.refresh()
		}
	}
}

func (r *Refresher) refresh() {
	snap := r.Fetch(r.ctx)
	if r.ctx.Err() != nil {
		return
	}
	if r.handler != nil {
		r.handler.HandleSnapshot(snap)
	}
}

// Fetch reads the round and the play list concurrently. Failures are
// logged and reported in the snapshot, never returned.
func (r *Refresher) Fetch(ctx context.Context) Snapshot {
	start := time.Now()
	snap := Snapshot{FetchedAt: start.UTC()}

	var g errgroup.Group

	g.Go(func() error {
		reqCtx, cancel := r.requestContext(ctx)
		defer cancel()

		lc, err := r.source.GetCurrentLottery(reqCtx)
		if err != nil {
			snap.RoundErr = err
			return nil
		}
		round := lc.ToRound(start, r.logger)
		snap.Round = &round
		return nil
	})

	g.Go(func() error {
		reqCtx, cancel := r.requestContext(ctx)
		defer cancel()

		plays, err := r.source.GetPlayerPlays(reqCtx, r.account, "")
		if err != nil {
			snap.PlaysErr = err
			return nil
		}
		snap.Entries = ConvertPlays(plays, r.cfg.TicketCost, r.logger)
		return nil
	})

	g.Wait()

	snap.Duration = time.Since(start)
	r.metrics.ObserveRefresh(snap.Duration)

	if snap.RoundErr != nil {
		r.logger.Warn("round refresh failed", "error", snap.RoundErr)
		r.metrics.BackgroundError("refresh_round")
	}
	if snap.PlaysErr != nil {
		r.logger.Warn("plays refresh failed", "error", snap.PlaysErr)
		r.metrics.BackgroundError("refresh_plays")
	}

	r.logger.Debug("refresh complete",
		"entries", len(snap.Entries),
		"duration", snap.Duration,
	)

	return snap
}

func (r *Refresher) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, r.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}
