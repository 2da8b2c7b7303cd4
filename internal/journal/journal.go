package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/drawsync/internal/outcome"
)

// Schema creates the journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS outcome_signals (
	id                 UUID PRIMARY KEY,
	account            TEXT NOT NULL,
	request_id         TEXT NOT NULL,
	play_id            TEXT,
	round_id           BIGINT NOT NULL,
	status             TEXT NOT NULL,
	win                BOOLEAN NOT NULL,
	prize_cspr         NUMERIC NOT NULL,
	settle_deploy_hash TEXT,
	signalled_at       TIMESTAMPTZ NOT NULL
)`

const insertSQL = `
	INSERT INTO outcome_signals
		(id, account, request_id, play_id, round_id, status, win, prize_cspr, settle_deploy_hash, signalled_at)
	VALUES ($1::uuid, $2, $3, NULLIF($4, ''), $5, $6, $7, $8::numeric, NULLIF($9, ''), $10)
	ON CONFLICT (id) DO NOTHING`

const maxRetainedBatches = 10

// DB is the subset of *pgxpool.Pool the journal uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds journal configuration.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// Stats counts journal activity.
type Stats struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// Journal buffers outcome signals and writes them in batches.
type Journal struct {
	cfg    Config
	db     DB
	logger *slog.Logger

	mu    sync.Mutex
	batch []outcome.Signal
	stats Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Journal writing to db.
func New(cfg Config, db DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Journal{
		cfg:    cfg,
		db:     db,
		logger: logger.With("component", "journal"),
		batch:  make([]outcome.Signal, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the journal table if needed.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create outcome_signals: %w", err)
	}
	return nil
}

// Name implements outcome.Sink.
func (j *Journal) Name() string {
	return "journal"
}

// Publish implements outcome.Sink. The signal is queued and written with
// the next batch; a full batch is written before Publish returns.
func (j *Journal) Publish(ctx context.Context, sig outcome.Signal) error {
	j.mu.Lock()
	j.batch = append(j.batch, sig)
	full := len(j.batch) >= j.cfg.BatchSize
	j.mu.Unlock()

	if full {
		return j.flush(ctx)
	}
	return nil
}

// Start begins the periodic flush loop.
func (j *Journal) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go j.flushLoop()

	j.logger.Info("journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Stop ends the flush loop and writes whatever is buffered.
func (j *Journal) Stop(ctx context.Context) error {
	if j.cancel != nil {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		j.logger.Warn("journal stop timed out")
	}

	if err := j.flush(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	j.logger.Info("journal stopped")
	return nil
}

// Stats returns current counters.
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// Pending returns the number of buffered signals.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.batch)
}

func (j *Journal) flushLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			if err := j.flush(j.ctx); err != nil && j.ctx.Err() == nil {
				j.logger.Warn("journal flush failed", "error", err)
			}
		}
	}
}

func (j *Journal) flush(ctx context.Context) error {
	j.mu.Lock()
	if len(j.batch) == 0 {
		j.mu.Unlock()
		return nil
	}
	batch := j.batch
	j.batch = make([]outcome.Signal, 0, j.cfg.BatchSize)
	j.mu.Unlock()

	start := time.Now()
	conflicts, err := j.insert(ctx, batch)
	if err != nil {
		j.mu.Lock()
		j.stats.Errors++
		// Keep the rows for the next flush, up to a bound.
		j.batch = append(batch, j.batch...)
		if limit := maxRetainedBatches * j.cfg.BatchSize; len(j.batch) > limit {
			dropped := len(j.batch) - limit
			j.batch = j.batch[dropped:]
			j.logger.Warn("journal backlog full, dropping oldest signals", "dropped", dropped)
		}
		j.mu.Unlock()
		return fmt.Errorf("insert %d signals: %w", len(batch), err)
	}

	j.mu.Lock()
	j.stats.Inserts += int64(len(batch) - conflicts)
	j.stats.Conflicts += int64(conflicts)
	j.stats.Flushes++
	j.mu.Unlock()

	j.logger.Debug("flushed outcome signals",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}

func (j *Journal) insert(ctx context.Context, rows []outcome.Signal) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, s := range rows {
		batch.Queue(insertSQL,
			s.ID.String(),
			s.Account,
			s.RequestID,
			s.PlayID,
			s.RoundID,
			string(s.Status),
			s.Win,
			s.Prize.String(),
			s.SettleHash,
			s.At,
		)
	}

	results := j.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
