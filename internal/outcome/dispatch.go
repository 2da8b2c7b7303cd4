package outcome

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rickgao/drawsync/internal/metrics"
)

// Sink receives outcome signals. Publish may block on I/O; failures are
// logged by the Dispatcher and never retried.
type Sink interface {
	Name() string
	Publish(ctx context.Context, sig Signal) error
}

// Dispatcher delivers signals to sinks from a background goroutine so that
// slow sinks never hold up the caller.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Signal
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with a queue of bufferSize signals.
func NewDispatcher(bufferSize int, m *metrics.Metrics, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Signal, bufferSize),
		logger:  logger.With("component", "outcome_dispatch"),
		metrics: m,
	}
}

// Start begins delivering queued signals.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.run()

	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	d.logger.Info("outcome dispatcher started", "sinks", names)
	return nil
}

// Stop stops the worker and delivers whatever is still queued, bounded by ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("outcome dispatcher stop timed out")
		return ctx.Err()
	}

	for {
		select {
		case sig := <-d.queue:
			d.deliver(ctx, sig)
		default:
			d.logger.Info("outcome dispatcher stopped")
			return nil
		}
	}
}

// Enqueue queues sig for delivery. Returns false and drops sig when the
// queue is full.
func (d *Dispatcher) Enqueue(sig Signal) bool {
	if len(d.sinks) == 0 {
		return true
	}
	select {
	case d.queue <- sig:
		return true
	default:
		d.logger.Warn("outcome queue full, dropping signal", "request_id", sig.RequestID)
		d.metrics.BackgroundError("outcome_dispatch")
		return false
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case sig := <-d.queue:
			d.deliver(d.ctx, sig)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sig Signal) {
	for _, s := range d.sinks {
		if err := s.Publish(ctx, sig); err != nil {
			d.logger.Warn("outcome sink failed",
				"sink", s.Name(),
				"request_id", sig.RequestID,
				"error", err,
			)
			d.metrics.SinkError(s.Name())
		}
	}
}
