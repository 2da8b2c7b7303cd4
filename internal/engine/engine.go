package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/drawsync/internal/fulfillment"
	"github.com/rickgao/drawsync/internal/metrics"
	"github.com/rickgao/drawsync/internal/model"
	"github.com/rickgao/drawsync/internal/outcome"
	"github.com/rickgao/drawsync/internal/poller"
	"github.com/rickgao/drawsync/internal/reconcile"
	"github.com/rickgao/drawsync/internal/refund"
	"github.com/rickgao/drawsync/internal/resolver"
	"github.com/rickgao/drawsync/internal/store"
	"github.com/rickgao/drawsync/internal/wallet"
)

// Engine errors.
var (
	ErrNotRunning          = errors.New("engine not running")
	ErrAlreadyStarted      = errors.New("engine already started")
	ErrNoWallet            = errors.New("no wallet configured")
	ErrUnknownTicket       = errors.New("unknown ticket")
	ErrPlaceholder         = errors.New("ticket not indexed yet")
	ErrAlreadySettled      = errors.New("ticket already settled")
	ErrAwaitingFulfillment = errors.New("ticket awaiting fulfillment")
	ErrNotRefundable       = errors.New("ticket not refundable")
)

// Backend is the REST surface the engine reads.
type Backend interface {
	resolver.Fetcher
	poller.Source
}

// Config holds engine configuration.
type Config struct {
	Account      string
	TicketPrice  decimal.Decimal // CSPR
	Resolver     resolver.Config
	Settlement   poller.SettlementConfig
	Refresh      poller.RefreshConfig
	Fulfillment  fulfillment.Config // an empty Transport.URL disables watching
	RefundWindow time.Duration
	QueueSize    int // update loop mailbox
	SignalBuffer int // capacity of the Outcomes and Ready channels
}

// DefaultConfig returns the standard configuration for account.
func DefaultConfig(account string) Config {
	return Config{
		Account:      account,
		TicketPrice:  decimal.NewFromInt(50),
		Resolver:     resolver.DefaultConfig(),
		Settlement:   poller.DefaultSettlementConfig(),
		Refresh:      poller.DefaultRefreshConfig(),
		Fulfillment:  fulfillment.DefaultConfig(),
		RefundWindow: refund.DefaultWindow,
		QueueSize:    128,
		SignalBuffer: 64,
	}
}

// ReadyEvent reports that the oracle answered for a ticket, or that the
// server gave up waiting. Delivered once per ticket.
type ReadyEvent struct {
	RequestID  string
	State      fulfillment.State
	Randomness string
	At         time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithWallet sets the wallet used by the Submit methods.
func WithWallet(w wallet.Wallet) Option {
	return func(e *Engine) {
		e.wallet = w
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSinks adds outcome sinks.
func WithSinks(sinks ...outcome.Sink) Option {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sinks...)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

type task struct {
	token  uuid.UUID
	cancel context.CancelFunc
}

// Engine reconciles one account's tickets.
type Engine struct {
	cfg     Config
	backend Backend
	wallet  wallet.Wallet
	sinks   []outcome.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	store      *store.Store
	resolver   *resolver.Resolver
	settler    *poller.Settler
	refresher  *poller.Refresher
	watcher    *fulfillment.Service
	refunds    *refund.Calculator
	dispatcher *outcome.Dispatcher

	msgs     chan Msg
	outcomes chan outcome.Signal
	ready    chan ReadyEvent
	round    atomic.Pointer[model.Round]

	// Owned by the update loop.
	live     *reconcile.Live
	notifier *outcome.Notifier
	tasks    map[taskKey]task

	started atomic.Bool
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	done    chan struct{}
}

// New creates an Engine for cfg.Account reading from backend.
func New(cfg Config, backend Backend, opts ...Option) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.SignalBuffer <= 0 {
		cfg.SignalBuffer = 64
	}
	cfg.Resolver.TicketCost = cfg.TicketPrice
	cfg.Settlement.TicketCost = cfg.TicketPrice
	cfg.Refresh.TicketCost = cfg.TicketPrice

	e := &Engine{
		cfg:      cfg,
		backend:  backend,
		logger:   slog.Default(),
		now:      time.Now,
		store:    store.New(),
		msgs:     make(chan Msg, cfg.QueueSize),
		outcomes: make(chan outcome.Signal, cfg.SignalBuffer),
		ready:    make(chan ReadyEvent, cfg.SignalBuffer),
		live:     reconcile.NewLive(),
		tasks:    make(map[taskKey]task),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("account", cfg.Account)

	e.resolver = resolver.New(cfg.Resolver, backend, e.metrics, e.logger)
	e.settler = poller.NewSettler(cfg.Settlement, backend, e.metrics, e.logger)
	e.refresher = poller.NewRefresher(cfg.Refresh, backend, cfg.Account,
		poller.SnapshotHandlerFunc(e.handleSnapshot), e.metrics, e.logger)
	if cfg.Fulfillment.Transport.URL != "" {
		e.watcher = fulfillment.NewService(cfg.Fulfillment, e.metrics, e.logger)
	}
	e.refunds = refund.New(cfg.RefundWindow, e.now)
	e.notifier = outcome.NewNotifier(cfg.Account, e.now)
	e.dispatcher = outcome.NewDispatcher(cfg.SignalBuffer, e.metrics, e.logger, e.sinks...)

	return e
}

// Start launches the update loop, the outcome dispatcher and the refresh
// loop. The first refresh runs immediately. An Engine starts at most once;
// later calls, including after Stop, return ErrAlreadyStarted.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	e.running.Store(true)

	runCtx, cancel := context.WithCancel(ctx)
	e.group, e.ctx = errgroup.WithContext(runCtx)
	e.cancel = cancel

	if err := e.dispatcher.Start(e.ctx); err != nil {
		cancel()
		e.running.Store(false)
		return fmt.Errorf("start dispatcher: %w", err)
	}

	e.group.Go(e.loop)

	if err := e.refresher.Start(e.ctx); err != nil {
		cancel()
		e.running.Store(false)
		return fmt.Errorf("start refresher: %w", err)
	}

	e.logger.Info("engine started",
		"watching", e.watcher != nil,
		"wallet", e.wallet != nil,
		"sinks", len(e.sinks),
	)
	return nil
}

// Stop cancels all background work and waits for it to finish. The
// Outcomes and Ready channels are closed once everything has stopped.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}

	var errs []error
	if err := e.refresher.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop refresher: %w", err))
	}

	e.cancel()

	if e.watcher != nil {
		if err := e.watcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close watcher: %w", err))
		}
	}

	waited := make(chan error, 1)
	go func() { waited <- e.group.Wait() }()
	select {
	case err := <-waited:
		if err != nil {
			errs = append(errs, err)
		}
		close(e.outcomes)
		close(e.ready)
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for tasks: %w", ctx.Err()))
	}

	if err := e.dispatcher.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop dispatcher: %w", err))
	}

	e.logger.Info("engine stopped", "entries", e.store.Len())
	return errors.Join(errs...)
}

// Outcomes delivers one signal per ticket whose result became known.
func (e *Engine) Outcomes() <-chan outcome.Signal {
	return e.outcomes
}

// Ready delivers one event per ticket whose randomness arrived or timed out.
func (e *Engine) Ready() <-chan ReadyEvent {
	return e.ready
}

// Entries returns the account's tickets, newest first.
func (e *Engine) Entries() []model.Entry {
	return e.store.All()
}

// Entry returns the ticket keyed by requestID.
func (e *Engine) Entry(requestID string) (model.Entry, bool) {
	return e.store.Get(requestID)
}

// Stats summarizes the account's tickets.
func (e *Engine) Stats() model.Stats {
	return model.Summarize(e.store.All())
}

// Round returns the last round snapshot, zero before the first refresh.
func (e *Engine) Round() model.Round {
	if r := e.round.Load(); r != nil {
		return *r
	}
	return model.Round{}
}

// RefundStatus evaluates refund eligibility for requestID.
func (e *Engine) RefundStatus(requestID string) (refund.Eligibility, bool) {
	entry, ok := e.store.Get(requestID)
	if !ok {
		return refund.Eligibility{}, false
	}
	return e.refunds.Evaluate(entry), true
}

// RefundStatuses evaluates refund eligibility for every pending ticket.
func (e *Engine) RefundStatuses() []refund.Eligibility {
	return e.refunds.EvaluateAll(e.store.All())
}

// RefundCountdown emits the refund eligibility of requestID every tick
// until it is final or ctx ends. A ticket missing from the store stops it.
func (e *Engine) RefundCountdown(ctx context.Context, requestID string, tick time.Duration, emit func(refund.Eligibility)) {
	e.refunds.Countdown(ctx, tick, func() (model.Entry, bool) {
		return e.store.Get(requestID)
	}, emit)
}

// Refresh requests an immediate refresh.
func (e *Engine) Refresh() {
	e.refresher.Trigger()
}

// SubmitPurchase buys a ticket through the wallet. On success the ticket
// is tracked as a placeholder until its request id resolves. A rejected
// transaction is returned as an error and nothing is tracked.
func (e *Engine) SubmitPurchase(ctx context.Context) (model.Entry, error) {
	if !e.running.Load() {
		return model.Entry{}, ErrNotRunning
	}

	res, err := e.sendTx(ctx, wallet.NewPurchase(e.cfg.Account, e.cfg.TicketPrice), nil)
	if err != nil {
		return model.Entry{}, err
	}

	reply := make(chan model.Entry, 1)
	if err := e.post(ctx, purchasedMsg{deployHash: res.DeployHash, reply: reply}); err != nil {
		return model.Entry{}, err
	}

	select {
	case entry := <-reply:
		return entry, nil
	case <-e.done:
		return model.Entry{}, ErrNotRunning
	case <-ctx.Done():
		return model.Entry{}, ctx.Err()
	}
}

// SubmitSettlement settles a fulfilled ticket through the wallet and then
// polls the backend until it leaves pending.
func (e *Engine) SubmitSettlement(ctx context.Context, requestID string) (wallet.Result, error) {
	if !e.running.Load() {
		return wallet.Result{}, ErrNotRunning
	}

	entry, err := e.settleable(requestID)
	if err != nil {
		return wallet.Result{}, err
	}

	req, err := wallet.NewSettlement(e.cfg.Account, entry.RequestID)
	if err != nil {
		return wallet.Result{}, err
	}

	res, err := e.sendTx(ctx, req, wallet.FriendlySettlementError)
	if err != nil {
		return res, err
	}

	if err := e.post(ctx, settleAcceptedMsg{requestID: entry.RequestID, deployHash: res.DeployHash}); err != nil {
		return res, err
	}
	return res, nil
}

// AwaitSettlement polls for the outcome of a settlement sent outside the
// engine. A poll already running for requestID is left alone.
func (e *Engine) AwaitSettlement(ctx context.Context, requestID string) error {
	if !e.running.Load() {
		return ErrNotRunning
	}

	entry, ok := e.store.Get(requestID)
	switch {
	case !ok:
		return fmt.Errorf("%w: %s", ErrUnknownTicket, requestID)
	case entry.IsPlaceholder:
		return fmt.Errorf("%w: %s", ErrPlaceholder, requestID)
	case entry.Status.IsTerminal():
		return fmt.Errorf("%w: %s", ErrAlreadySettled, requestID)
	}
	return e.post(ctx, settleAcceptedMsg{requestID: requestID})
}

// SubmitRefund claims the refund of a stuck ticket through the wallet.
func (e *Engine) SubmitRefund(ctx context.Context, requestID string) (wallet.Result, error) {
	if !e.running.Load() {
		return wallet.Result{}, ErrNotRunning
	}

	entry, ok := e.store.Get(requestID)
	if !ok {
		return wallet.Result{}, fmt.Errorf("%w: %s", ErrUnknownTicket, requestID)
	}
	if entry.IsPlaceholder {
		return wallet.Result{}, fmt.Errorf("%w: %s", ErrPlaceholder, requestID)
	}
	if elig := e.refunds.Evaluate(entry); !elig.Eligible {
		return wallet.Result{}, fmt.Errorf("%w: %s", ErrNotRefundable, elig.Reason)
	}

	req, err := wallet.NewRefund(e.cfg.Account, entry.RequestID)
	if err != nil {
		return wallet.Result{}, err
	}

	res, err := e.sendTx(ctx, req, wallet.FriendlyRefundError)
	if err != nil {
		return res, err
	}

	if err := e.post(ctx, refundAcceptedMsg{requestID: entry.RequestID, deployHash: res.DeployHash}); err != nil {
		return res, err
	}
	return res, nil
}

func (e *Engine) settleable(requestID string) (model.Entry, error) {
	entry, ok := e.store.Get(requestID)
	switch {
	case !ok:
		return entry, fmt.Errorf("%w: %s", ErrUnknownTicket, requestID)
	case entry.IsPlaceholder:
		return entry, fmt.Errorf("%w: %s", ErrPlaceholder, requestID)
	case entry.Status.IsTerminal():
		return entry, fmt.Errorf("%w: %s", ErrAlreadySettled, requestID)
	case entry.AwaitingFulfillment:
		return entry, fmt.Errorf("%w: %s", ErrAwaitingFulfillment, requestID)
	}
	return entry, nil
}

// sendTx sends req and waits for the wallet's verdict. friendly, if set,
// rewrites execution errors.
func (e *Engine) sendTx(ctx context.Context, req wallet.Request, friendly func(string) string) (wallet.Result, error) {
	if e.wallet == nil {
		return wallet.Result{}, ErrNoWallet
	}

	log := e.logger.With("action", req.Action)

	hash, updates, err := e.wallet.Send(ctx, req)
	if err != nil {
		return wallet.Result{}, fmt.Errorf("send %s: %w", req.Action, err)
	}
	log = log.With("deploy_hash", hash)
	log.Info("transaction sent")

	res, err := wallet.Await(ctx, hash, updates)
	if err != nil {
		log.Warn("transaction rejected", "error", err)
		return wallet.Result{}, fmt.Errorf("%s: %w", req.Action, err)
	}
	if !res.Success {
		msg := res.ErrorMessage
		if friendly != nil {
			msg = friendly(msg)
		}
		log.Warn("transaction failed on chain", "error", res.ErrorMessage)
		return res, fmt.Errorf("%s: %w: %s", req.Action, wallet.ErrFailed, msg)
	}

	log.Info("transaction processed")
	return res, nil
}

// post hands m to the update loop.
func (e *Engine) post(ctx context.Context, m Msg) error {
	select {
	case e.msgs <- m:
		return nil
	case <-e.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// postAsync is post for background tasks; the message is dropped once the
// engine stops.
func (e *Engine) postAsync(m Msg) {
	select {
	case e.msgs <- m:
	case <-e.ctx.Done():
	}
}

func (e *Engine) handleSnapshot(s poller.Snapshot) {
	e.postAsync(snapshotMsg{snap: s})
}

func (e *Engine) loop() error {
	defer close(e.done)

	for {
		select {
		case <-e.ctx.Done():
			for key, t := range e.tasks {
				t.cancel()
				delete(e.tasks, key)
			}
			return nil
		case m := <-e.msgs:
			e.update(m)
		}
	}
}

// spawn runs fn as a registered background task under a fresh token.
func (e *Engine) spawn(key taskKey, fn func(ctx context.Context, token uuid.UUID)) {
	ctx, cancel := context.WithCancel(e.ctx)
	token := uuid.New()
	e.tasks[key] = task{token: token, cancel: cancel}

	e.group.Go(func() error {
		defer cancel()
		fn(ctx, token)
		return nil
	})
}

// claim reports whether token is the live task for key and unregisters it.
func (e *Engine) claim(key taskKey, token uuid.UUID) bool {
	t, ok := e.tasks[key]
	if !ok || t.token != token {
		return false
	}
	delete(e.tasks, key)
	return true
}

// drop cancels and unregisters the task for key.
func (e *Engine) drop(key taskKey) {
	if t, ok := e.tasks[key]; ok {
		t.cancel()
		delete(e.tasks, key)
	}
}
