package fulfillment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/drawsync/internal/metrics"
	"github.com/rickgao/drawsync/internal/model"
)

// Watch errors.
var (
	ErrPlaceholderID   = errors.New("placeholder id cannot be watched")
	ErrAlreadyWatching = errors.New("request id already watched")
	ErrAlreadyNotified = errors.New("request id already reported ready")
	ErrServiceClosed   = errors.New("fulfillment service closed")
)

// State is the lifecycle state of one watch.
type State string

const (
	StateIdle         State = "idle"
	StateSubscribed   State = "subscribed"
	StateFulfilled    State = "fulfilled"
	StateTimedOut     State = "timed-out"
	StateDisconnected State = "disconnected"
)

// IsTerminal reports whether the watch is finished for good.
func (s State) IsTerminal() bool {
	return s == StateFulfilled || s == StateTimedOut
}

// Notification is delivered to the watch sink.
type Notification struct {
	RequestID string
	State     State
	Event     Event // triggering event, zero on disconnect
	Ready     bool  // first fulfilled or timed-out signal for RequestID
	Err       error // cause of a disconnect
}

// Config configures the Service.
type Config struct {
	Transport TransportConfig

	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
	MaxReconnects     int // 0 disables reconnection
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Transport:         DefaultTransportConfig(),
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  30 * time.Second,
		MaxReconnects:     3,
	}
}

type watch struct {
	requestID string
	sink      func(Notification)
	cancel    context.CancelFunc
	cancelled atomic.Bool

	mu    sync.Mutex
	state State
}

func (w *watch) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *watch) getState() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Service manages per-ticket fulfillment subscriptions. At most one watch
// is active per request id.
type Service struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	dial    func(TransportConfig, *slog.Logger) Conn

	mu       sync.Mutex
	watches  map[string]*watch
	notified map[string]struct{}
	closed   bool

	wg sync.WaitGroup
}

// NewService creates a Service.
func NewService(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:      cfg,
		logger:   logger.With("component", "fulfillment"),
		metrics:  m,
		dial:     NewConn,
		watches:  make(map[string]*watch),
		notified: make(map[string]struct{}),
	}
}

// Watch subscribes to push events for requestID in the background and
// reports them to sink. Returns ErrPlaceholderID for deploy-hash shaped ids,
// ErrAlreadyWatching when a watch is active, and ErrAlreadyNotified once the
// id has been reported ready.
func (s *Service) Watch(ctx context.Context, requestID string, sink func(Notification)) error {
	if !model.IsCanonicalID(requestID) {
		return ErrPlaceholderID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceClosed
	}
	if _, ok := s.notified[requestID]; ok {
		return ErrAlreadyNotified
	}
	if _, ok := s.watches[requestID]; ok {
		return ErrAlreadyWatching
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &watch{
		requestID: requestID,
		sink:      sink,
		cancel:    cancel,
		state:     StateIdle,
	}
	s.watches[requestID] = w

	s.wg.Add(1)
	go s.run(wctx, w)

	return nil
}

// Cancel tears down the watch for requestID. No notification for it is
// delivered once Cancel returns, except one already being delivered.
func (s *Service) Cancel(requestID string) {
	s.mu.Lock()
	w, ok := s.watches[requestID]
	if ok {
		delete(s.watches, requestID)
	}
	s.mu.Unlock()

	if ok {
		w.cancelled.Store(true)
		w.cancel()
	}
}

// State returns the state of the active watch for requestID.
func (s *Service) State(requestID string) (State, bool) {
	s.mu.Lock()
	w, ok := s.watches[requestID]
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	return w.getState(), true
}

// Active returns the number of open watches.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watches)
}

// Notified reports whether requestID has been reported ready.
func (s *Service) Notified(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.notified[requestID]
	return ok
}

// Close cancels every watch and waits for them to exit.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	watches := make([]*watch, 0, len(s.watches))
	for id, w := range s.watches {
		watches = append(watches, w)
		delete(s.watches, id)
	}
	s.mu.Unlock()

	for _, w := range watches {
		w.cancelled.Store(true)
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// markNotified records requestID as ready; returns false if it already was.
func (s *Service) markNotified(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notified[requestID]; ok {
		return false
	}
	s.notified[requestID] = struct{}{}
	return true
}

func (s *Service) release(w *watch) {
	s.mu.Lock()
	if cur, ok := s.watches[w.requestID]; ok && cur == w {
		delete(s.watches, w.requestID)
	}
	s.mu.Unlock()
	w.cancel()
}

func (s *Service) deliver(w *watch, n Notification) {
	w.setState(n.State)
	if w.cancelled.Load() || w.sink == nil {
		return
	}
	n.RequestID = w.requestID
	w.sink(n)
}

// run owns one watch: connect, subscribe, consume until terminal, and
// reconnect with exponential backoff on connection loss.
func (s *Service) run(ctx context.Context, w *watch) {
	defer s.wg.Done()
	defer s.release(w)

	s.metrics.WatchOpened()
	defer s.metrics.WatchClosed()

	log := s.logger.With("request_id", w.requestID)
	cfg := s.cfg.Transport

	wait := s.cfg.ReconnectBaseWait
	reconnects := 0

	for {
		conn := s.dial(cfg, log)

		terminal, err := s.session(ctx, conn, w, log)
		conn.Close()

		if terminal || ctx.Err() != nil {
			return
		}

		if reconnects >= s.cfg.MaxReconnects {
			log.Warn("push channel lost, giving up", "reconnects", reconnects, "error", err)
			s.deliver(w, Notification{State: StateDisconnected, Err: err})
			return
		}
		reconnects++

		log.Info("push channel lost, reconnecting",
			"attempt", reconnects,
			"wait", wait,
			"error", err,
		)
		s.metrics.Reconnect()

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		wait *= 2
		if wait > s.cfg.ReconnectMaxWait {
			wait = s.cfg.ReconnectMaxWait
		}
	}
}

// session runs one connection. Returns true once the watch is terminal.
func (s *Service) session(ctx context.Context, conn Conn, w *watch, log *slog.Logger) (bool, error) {
	if err := conn.Connect(ctx); err != nil {
		return false, err
	}
	if err := conn.Send(subscribeFrame(w.requestID)); err != nil {
		return false, err
	}
	w.setState(StateSubscribed)
	log.Debug("subscribed to fulfillment")

	for {
		select {
		case <-ctx.Done():
			conn.Send(unsubscribeFrame(w.requestID))
			return false, ctx.Err()

		case err := <-conn.Errors():
			return false, err

		case f := <-conn.Frames():
			ev, ok := ParseEvent(f)
			if !ok {
				log.Debug("ignoring unrecognised frame", "size", len(f.Data))
				continue
			}
			if ev.RequestID != "" && !strings.EqualFold(ev.RequestID, w.requestID) {
				continue
			}
			s.metrics.WatcherEvent(string(ev.Type))

			switch ev.Type {
			case EventSubscribed:
				log.Debug("subscription acknowledged")

			case EventRequested:
				s.deliver(w, Notification{State: StateSubscribed, Event: ev})

			case EventFulfilled:
				s.finish(w, StateFulfilled, ev, log)
				conn.Send(unsubscribeFrame(w.requestID))
				return true, nil

			case EventTimeout:
				s.finish(w, StateTimedOut, ev, log)
				conn.Send(unsubscribeFrame(w.requestID))
				return true, nil

			case EventError:
				log.Warn("push channel error", "message", ev.Message)
			}
		}
	}
}

func (s *Service) finish(w *watch, state State, ev Event, log *slog.Logger) {
	ready := s.markNotified(w.requestID)
	if ready {
		s.metrics.Ready()
		log.Info("ticket ready", "state", state)
	}
	s.deliver(w, Notification{State: state, Event: ev, Ready: ready})
}
