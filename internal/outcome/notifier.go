package outcome

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/drawsync/internal/model"
)

// Signal announces that a ticket's result became known.
type Signal struct {
	ID         uuid.UUID       `json:"id"`
	Account    string          `json:"account"`
	RequestID  string          `json:"request_id"`
	PlayID     string          `json:"play_id,omitempty"`
	RoundID    int64           `json:"round_id"`
	Status     model.Status    `json:"status"`
	Win        bool            `json:"win"`
	Prize      decimal.Decimal `json:"prize"`
	SettleHash string          `json:"settle_deploy_hash,omitempty"`
	At         time.Time       `json:"at"`
}

// Notifier emits at most one Signal per request id. Not safe for concurrent
// use; the owner serializes access.
type Notifier struct {
	account string
	now     func() time.Time

	notified map[string]struct{}
	prev     map[string]model.Status
	primed   bool
}

// NewNotifier creates a Notifier for account. A nil now uses time.Now.
func NewNotifier(account string, now func() time.Time) *Notifier {
	if now == nil {
		now = time.Now
	}
	return &Notifier{
		account:  account,
		now:      now,
		notified: make(map[string]struct{}),
		prev:     make(map[string]model.Status),
	}
}

// Transition evaluates a status change from prev to e.Status. It emits when
// the status changed, is terminal, and requestId was never signalled.
func (n *Notifier) Transition(prev model.Status, e model.Entry) (Signal, bool) {
	n.prev[e.RequestID] = e.Status

	if !e.Status.IsTerminal() || prev == e.Status {
		return Signal{}, false
	}
	if _, done := n.notified[e.RequestID]; done {
		return Signal{}, false
	}
	n.notified[e.RequestID] = struct{}{}

	return Signal{
		ID:         uuid.New(),
		Account:    n.account,
		RequestID:  e.RequestID,
		PlayID:     e.PlayID,
		RoundID:    e.RoundID,
		Status:     e.Status,
		Win:        e.Status.IsWin(),
		Prize:      e.Prize(),
		SettleHash: e.Tx.Settle,
		At:         n.now().UTC(),
	}, true
}

// Observe evaluates every entry against the status last seen for it. The
// first call only records statuses: tickets settled before this process
// started are not announced.
func (n *Notifier) Observe(entries []model.Entry) []Signal {
	if !n.primed {
		n.primed = true
		for _, e := range entries {
			n.prev[e.RequestID] = e.Status
			if e.Status.IsTerminal() {
				n.notified[e.RequestID] = struct{}{}
			}
		}
		return nil
	}

	var signals []Signal
	for _, e := range entries {
		if sig, ok := n.Transition(n.prev[e.RequestID], e); ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

// Notified reports whether requestID has been signalled.
func (n *Notifier) Notified(requestID string) bool {
	_, ok := n.notified[requestID]
	return ok
}

// Primed reports whether Observe has recorded an initial snapshot.
func (n *Notifier) Primed() bool {
	return n.primed
}

// Rename carries tracking state across a rekey.
func (n *Notifier) Rename(oldID, newID string) {
	if st, ok := n.prev[oldID]; ok {
		delete(n.prev, oldID)
		if _, exists := n.prev[newID]; !exists {
			n.prev[newID] = st
		}
	}
	if _, ok := n.notified[oldID]; ok {
		delete(n.notified, oldID)
		n.notified[newID] = struct{}{}
	}
}
