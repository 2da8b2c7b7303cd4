// Package refund decides when a stuck ticket may be refunded.
//
// A ticket bought in this session becomes refundable once the refund window
// has elapsed since its entry date without a fulfillment. A ticket only seen
// in a backend snapshot has no trustworthy local creation time, so it is
// refundable as soon as it is pending and unfulfilled.
package refund

import (
	"context"
	"time"

	"github.com/rickgao/drawsync/internal/model"
)

// DefaultWindow is the refund window measured from the entry date.
const DefaultWindow = 60 * time.Second

// Reason explains an Eligibility result.
type Reason string

const (
	ReasonSettled   Reason = "settled"
	ReasonFulfilled Reason = "fulfilled"
	ReasonRefunded  Reason = "refunded"
	ReasonWaiting   Reason = "waiting"
	ReasonElapsed   Reason = "window-elapsed"
	ReasonRestored  Reason = "restored" // not created in this session
)

// Eligibility is the refund state of one ticket at one instant.
type Eligibility struct {
	RequestID        string
	Eligible         bool
	RemainingSeconds int
	Reason           Reason
}

// Final reports whether the result can no longer change with time alone.
func (e Eligibility) Final() bool {
	return e.Reason != ReasonWaiting
}

// Calculator evaluates refund eligibility against a clock.
type Calculator struct {
	window time.Duration
	now    func() time.Time
}

// New creates a Calculator. A non-positive window uses DefaultWindow and a
// nil now uses time.Now.
func New(window time.Duration, now func() time.Time) *Calculator {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Calculator{window: window, now: now}
}

// Window returns the configured refund window.
func (c *Calculator) Window() time.Duration {
	return c.window
}

// Evaluate returns the refund eligibility of e at the current time.
func (c *Calculator) Evaluate(e model.Entry) Eligibility {
	return evaluate(e, c.now(), c.window)
}

// EvaluateAll evaluates every pending entry.
func (c *Calculator) EvaluateAll(entries []model.Entry) []Eligibility {
	now := c.now()
	out := make([]Eligibility, 0, len(entries))
	for _, e := range entries {
		if e.Status != model.StatusPending {
			continue
		}
		out = append(out, evaluate(e, now, c.window))
	}
	return out
}

func evaluate(e model.Entry, now time.Time, window time.Duration) Eligibility {
	res := Eligibility{RequestID: e.RequestID}

	switch {
	case e.Status.IsTerminal():
		res.Reason = ReasonSettled
		return res
	case e.Tx.Refund != "":
		res.Reason = ReasonRefunded
		return res
	case e.KnownFulfilled():
		res.Reason = ReasonFulfilled
		return res
	case !e.SessionCreated:
		res.Eligible = true
		res.Reason = ReasonRestored
		return res
	}

	left := window - now.Sub(e.EntryDate)
	if left <= 0 {
		res.Eligible = true
		res.Reason = ReasonElapsed
		return res
	}

	res.RemainingSeconds = int((left + time.Second - 1) / time.Second)
	res.Reason = ReasonWaiting
	return res
}

// Countdown re-evaluates the ticket returned by lookup every tick and emits
// each result, starting immediately. It stops after emitting a final result,
// when lookup reports the ticket gone, or when ctx ends.
func (c *Calculator) Countdown(ctx context.Context, tick time.Duration, lookup func() (model.Entry, bool), emit func(Eligibility)) {
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		e, ok := lookup()
		if !ok {
			return
		}
		res := c.Evaluate(e)
		emit(res)
		if res.Final() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
