package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/rickgao/drawsync/internal/fulfillment"
	"github.com/rickgao/drawsync/internal/model"
	"github.com/rickgao/drawsync/internal/outcome"
	"github.com/rickgao/drawsync/internal/poller"
	"github.com/rickgao/drawsync/internal/reconcile"
)

// update applies one message. Only the loop goroutine calls it.
func (e *Engine) update(m Msg) {
	switch m := m.(type) {
	case snapshotMsg:
		e.onSnapshot(m.snap)
	case purchasedMsg:
		m.reply <- e.onPurchased(m.deployHash)
	case resolvedMsg:
		e.onResolved(m)
	case watchMsg:
		e.onWatch(m)
	case settleAcceptedMsg:
		e.onSettleAccepted(m)
	case settledMsg:
		e.onSettled(m)
	case refundAcceptedMsg:
		e.onRefundAccepted(m)
	}
}

func (e *Engine) onSnapshot(s poller.Snapshot) {
	if s.Round != nil {
		e.round.Store(s.Round)
	}
	if s.PlaysErr != nil {
		// Keep the last known good list.
		return
	}
	e.merge(s.Entries)
}

func (e *Engine) onPurchased(deployHash string) model.Entry {
	if existing, ok := e.store.Get(deployHash); ok {
		return existing
	}

	entry := model.NewPlaceholder(deployHash, e.Round(), e.cfg.TicketPrice, e.now())
	e.store.Upsert(entry)
	e.live.Add(deployHash)
	e.metrics.StoreSize(e.store.Len())

	e.logger.Info("ticket purchased",
		"deploy_hash", deployHash,
		"round_id", entry.RoundID,
		"play_id_hint", entry.PlayID,
	)

	e.spawn(taskKey{taskResolve, deployHash}, func(ctx context.Context, token uuid.UUID) {
		res := e.resolver.Resolve(ctx, deployHash)
		e.postAsync(resolvedMsg{token: token, deployHash: deployHash, res: res})
	})

	return entry
}

func (e *Engine) onResolved(m resolvedMsg) {
	log := e.logger.With("deploy_hash", m.deployHash)

	if !e.claim(taskKey{taskResolve, m.deployHash}, m.token) {
		log.Debug("stale resolution dropped")
		return
	}
	if m.res == nil {
		log.Warn("placeholder left unresolved")
		return
	}

	prev, ok := e.store.Get(m.deployHash)
	if !ok {
		// A snapshot merge already upgraded the placeholder.
		if cur, found := e.store.Get(m.res.RequestID); found {
			e.watch(cur)
		}
		return
	}

	entry, _ := e.store.Rekey(m.deployHash, m.res.RequestID, m.res.Patch)
	e.live.Rename(m.deployHash, entry.RequestID)
	e.notifier.Rename(m.deployHash, entry.RequestID)
	if !entry.AwaitingFulfillment {
		e.live.Remove(entry.RequestID)
	}

	log.Info("placeholder resolved",
		"request_id", entry.RequestID,
		"play_id", entry.PlayID,
		"awaiting_fulfillment", entry.AwaitingFulfillment,
	)

	if sig, ok := e.notifier.Transition(prev.Status, entry); ok {
		e.emit(sig)
	}
	e.watch(entry)
}

// watch subscribes to fulfillment events for an awaiting canonical ticket.
func (e *Engine) watch(entry model.Entry) {
	id := entry.RequestID
	key := taskKey{taskWatch, id}

	if e.watcher == nil || !entry.AwaitingFulfillment || !model.IsCanonicalID(id) {
		return
	}
	if _, ok := e.tasks[key]; ok {
		return
	}

	token := uuid.New()
	err := e.watcher.Watch(e.ctx, id, func(n fulfillment.Notification) {
		e.postAsync(watchMsg{token: token, n: n})
	})
	switch {
	case err == nil:
		e.tasks[key] = task{token: token, cancel: func() { e.watcher.Cancel(id) }}
	case errors.Is(err, fulfillment.ErrAlreadyNotified), errors.Is(err, fulfillment.ErrAlreadyWatching):
		e.logger.Debug("fulfillment watch skipped", "request_id", id, "reason", err)
	default:
		e.logger.Warn("fulfillment watch failed", "request_id", id, "error", err)
		e.metrics.BackgroundError("fulfillment")
	}
}

func (e *Engine) onWatch(m watchMsg) {
	n := m.n
	id := n.RequestID
	key := taskKey{taskWatch, id}

	t, ok := e.tasks[key]
	if !ok || t.token != m.token {
		e.logger.Debug("stale fulfillment event dropped", "request_id", id, "state", n.State)
		return
	}
	if n.State.IsTerminal() || n.State == fulfillment.StateDisconnected {
		delete(e.tasks, key)
	}

	ev := n.Event
	switch n.State {
	case fulfillment.StateSubscribed:
		if ev.Type == fulfillment.EventRequested && ev.DeployHash != "" {
			e.store.Update(id, func(cur model.Entry) model.Entry {
				cur.Tx.Request = ev.DeployHash
				return cur
			})
		}

	case fulfillment.StateFulfilled:
		e.store.Update(id, func(cur model.Entry) model.Entry {
			cur.Fulfilled = true
			cur.AwaitingFulfillment = false
			if ev.Randomness != "" {
				cur.Randomness = ev.Randomness
			}
			if ev.DeployHash != "" {
				cur.Tx.Fulfill = ev.DeployHash
			}
			return cur
		})

	case fulfillment.StateTimedOut:
		e.store.Update(id, func(cur model.Entry) model.Entry {
			cur.AwaitingFulfillment = false
			return cur
		})

	case fulfillment.StateDisconnected:
		e.logger.Warn("fulfillment watch lost, ticket stays awaiting",
			"request_id", id,
			"error", n.Err,
		)
		return
	}

	if !n.Ready {
		return
	}
	e.live.Remove(id)

	ready := ReadyEvent{
		RequestID:  id,
		State:      n.State,
		Randomness: ev.Randomness,
		At:         e.now().UTC(),
	}
	select {
	case e.ready <- ready:
	default:
		e.logger.Warn("ready channel full, event dropped", "request_id", id)
		e.metrics.BackgroundError("engine")
	}
}

func (e *Engine) onSettleAccepted(m settleAcceptedMsg) {
	if m.deployHash != "" {
		e.store.Update(m.requestID, func(cur model.Entry) model.Entry {
			cur.Tx.Settle = m.deployHash
			return cur
		})
	}
	e.settle(m.requestID)
	e.refresher.Trigger()
}

// settle starts a settlement poll unless one is running for requestID.
func (e *Engine) settle(requestID string) {
	key := taskKey{taskSettle, requestID}
	if _, ok := e.tasks[key]; ok || e.settler.InFlight(requestID) {
		e.logger.Debug("settlement poll already running", "request_id", requestID)
		return
	}

	e.spawn(key, func(ctx context.Context, token uuid.UUID) {
		var got *poller.SettlementResult
		e.settler.Poll(ctx, e.cfg.Account, requestID, func(r poller.SettlementResult) {
			got = &r
		})
		e.postAsync(settledMsg{token: token, requestID: requestID, res: got})
	})
}

func (e *Engine) onSettled(m settledMsg) {
	if !e.claim(taskKey{taskSettle, m.requestID}, m.token) {
		e.logger.Debug("stale settlement result dropped", "request_id", m.requestID)
		return
	}
	if m.res == nil {
		return
	}
	res := *m.res

	if res.Settled {
		prev := model.StatusPending
		if cur, ok := e.store.Get(m.requestID); ok {
			prev = cur.Status
		}

		settled, ok := e.store.Update(m.requestID, func(cur model.Entry) model.Entry {
			next := res.Entry.WithLocal(cur)
			next.AwaitingFulfillment = false
			return next
		})
		if !ok {
			settled = res.Entry.Normalize()
		}
		e.live.Remove(m.requestID)
		e.drop(taskKey{taskWatch, m.requestID})

		if sig, ok := e.notifier.Transition(prev, settled); ok {
			e.emit(sig)
		}
	} else if res.Exhausted {
		e.logger.Info("ticket still pending after settlement polling",
			"request_id", m.requestID,
			"attempts", res.Attempts,
		)
	}

	e.merge(res.Snapshot)
}

func (e *Engine) onRefundAccepted(m refundAcceptedMsg) {
	e.store.Update(m.requestID, func(cur model.Entry) model.Entry {
		cur.Tx.Refund = m.deployHash
		cur.AwaitingFulfillment = false
		return cur
	})
	e.live.Remove(m.requestID)
	e.drop(taskKey{taskWatch, m.requestID})
	e.refresher.Trigger()
}

// merge folds a backend snapshot into the Store against its contents at
// this moment, then announces any new outcomes.
func (e *Engine) merge(snapshot []model.Entry) {
	var res reconcile.Result
	entries := e.store.Apply(func(cur []model.Entry) []model.Entry {
		res = reconcile.Merge(snapshot, cur, e.live)
		return res.Entries
	})

	for placeholder, id := range res.Upgraded {
		e.drop(taskKey{taskResolve, placeholder})
		e.live.Rename(placeholder, id)
		e.notifier.Rename(placeholder, id)
		e.logger.Info("placeholder upgraded by snapshot", "deploy_hash", placeholder, "request_id", id)
	}

	awaiting := make(map[string]bool, len(entries))
	for _, entry := range entries {
		awaiting[entry.RequestID] = entry.AwaitingFulfillment
		if entry.AwaitingFulfillment {
			e.watch(entry)
		} else {
			e.live.Remove(entry.RequestID)
		}
	}
	// A watch only lives while its ticket is awaiting fulfillment.
	for key := range e.tasks {
		if key.kind == taskWatch && !awaiting[key.id] {
			e.drop(key)
		}
	}

	e.metrics.Merged(len(entries))
	e.metrics.StoreSize(len(entries))

	e.emit(e.notifier.Observe(entries)...)
}

func (e *Engine) emit(signals ...outcome.Signal) {
	for _, sig := range signals {
		e.metrics.Outcome(string(sig.Status))
		e.logger.Info("ticket outcome",
			"request_id", sig.RequestID,
			"status", sig.Status,
			"prize", sig.Prize.String(),
		)

		e.dispatcher.Enqueue(sig)

		select {
		case e.outcomes <- sig:
		default:
			e.logger.Warn("outcome channel full, signal dropped", "request_id", sig.RequestID)
			e.metrics.BackgroundError("engine")
		}
	}
}
