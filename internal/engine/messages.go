package engine

import (
	"github.com/google/uuid"

	"github.com/rickgao/drawsync/internal/fulfillment"
	"github.com/rickgao/drawsync/internal/model"
	"github.com/rickgao/drawsync/internal/poller"
	"github.com/rickgao/drawsync/internal/resolver"
)

// Msg is a message handled by the update loop. The set is closed.
type Msg interface {
	msg()
}

// snapshotMsg carries a periodic refresh result.
type snapshotMsg struct {
	snap poller.Snapshot
}

// purchasedMsg records a purchase accepted by the chain.
type purchasedMsg struct {
	deployHash string
	reply      chan model.Entry
}

// resolvedMsg carries a resolver outcome; res is nil when unresolved.
type resolvedMsg struct {
	token      uuid.UUID
	deployHash string
	res        *resolver.Result
}

// watchMsg carries a fulfillment notification.
type watchMsg struct {
	token uuid.UUID
	n     fulfillment.Notification
}

// settleAcceptedMsg records a settlement accepted by the chain.
type settleAcceptedMsg struct {
	requestID  string
	deployHash string
}

// settledMsg carries a settlement poll outcome; res is nil when the poll
// ended without one.
type settledMsg struct {
	token     uuid.UUID
	requestID string
	res       *poller.SettlementResult
}

// refundAcceptedMsg records a refund accepted by the chain.
type refundAcceptedMsg struct {
	requestID  string
	deployHash string
}

func (snapshotMsg) msg()       {}
func (purchasedMsg) msg()      {}
func (resolvedMsg) msg()       {}
func (watchMsg) msg()          {}
func (settleAcceptedMsg) msg() {}
func (settledMsg) msg()        {}
func (refundAcceptedMsg) msg() {}

type taskKind string

const (
	taskResolve taskKind = "resolve"
	taskWatch   taskKind = "watch"
	taskSettle  taskKind = "settle"
)

type taskKey struct {
	kind taskKind
	id   string
}
