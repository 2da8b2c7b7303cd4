package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickgao/drawsync/internal/model"
)

// Rejection errors.
var (
	ErrCancelled = errors.New("transaction cancelled by user")
	ErrTimeout   = errors.New("transaction timed out")
	ErrFailed    = errors.New("transaction failed")
)

// Action is the contract entry point a transaction calls.
type Action string

const (
	ActionPurchase Action = "enter_lottery"
	ActionSettle   Action = "settle_lottery"
	ActionRefund   Action = "claim_refund"
)

// Request describes a transaction for the wallet to build and send.
type Request struct {
	Action  Action
	Account string

	// RequestID is the settle or refund argument.
	RequestID *big.Int

	// Amount is the purchase payment in CSPR.
	Amount decimal.Decimal
}

// Update is one status report from the wallet.
type Update struct {
	Status       string
	DeployHash   string // set once the transaction is processed
	ErrorMessage string // execution error of a processed transaction
	Message      string // detail for the error status
}

// Result is the final outcome of a processed transaction.
type Result struct {
	DeployHash   string
	Success      bool
	ErrorMessage string
}

// Wallet sends transactions. Send returns the deploy hash right away and a
// channel of status updates that is closed once the wallet is done.
type Wallet interface {
	Send(ctx context.Context, req Request) (deployHash string, updates <-chan Update, err error)
}

// Classify interprets an update. A nil Result with a nil error means the
// transaction is still in progress or the status is unknown.
func Classify(u Update) (*Result, error) {
	switch strings.ToLower(strings.TrimSpace(u.Status)) {
	case "sent":
		return nil, nil
	case "processed":
		if u.DeployHash == "" {
			return nil, nil
		}
		return &Result{
			DeployHash:   u.DeployHash,
			Success:      u.ErrorMessage == "",
			ErrorMessage: u.ErrorMessage,
		}, nil
	case "cancelled", "canceled":
		return nil, ErrCancelled
	case "timeout":
		return nil, ErrTimeout
	case "error":
		if u.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrFailed, u.Message)
		}
		return nil, ErrFailed
	default:
		return nil, nil
	}
}

// Await reads updates until one classifies to a result or a rejection.
// deployHash fills in a processed result that carries no hash of its own.
func Await(ctx context.Context, deployHash string, updates <-chan Update) (Result, error) {
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return Result{}, fmt.Errorf("%w: wallet closed without a result", ErrFailed)
			}
			if u.DeployHash == "" && strings.EqualFold(u.Status, "processed") {
				u.DeployHash = deployHash
			}
			res, err := Classify(u)
			if err != nil {
				return Result{}, err
			}
			if res != nil {
				return *res, nil
			}
		}
	}
}

// IsRejection reports whether err is a wallet rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrFailed)
}

// NewSettlement builds a settle request for the given request id.
func NewSettlement(account, requestID string) (Request, error) {
	id, err := model.ParseRequestID(requestID)
	if err != nil {
		return Request{}, fmt.Errorf("settle %q: %w", requestID, err)
	}
	return Request{Action: ActionSettle, Account: account, RequestID: id}, nil
}

// NewRefund builds a claim_refund request for the given request id.
func NewRefund(account, requestID string) (Request, error) {
	id, err := model.ParseRequestID(requestID)
	if err != nil {
		return Request{}, fmt.Errorf("refund %q: %w", requestID, err)
	}
	return Request{Action: ActionRefund, Account: account, RequestID: id}, nil
}

// NewPurchase builds an enter_lottery request paying price.
func NewPurchase(account string, price decimal.Decimal) Request {
	return Request{Action: ActionPurchase, Account: account, Amount: price}
}

var missedEvent = regexp.MustCompile(`(?i)User\s*error\s*:\s*(3|4)`)

// MissedEventMessage replaces on-chain user errors 3 and 4 on settlement.
const MissedEventMessage = "Unable to conclude: the randomness event was missed. Please contact the team."

// FriendlySettlementError maps a settlement execution error to the text
// shown to the player.
func FriendlySettlementError(raw string) string {
	if raw == "" {
		return "Transaction reverted on-chain."
	}
	if missedEvent.MatchString(raw) {
		return MissedEventMessage
	}
	return raw
}

var refundTooEarly = regexp.MustCompile(`(?i)User\s*error\s*:\s*7`)

// RefundNotEligibleMessage replaces on-chain user error 7 on refund.
const RefundNotEligibleMessage = "Refund window has not passed yet or randomness was already fulfilled."

// FriendlyRefundError maps a refund execution error to the text shown to
// the player.
func FriendlyRefundError(raw string) string {
	if raw == "" {
		return "Refund transaction reverted on-chain."
	}
	if refundTooEarly.MatchString(raw) {
		return RefundNotEligibleMessage
	}
	return raw
}

// ExplorerURL links a deploy hash on the block explorer at base.
func ExplorerURL(base, deployHash string) string {
	return strings.TrimRight(base, "/") + "/deploy/" + deployHash
}
