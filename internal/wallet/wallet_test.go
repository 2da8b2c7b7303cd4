package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		update  Update
		want    *Result
		wantErr error
	}{
		{"sent", Update{Status: "sent"}, nil, nil},
		{"processed success", Update{Status: "PROCESSED", DeployHash: "abc"}, &Result{DeployHash: "abc", Success: true}, nil},
		{"processed failure", Update{Status: "processed", DeployHash: "abc", ErrorMessage: "User error: 4"},
			&Result{DeployHash: "abc", ErrorMessage: "User error: 4"}, nil},
		{"processed without hash", Update{Status: "processed"}, nil, nil},
		{"cancelled", Update{Status: "Cancelled"}, nil, ErrCancelled},
		{"timeout", Update{Status: "timeout"}, nil, ErrTimeout},
		{"error", Update{Status: "error", Message: "node unreachable"}, nil, ErrFailed},
		{"error without message", Update{Status: "ERROR"}, nil, ErrFailed},
		{"unknown", Update{Status: "pinged"}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.update)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Classify() error = %v, want %v", err, tt.wantErr)
			}
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("Classify() = %+v, want %+v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("Classify() = %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestClassify_ErrorMessage(t *testing.T) {
	_, err := Classify(Update{Status: "error", Message: "node unreachable"})
	if err == nil || err.Error() != "transaction failed: node unreachable" {
		t.Errorf("error = %v", err)
	}
}

func TestAwait(t *testing.T) {
	updates := make(chan Update, 3)
	updates <- Update{Status: "sent"}
	updates <- Update{Status: "processed"}
	close(updates)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := Await(ctx, "deploy-1", updates)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if res.DeployHash != "deploy-1" || !res.Success {
		t.Errorf("Await() = %+v, want success for deploy-1", res)
	}
}

func TestAwait_Rejected(t *testing.T) {
	updates := make(chan Update, 2)
	updates <- Update{Status: "sent"}
	updates <- Update{Status: "cancelled"}

	_, err := Await(context.Background(), "deploy-1", updates)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("Await() error = %v, want ErrCancelled", err)
	}
	if !IsRejection(err) {
		t.Error("IsRejection() = false, want true")
	}
}

func TestAwait_Closed(t *testing.T) {
	updates := make(chan Update)
	close(updates)

	_, err := Await(context.Background(), "deploy-1", updates)
	if !errors.Is(err, ErrFailed) {
		t.Errorf("Await() error = %v, want ErrFailed", err)
	}
}

func TestAwait_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Await(ctx, "deploy-1", make(chan Update))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Await() error = %v, want context.Canceled", err)
	}
	if IsRejection(err) {
		t.Error("IsRejection(context.Canceled) = true, want false")
	}
}

func TestNewSettlement(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0x1f", 31, false},
		{"31", 31, false},
		{" 1f ", 31, false},
		{"", 0, true},
		{"0xzz", 0, true},
	}

	for _, tt := range tests {
		req, err := NewSettlement("acct", tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewSettlement(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if req.Action != ActionSettle {
			t.Errorf("Action = %q, want %q", req.Action, ActionSettle)
		}
		if req.RequestID.Int64() != tt.want {
			t.Errorf("NewSettlement(%q) id = %v, want %d", tt.in, req.RequestID, tt.want)
		}
	}
}

func TestNewRefundAndPurchase(t *testing.T) {
	req, err := NewRefund("acct", "0x5")
	if err != nil {
		t.Fatalf("NewRefund() error = %v", err)
	}
	if req.Action != ActionRefund || req.RequestID.Int64() != 5 {
		t.Errorf("NewRefund() = %+v", req)
	}

	p := NewPurchase("acct", decimal.NewFromInt(50))
	if p.Action != ActionPurchase || !p.Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("NewPurchase() = %+v", p)
	}
}

func TestFriendlySettlementError(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"User error: 3", MissedEventMessage},
		{"user error:4", MissedEventMessage},
		{"USER ERROR : 3", MissedEventMessage},
		{"User error: 7", "User error: 7"},
		{"", "Transaction reverted on-chain."},
	}
	for _, tt := range tests {
		if got := FriendlySettlementError(tt.in); got != tt.want {
			t.Errorf("FriendlySettlementError(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFriendlyRefundError(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"User error: 7", RefundNotEligibleMessage},
		{"user error:7", RefundNotEligibleMessage},
		{"User error: 3", "User error: 3"},
		{"", "Refund transaction reverted on-chain."},
	}
	for _, tt := range tests {
		if got := FriendlyRefundError(tt.in); got != tt.want {
			t.Errorf("FriendlyRefundError(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExplorerURL(t *testing.T) {
	got := ExplorerURL("https://testnet.cspr.live/", "abc")
	if got != "https://testnet.cspr.live/deploy/abc" {
		t.Errorf("ExplorerURL() = %q", got)
	}
}
