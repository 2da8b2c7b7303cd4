package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/drawsync/internal/api"
	"github.com/rickgao/drawsync/internal/model"
)

type fakePlays struct {
	calls   atomic.Int32
	respond func(call int32) ([]api.Play, error)
}

func (f *fakePlays) GetPlayerPlays(ctx context.Context, account, status string) ([]api.Play, error) {
	return f.respond(f.calls.Add(1))
}

func fastSettlementConfig() SettlementConfig {
	cfg := DefaultSettlementConfig()
	cfg.MinBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	cfg.BackoffStep = time.Millisecond
	return cfg
}

func pendingPlays(int32) ([]api.Play, error) {
	return []api.Play{
		{RequestID: "0x5", Status: "pending"},
		{RequestID: "0x6", Status: "settled"},
	}, nil
}

func TestSettlementBackoff(t *testing.T) {
	cfg := DefaultSettlementConfig()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 3 * time.Second},
		{1, 3 * time.Second},
		{2, 3500 * time.Millisecond},
		{5, 5 * time.Second},
		{7, 6 * time.Second},
		{20, 6 * time.Second},
	}

	for _, tt := range tests {
		if got := cfg.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

// Attempt 3 reports a jackpot of 125000000000 motes: the poll stops with
// the entry at 125 CSPR.
func TestSettler_SettlesOnThirdAttempt(t *testing.T) {
	f := &fakePlays{respond: func(call int32) ([]api.Play, error) {
		if call < 3 {
			return pendingPlays(call)
		}
		return []api.Play{{
			RequestID:     "0x5",
			Status:        "settled",
			IsJackpot:     true,
			JackpotAmount: "125000000000",
		}}, nil
	}}

	var results []SettlementResult
	s := NewSettler(fastSettlementConfig(), f, nil, nil)
	started := s.Poll(context.Background(), "acct", "0x5", func(r SettlementResult) {
		results = append(results, r)
	})

	if !started {
		t.Fatal("Poll() = false, want true")
	}
	if len(results) != 1 {
		t.Fatalf("handler calls = %d, want 1", len(results))
	}
	r := results[0]
	if !r.Settled || r.Exhausted || r.Attempts != 3 {
		t.Errorf("result = settled:%v exhausted:%v attempts:%d", r.Settled, r.Exhausted, r.Attempts)
	}
	if r.Entry.Status != model.StatusWonJackpot {
		t.Errorf("Status = %q, want %q", r.Entry.Status, model.StatusWonJackpot)
	}
	if !r.Entry.Prize().Equal(decimal.NewFromInt(125)) {
		t.Errorf("PrizeAmount = %s, want 125", r.Entry.Prize())
	}
	if f.calls.Load() != 3 {
		t.Errorf("fetches = %d, want 3", f.calls.Load())
	}
	if s.InFlight("0x5") {
		t.Error("poll should no longer be in flight")
	}
}

func TestSettler_ExhaustsAfterTwentyAttempts(t *testing.T) {
	f := &fakePlays{respond: pendingPlays}

	var results []SettlementResult
	s := NewSettler(fastSettlementConfig(), f, nil, nil)
	s.Poll(context.Background(), "acct", "0x5", func(r SettlementResult) {
		results = append(results, r)
	})

	// 20 attempts plus one final fetch.
	if f.calls.Load() != 21 {
		t.Errorf("fetches = %d, want 21", f.calls.Load())
	}
	if len(results) != 1 {
		t.Fatalf("handler calls = %d, want exactly one final merge", len(results))
	}
	r := results[0]
	if !r.Exhausted || r.Settled {
		t.Errorf("result = exhausted:%v settled:%v, want exhausted pending", r.Exhausted, r.Settled)
	}
	if len(r.Snapshot) != 2 {
		t.Errorf("len(Snapshot) = %d, want 2", len(r.Snapshot))
	}
}

func TestSettler_FetchErrorsCountAsAttempts(t *testing.T) {
	f := &fakePlays{respond: func(call int32) ([]api.Play, error) {
		if call <= 20 {
			return nil, errors.New("connection reset")
		}
		return []api.Play{{RequestID: "0x5", Status: "settled"}}, nil
	}}

	var got SettlementResult
	s := NewSettler(fastSettlementConfig(), f, nil, nil)
	s.Poll(context.Background(), "acct", "0x5", func(r SettlementResult) { got = r })

	if f.calls.Load() != 21 {
		t.Errorf("fetches = %d, want 21", f.calls.Load())
	}
	if !got.Exhausted || !got.Settled || got.Entry.Status != model.StatusLost {
		t.Errorf("result = %+v", got)
	}
}

func TestSettler_FinalFetchFailureSkipsHandler(t *testing.T) {
	cfg := fastSettlementConfig()
	cfg.MaxAttempts = 2
	f := &fakePlays{respond: func(call int32) ([]api.Play, error) {
		if call <= 2 {
			return pendingPlays(call)
		}
		return nil, errors.New("down")
	}}

	called := false
	NewSettler(cfg, f, nil, nil).Poll(context.Background(), "acct", "0x5", func(SettlementResult) { called = true })
	if called {
		t.Error("handler should not run when the final fetch fails")
	}
}

func TestSettler_OnePollPerID(t *testing.T) {
	cfg := fastSettlementConfig()
	cfg.MinBackoff = 50 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond
	cfg.MaxAttempts = 2

	f := &fakePlays{respond: pendingPlays}
	s := NewSettler(cfg, f, nil, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Poll(context.Background(), "acct", "0x5", nil)
	}()

	deadline := time.Now().Add(time.Second)
	for !s.InFlight("0x5") {
		if time.Now().After(deadline) {
			t.Fatal("first poll never started")
		}
		time.Sleep(time.Millisecond)
	}

	if s.Poll(context.Background(), "acct", "0x5", nil) {
		t.Error("second Poll for the same id should be a no-op")
	}
	wg.Wait()

	if f.calls.Load() != 3 {
		t.Errorf("fetches = %d, want 3 from the single poll", f.calls.Load())
	}
}

func TestSettler_Cancelled(t *testing.T) {
	cfg := fastSettlementConfig()
	cfg.MinBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	f := &fakePlays{respond: pendingPlays}
	s := NewSettler(cfg, f, nil, nil)

	done := make(chan struct{})
	called := false
	go func() {
		s.Poll(ctx, "acct", "0x5", func(SettlementResult) { called = true })
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Poll did not return after cancel")
	}
	if called || f.calls.Load() != 0 {
		t.Errorf("called=%v fetches=%d, want no activity", called, f.calls.Load())
	}
}

func TestConvertPlays_SkipsMissingRequestID(t *testing.T) {
	entries := ConvertPlays([]api.Play{
		{RequestID: "0x1", Status: "pending"},
		{EntryDeployHash: "abc", Status: "pending"},
	}, decimal.NewFromInt(50), nil)

	if len(entries) != 1 || entries[0].RequestID != "0x1" {
		t.Errorf("entries = %+v", entries)
	}
}
