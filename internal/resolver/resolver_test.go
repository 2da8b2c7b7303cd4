package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/drawsync/internal/api"
	"github.com/rickgao/drawsync/internal/model"
	"github.com/rickgao/drawsync/internal/store"
)

type fakeFetcher struct {
	calls   atomic.Int32
	respond func(call int32) (*api.Play, error)
}

func (f *fakeFetcher) GetPlayByDeployHash(ctx context.Context, deployHash string) (*api.Play, error) {
	return f.respond(f.calls.Add(1))
}

func testConfig() Config {
	return Config{MaxAttempts: 15, Interval: time.Millisecond, TicketCost: decimal.NewFromInt(50)}
}

func notFound() error {
	return &api.APIError{StatusCode: http.StatusNotFound}
}

func TestResolve_FoundAfterNotFound(t *testing.T) {
	f := &fakeFetcher{respond: func(call int32) (*api.Play, error) {
		if call < 3 {
			return nil, notFound()
		}
		return &api.Play{RequestID: "0x5", PlayID: "12", Status: "pending"}, nil
	}}

	res := New(testConfig(), f, nil, nil).Resolve(context.Background(), "0xDEPLOY1")
	if res == nil {
		t.Fatal("Resolve() = nil, want result")
	}
	if res.RequestID != "0x5" {
		t.Errorf("RequestID = %q, want %q", res.RequestID, "0x5")
	}
	if f.calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", f.calls.Load())
	}
}

func TestResolve_ExhaustsAttempts(t *testing.T) {
	f := &fakeFetcher{respond: func(int32) (*api.Play, error) { return nil, notFound() }}

	if res := New(testConfig(), f, nil, nil).Resolve(context.Background(), "D"); res != nil {
		t.Errorf("Resolve() = %+v, want nil", res)
	}
	if f.calls.Load() != 15 {
		t.Errorf("calls = %d, want 15", f.calls.Load())
	}
}

func TestResolve_AbortsOnServerError(t *testing.T) {
	f := &fakeFetcher{respond: func(int32) (*api.Play, error) {
		return nil, &api.APIError{StatusCode: http.StatusInternalServerError}
	}}

	if res := New(testConfig(), f, nil, nil).Resolve(context.Background(), "D"); res != nil {
		t.Errorf("Resolve() = %+v, want nil", res)
	}
	if f.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", f.calls.Load())
	}
}

func TestResolve_RetriesTransportErrors(t *testing.T) {
	f := &fakeFetcher{respond: func(call int32) (*api.Play, error) {
		if call == 1 {
			return nil, errors.New("connection refused")
		}
		return &api.Play{RequestID: "0x9"}, nil
	}}

	res := New(testConfig(), f, nil, nil).Resolve(context.Background(), "D")
	if res == nil || res.RequestID != "0x9" {
		t.Errorf("Resolve() = %+v, want 0x9", res)
	}
}

func TestResolve_Cancelled(t *testing.T) {
	f := &fakeFetcher{respond: func(int32) (*api.Play, error) { return nil, notFound() }}
	cfg := testConfig()
	cfg.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Result)
	go func() { done <- New(cfg, f, nil, nil).Resolve(ctx, "D") }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		if res != nil {
			t.Errorf("Resolve() = %+v, want nil", res)
		}
	case <-time.After(time.Second):
		t.Fatal("Resolve did not return after cancel")
	}
}

func TestResolve_HTTPBackend(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"request_id":"0x5","play_id":"12","status":"pending","round_id":2}`))
	}))
	defer server.Close()

	res := New(testConfig(), api.NewClient(server.URL), nil, nil).Resolve(context.Background(), "0xDEPLOY1")
	if res == nil || res.RequestID != "0x5" {
		t.Fatalf("Resolve() = %+v, want 0x5", res)
	}
}

// Placeholder 0xDEPLOY1 resolves to 0x5 and is rekeyed in the store with its
// awaiting flag untouched.
func TestResolve_RekeyPlaceholder(t *testing.T) {
	s := store.New()
	placeholder := model.NewPlaceholder("0xDEPLOY1", model.Round{RoundID: 2}, decimal.NewFromInt(50), time.Now())
	s.Upsert(placeholder)

	f := &fakeFetcher{respond: func(int32) (*api.Play, error) {
		return &api.Play{RequestID: "0x5", PlayID: "12", Status: "pending"}, nil
	}}
	res := New(testConfig(), f, nil, nil).Resolve(context.Background(), "0xDEPLOY1")
	if res == nil {
		t.Fatal("Resolve() = nil")
	}

	if _, ok := s.Rekey("0xDEPLOY1", res.RequestID, res.Patch); !ok {
		t.Fatal("Rekey failed")
	}

	all := s.All()
	if len(all) != 1 {
		t.Fatalf("len(All()) = %d, want 1", len(all))
	}
	got := all[0]
	if got.RequestID != "0x5" {
		t.Errorf("RequestID = %q, want %q", got.RequestID, "0x5")
	}
	if got.PlayID != "12" {
		t.Errorf("PlayID = %q, want %q", got.PlayID, "12")
	}
	if got.IsPlaceholder {
		t.Error("IsPlaceholder should be false")
	}
	if got.AwaitingFulfillment != placeholder.AwaitingFulfillment {
		t.Errorf("AwaitingFulfillment = %v, want %v", got.AwaitingFulfillment, placeholder.AwaitingFulfillment)
	}
	if got.Tx.Entry != "0xDEPLOY1" {
		t.Errorf("Tx.Entry = %q, want deploy hash", got.Tx.Entry)
	}
	if _, ok := s.Get("0xDEPLOY1"); ok {
		t.Error("placeholder key still present")
	}
}

func TestResultPatch_TerminalClearsAwaiting(t *testing.T) {
	prize := decimal.NewFromInt(125)
	res := &Result{
		DeployHash: "D",
		RequestID:  "0x5",
		Entry:      model.Entry{RequestID: "0x5", Status: model.StatusWonJackpot, PrizeAmount: &prize},
	}

	got := res.Patch(model.Entry{RequestID: "D", AwaitingFulfillment: true, IsPlaceholder: true})
	if got.AwaitingFulfillment {
		t.Error("terminal status should clear AwaitingFulfillment")
	}
	if got.Status != model.StatusWonJackpot || got.Prize().Cmp(prize) != 0 {
		t.Errorf("Status/Prize = %q/%s", got.Status, got.Prize())
	}
}
