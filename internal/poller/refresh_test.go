package poller

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
)

func TestRefresher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/lottery/current":
			w.Write([]byte(`{"round":{"round_id":3,"total_plays":9},"stats":{"current_jackpot":"5000000000000"}}`))
		case "/player/acct/plays":
			w.Write([]byte(`{"plays":[{"request_id":"0x1","play_id":"1","status":"pending"},{"request_id":"0x2","play_id":"2","status":"settled","prize_amount":"0"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := api.NewClient(server.URL, api.WithTimeout(5*time.Second))
	r := NewRefresher(DefaultRefreshConfig(), client, "acct", nil, nil, nil)

	snap := r.Fetch(context.Background())
	if snap.RoundErr != nil || snap.PlaysErr != nil {
		t.Fatalf("errors = %v / %v", snap.RoundErr, snap.PlaysErr)
	}
	if snap.Round == nil || snap.Round.RoundID != 3 || snap.Round.NextPlayIDHint != "0xa" {
		t.Errorf("Round = %+v", snap.Round)
	}
	if !snap.Round.PrizePool.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("PrizePool = %s, want 5000", snap.Round.PrizePool)
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(snap.Entries))
	}
}

type failingSource struct{}

func (failingSource) GetPlayerPlays(context.Context, string, string) ([]api.Play, error) {
	return nil, errors.New("plays down")
}

func (failingSource) GetCurrentLottery(context.Context) (*api.LotteryCurrent, error) {
	return &api.LotteryCurrent{Round: &api.LotteryRound{RoundID: 2}}, nil
}

func TestRefresher_FetchPartialFailure(t *testing.T) {
	r := NewRefresher(DefaultRefreshConfig(), failingSource{}, "acct", nil, nil, nil)

	snap := r.Fetch(context.Background())
	if snap.PlaysErr == nil {
		t.Error("PlaysErr should be set")
	}
	if snap.Entries != nil {
		t.Errorf("Entries = %v, want nil", snap.Entries)
	}
	if snap.Round == nil || snap.Round.RoundID != 2 {
		t.Errorf("Round = %+v, round half should still succeed", snap.Round)
	}
}

func TestRefresher_StartStopAndTrigger(t *testing.T) {
	var snapshots atomic.Int32
	handler := SnapshotHandlerFunc(func(Snapshot) { snapshots.Add(1) })

	cfg := DefaultRefreshConfig()
	cfg.Interval = time.Hour

	r := NewRefresher(cfg, failingSource{}, "acct", handler, nil, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor := func(n int32) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for snapshots.Load() < n {
			if time.Now().After(deadline) {
				t.Fatalf("snapshots = %d, want %d", snapshots.Load(), n)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	waitFor(1)
	r.Trigger()
	waitFor(2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
