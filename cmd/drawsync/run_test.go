package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/drawsync/internal/api"
	"github.com/rickgao/drawsync/internal/config"
	"github.com/rickgao/drawsync/internal/engine"
	"github.com/rickgao/drawsync/internal/metrics"
)

const testPlays = `{"plays":[{"request_id":"0x5","play_id":"12","round_id":1,"status":"pending"}]}`

// newTestHandler serves the run handler against a fake backend. The engine
// is started only when start is set.
func newTestHandler(t *testing.T, backendStatus int, start bool) (http.Handler, *engine.Engine) {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(backendStatus)
		if strings.HasSuffix(r.URL.Path, "/plays") {
			w.Write([]byte(testPlays))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(backend.Close)

	cfg := config.Default()
	cfg.Account = "01abcdef"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := api.NewClient(backend.URL+"/api", api.WithLogger(logger))

	ecfg := engine.DefaultConfig(cfg.Account)
	ecfg.Refresh.Interval = time.Hour
	eng := engine.New(ecfg, client, engine.WithMetrics(m), engine.WithLogger(logger))

	if start {
		if err := eng.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			eng.Stop(ctx)
		})
	}

	return newHandler(cfg, reg, client, eng, nil, logger), eng
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name          string
		backendStatus int
		wantStatus    string
	}{
		{"backend up", http.StatusOK, "healthy"},
		{"backend down", http.StatusBadGateway, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, tt.backendStatus, false)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != http.StatusOK {
				t.Errorf("code = %d, want %d", rec.Code, http.StatusOK)
			}

			var body struct {
				Status     string         `json:"status"`
				Components map[string]any `json:"components"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if _, ok := body.Components["tickets"]; !ok {
				t.Error("components missing tickets")
			}
		})
	}
}

func TestRefundsHandlerUnknownTicket(t *testing.T) {
	h, _ := newTestHandler(t, http.StatusOK, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/refunds?id=0x9", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestMetricsHandler(t *testing.T) {
	h, _ := newTestHandler(t, http.StatusOK, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestSettlementsHandlerStopped(t *testing.T) {
	h, _ := newTestHandler(t, http.StatusOK, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/settlements/0x5", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestSettlementsHandler(t *testing.T) {
	h, eng := newTestHandler(t, http.StatusOK, true)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := eng.Entry("0x5"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for first refresh")
		}
		time.Sleep(5 * time.Millisecond)
	}

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"known ticket", http.MethodPost, "/settlements/0x5", http.StatusAccepted},
		{"unknown ticket", http.MethodPost, "/settlements/0x9", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/settlements/0x5", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
