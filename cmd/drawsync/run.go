package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rickgao/drawsync/internal/api"
	"github.com/rickgao/drawsync/internal/config"
	"github.com/rickgao/drawsync/internal/engine"
	"github.com/rickgao/drawsync/internal/journal"
	"github.com/rickgao/drawsync/internal/metrics"
	"github.com/rickgao/drawsync/internal/money"
	"github.com/rickgao/drawsync/internal/outcome"
	"github.com/rickgao/drawsync/internal/publish"
	"github.com/rickgao/drawsync/internal/version"
	"github.com/rickgao/drawsync/internal/wallet"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Track the account until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func run(parent context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting drawsync",
		"version", version.Version,
		"commit", version.Commit,
		"account", cfg.Account,
		"api_url", cfg.API.RestURL,
	)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	client := newClient(cfg, logger)
	if err := client.Health(ctx); err != nil {
		logger.Warn("backend health check failed, continuing", "error", err)
	}

	var (
		sinks []outcome.Sink
		pool  *pgxpool.Pool
		jrnl  *journal.Journal
		nc    *nats.Conn
	)

	if cfg.Journal.Enabled {
		var err error
		pool, err = journal.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			return fmt.Errorf("connect journal: %w", err)
		}
		defer pool.Close()

		jrnl = journal.New(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, pool, logger)
		if err := jrnl.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := jrnl.Start(ctx); err != nil {
			return err
		}
		sinks = append(sinks, jrnl)
	}

	if cfg.NATS.Enabled {
		var err error
		nc, err = publish.Connect(cfg.NATS.URL, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		sinks = append(sinks, publish.New(nc, cfg.NATS.Subject, logger))
	}

	ecfg, err := engineConfig(cfg)
	if err != nil {
		return err
	}
	eng := engine.New(ecfg, client,
		engine.WithMetrics(m),
		engine.WithLogger(logger),
		engine.WithSinks(sinks...),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newHandler(cfg, reg, client, eng, pool, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting http server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	logger.Info("drawsync running",
		"fulfillment", cfg.API.WSURL != "",
		"sinks", len(sinks),
	)

	report(ctx, cfg, eng, logger)

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	var errs []error
	if err := eng.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop engine: %w", err))
	}
	if jrnl != nil {
		if err := jrnl.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop journal: %w", err))
		}
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop http server: %w", err))
	}

	logger.Info("drawsync stopped")
	return errors.Join(errs...)
}

// report logs outcomes and fulfillment events until ctx is done.
func report(ctx context.Context, cfg *config.Config, eng *engine.Engine, logger *slog.Logger) {
	places := cfg.Ticket.DisplayPlaces
	outcomes := eng.Outcomes()
	ready := eng.Ready()

	for {
		select {
		case <-ctx.Done():
			return

		case sig, ok := <-outcomes:
			if !ok {
				return
			}
			attrs := []any{
				"request_id", sig.RequestID,
				"play_id", sig.PlayID,
				"round_id", sig.RoundID,
				"status", sig.Status,
			}
			if sig.Win {
				attrs = append(attrs, "prize_cspr", money.FormatWithCommas(sig.Prize, places))
			}
			if sig.SettleHash != "" {
				attrs = append(attrs, "explorer", wallet.ExplorerURL(cfg.API.ExplorerURL, sig.SettleHash))
			}
			logger.Info("ticket concluded", attrs...)

			stats := eng.Stats()
			logger.Info("account totals",
				"pending", stats.Pending,
				"settled", stats.Settled,
				"wins", stats.Wins,
				"net_cspr", money.Format(stats.NetProfit, places),
			)

		case ev, ok := <-ready:
			if !ok {
				return
			}
			logger.Info("ticket ready to settle",
				"request_id", ev.RequestID,
				"state", ev.State,
				"randomness", ev.Randomness,
			)
		}
	}
}

// newHandler serves Prometheus metrics, a health summary, the account's
// refund windows and settlement tracking requests.
func newHandler(cfg *config.Config, reg *prometheus.Registry, client *api.Client, eng *engine.Engine, pool *pgxpool.Pool, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := client.Health(ctx); err != nil {
			health.Status = "degraded"
			health.Components["backend"] = map[string]string{
				"status": "unreachable",
				"error":  err.Error(),
			}
		} else {
			health.Components["backend"] = "connected"
		}

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["journal"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["journal"] = "connected"
			}
		}

		stats := eng.Stats()
		health.Components["tickets"] = map[string]any{
			"tracked": len(eng.Entries()),
			"pending": stats.Pending,
			"round":   eng.Round().RoundID,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Debug("health response write failed", "error", err)
		}
	})

	mux.HandleFunc("/refunds", func(w http.ResponseWriter, r *http.Request) {
		var body any = eng.RefundStatuses()
		if id := r.URL.Query().Get("id"); id != "" {
			status, ok := eng.RefundStatus(id)
			if !ok {
				http.Error(w, "unknown ticket", http.StatusNotFound)
				return
			}
			body = status
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logger.Debug("refunds response write failed", "error", err)
		}
	})

	mux.HandleFunc("POST /settlements/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		err := eng.AwaitSettlement(r.Context(), id)
		switch {
		case err == nil:
			logger.Info("tracking external settlement", "request_id", id)
			w.WriteHeader(http.StatusAccepted)
		case errors.Is(err, engine.ErrUnknownTicket):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, engine.ErrPlaceholder), errors.Is(err, engine.ErrAlreadySettled):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		}
	})

	return mux
}
