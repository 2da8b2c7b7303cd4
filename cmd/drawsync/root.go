package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/drawsync/internal/api"
	"github.com/rickgao/drawsync/internal/config"
	"github.com/rickgao/drawsync/internal/engine"
	"github.com/rickgao/drawsync/internal/fulfillment"
	"github.com/rickgao/drawsync/internal/poller"
	"github.com/rickgao/drawsync/internal/resolver"
)

const appName = "drawsync"

var rootCmd = &cobra.Command{
	Use:          appName + " [OPTIONS] [COMMANDS]",
	Short:        "Track lottery tickets for one account",
	SilenceUsage: true,
}

var (
	confPath string
	account  string
	logLevel string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&confPath, "config", "c", "", "config file (built-in defaults when empty)")
	rootCmd.PersistentFlags().StringVarP(&account, "account", "a", "", "player public key, overrides the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
}

// loadConfig reads the config file (or the defaults), applies flag
// overrides and validates the result.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if confPath != "" {
		loaded, err := config.LoadWithDefaults(confPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if account != "" {
		cfg.Account = account
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newClient(cfg *config.Config, logger *slog.Logger) *api.Client {
	opts := []api.ClientOption{
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger),
	}
	if cfg.API.MaxRetries > 0 {
		opts = append(opts, api.WithRetries(cfg.API.MaxRetries, time.Second))
	}
	return api.NewClient(cfg.API.RestURL, opts...)
}

// engineConfig maps the file config onto the engine's component configs.
func engineConfig(cfg *config.Config) (engine.Config, error) {
	price, err := cfg.Ticket.Price()
	if err != nil {
		return engine.Config{}, err
	}

	ec := engine.DefaultConfig(cfg.Account)
	ec.TicketPrice = price
	ec.RefundWindow = cfg.Refund.Window

	ec.Resolver = resolver.Config{
		MaxAttempts: cfg.Resolver.MaxAttempts,
		Interval:    cfg.Resolver.Interval,
	}

	ec.Settlement = poller.SettlementConfig{
		MaxAttempts: cfg.Settlement.MaxAttempts,
		MinBackoff:  cfg.Settlement.MinBackoff,
		MaxBackoff:  cfg.Settlement.MaxBackoff,
		BackoffStep: cfg.Settlement.BackoffStep,
		Timeout:     cfg.API.Timeout,
	}

	ec.Refresh = poller.RefreshConfig{
		Interval: cfg.Refresh.Interval,
		Timeout:  cfg.Refresh.Timeout,
	}

	transport := fulfillment.DefaultTransportConfig()
	transport.URL = cfg.API.WSURL
	transport.PingInterval = cfg.Fulfillment.PingInterval
	transport.PingTimeout = cfg.Fulfillment.PingTimeout
	if cfg.Fulfillment.WriteTimeout > 0 {
		transport.WriteTimeout = cfg.Fulfillment.WriteTimeout
	}
	ec.Fulfillment = fulfillment.Config{
		Transport:         transport,
		ReconnectBaseWait: cfg.Fulfillment.ReconnectBaseDelay,
		ReconnectMaxWait:  cfg.Fulfillment.ReconnectMaxDelay,
		MaxReconnects:     cfg.Fulfillment.MaxReconnects,
	}

	return ec, nil
}
