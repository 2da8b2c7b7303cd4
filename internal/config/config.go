package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration for a drawsync instance.
type Config struct {
	Account     string            `yaml:"account"` // player public key hex
	API         APIConfig         `yaml:"api"`
	Ticket      TicketConfig      `yaml:"ticket"`
	Resolver    ResolverConfig    `yaml:"resolver"`
	Settlement  SettlementConfig  `yaml:"settlement"`
	Fulfillment FulfillmentConfig `yaml:"fulfillment"`
	Refund      RefundConfig      `yaml:"refund"`
	Refresh     RefreshConfig     `yaml:"refresh"`
	Journal     JournalConfig     `yaml:"journal"`
	NATS        NATSConfig        `yaml:"nats"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// APIConfig holds lottery backend settings.
type APIConfig struct {
	RestURL     string        `yaml:"rest_url"`
	WSURL       string        `yaml:"ws_url"`
	ExplorerURL string        `yaml:"explorer_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// TicketConfig holds ticket pricing and display settings.
type TicketConfig struct {
	PriceCSPR     string `yaml:"price_cspr"`
	DisplayPlaces int32  `yaml:"display_places"`
}

// Price parses PriceCSPR.
func (t TicketConfig) Price() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(t.PriceCSPR)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse ticket.price_cspr %q: %w", t.PriceCSPR, err)
	}
	return d, nil
}

// ResolverConfig holds deploy hash resolution settings.
type ResolverConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

// SettlementConfig holds settlement polling settings.
type SettlementConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	MinBackoff  time.Duration `yaml:"min_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	BackoffStep time.Duration `yaml:"backoff_step"`
}

// FulfillmentConfig holds push channel settings.
type FulfillmentConfig struct {
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnects      int           `yaml:"max_reconnects"`
}

// RefundConfig holds refund timing settings.
type RefundConfig struct {
	Window time.Duration `yaml:"window"`
}

// RefreshConfig holds periodic refresh settings.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// JournalConfig holds the outcome journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// NATSConfig holds outcome publishing settings.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
