package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL            = "http://localhost:3001/api"
	DefaultWSURL              = "ws://localhost:3001/ws"
	DefaultExplorerURL        = "https://testnet.cspr.live"
	DefaultAPITimeout         = 10 * time.Second
	DefaultTicketPrice        = "50"
	DefaultDisplayPlaces      = 2
	DefaultResolveAttempts    = 15
	DefaultResolveInterval    = 2 * time.Second
	DefaultSettleAttempts     = 20
	DefaultSettleMinBackoff   = 3 * time.Second
	DefaultSettleMaxBackoff   = 6 * time.Second
	DefaultSettleBackoffStep  = 500 * time.Millisecond
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 90 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultMaxReconnects      = 3
	DefaultRefundWindow       = 60 * time.Second
	DefaultRefreshInterval    = 30 * time.Second
	DefaultRefreshTimeout     = 10 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultJournalBatchSize   = 100
	DefaultJournalFlush       = 1 * time.Second
	DefaultNATSURL            = "nats://127.0.0.1:4222"
	DefaultNATSSubject        = "drawsync.outcomes"
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// Default returns a Config with every default applied and no account.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	// API defaults; max_retries stays 0 unless set.
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.ExplorerURL == "" {
		c.API.ExplorerURL = DefaultExplorerURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	if c.Ticket.PriceCSPR == "" {
		c.Ticket.PriceCSPR = DefaultTicketPrice
	}
	if c.Ticket.DisplayPlaces == 0 {
		c.Ticket.DisplayPlaces = DefaultDisplayPlaces
	}

	if c.Resolver.MaxAttempts == 0 {
		c.Resolver.MaxAttempts = DefaultResolveAttempts
	}
	if c.Resolver.Interval == 0 {
		c.Resolver.Interval = DefaultResolveInterval
	}

	if c.Settlement.MaxAttempts == 0 {
		c.Settlement.MaxAttempts = DefaultSettleAttempts
	}
	if c.Settlement.MinBackoff == 0 {
		c.Settlement.MinBackoff = DefaultSettleMinBackoff
	}
	if c.Settlement.MaxBackoff == 0 {
		c.Settlement.MaxBackoff = DefaultSettleMaxBackoff
	}
	if c.Settlement.BackoffStep == 0 {
		c.Settlement.BackoffStep = DefaultSettleBackoffStep
	}

	if c.Fulfillment.PingInterval == 0 {
		c.Fulfillment.PingInterval = DefaultPingInterval
	}
	if c.Fulfillment.PingTimeout == 0 {
		c.Fulfillment.PingTimeout = DefaultPingTimeout
	}
	if c.Fulfillment.WriteTimeout == 0 {
		c.Fulfillment.WriteTimeout = DefaultWriteTimeout
	}
	if c.Fulfillment.ReconnectBaseDelay == 0 {
		c.Fulfillment.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Fulfillment.ReconnectMaxDelay == 0 {
		c.Fulfillment.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Fulfillment.MaxReconnects == 0 {
		c.Fulfillment.MaxReconnects = DefaultMaxReconnects
	}

	if c.Refund.Window == 0 {
		c.Refund.Window = DefaultRefundWindow
	}

	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = DefaultRefreshInterval
	}
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = DefaultRefreshTimeout
	}

	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultJournalBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultJournalFlush
	}

	if c.NATS.URL == "" {
		c.NATS.URL = DefaultNATSURL
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = DefaultNATSSubject
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
