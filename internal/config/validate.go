package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Account == "" {
		return errors.New("account is required")
	}
	if c.API.RestURL == "" {
		return errors.New("api.rest_url is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	price, err := c.Ticket.Price()
	if err != nil {
		return err
	}
	if !price.IsPositive() {
		return fmt.Errorf("ticket.price_cspr must be positive, got %s", price)
	}

	if c.Resolver.MaxAttempts < 1 {
		return errors.New("resolver.max_attempts must be >= 1")
	}
	if c.Settlement.MaxAttempts < 1 {
		return errors.New("settlement.max_attempts must be >= 1")
	}
	if c.Settlement.MinBackoff > c.Settlement.MaxBackoff {
		return fmt.Errorf("settlement.min_backoff (%s) cannot exceed max_backoff (%s)",
			c.Settlement.MinBackoff, c.Settlement.MaxBackoff)
	}
	if c.Fulfillment.MaxReconnects < 0 {
		return errors.New("fulfillment.max_reconnects must be >= 0")
	}
	if c.Refund.Window <= 0 {
		return errors.New("refund.window must be positive")
	}
	if c.Refresh.Interval <= 0 {
		return errors.New("refresh.interval must be positive")
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errors.New("nats.url is required")
		}
		if c.NATS.Subject == "" {
			return errors.New("nats.subject is required")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
