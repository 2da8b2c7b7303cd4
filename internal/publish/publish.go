// Package publish fans outcome signals out over NATS.
//
// Each signal is published as JSON on "{subject}.{account}" with the signal
// id in the Nats-Msg-Id header, so a JetStream stream bound to the subject
// drops replays.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rickgao/drawsync/internal/outcome"
)

// Conn is the subset of *nats.Conn the Publisher uses.
type Conn interface {
	PublishMsg(m *nats.Msg) error
}

// Publisher is an outcome.Sink backed by NATS.
type Publisher struct {
	conn    Conn
	subject string
	logger  *slog.Logger
}

// New creates a Publisher publishing under subject.
func New(conn Conn, subject string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:    conn,
		subject: strings.TrimSuffix(subject, "."),
		logger:  logger.With("component", "publish"),
	}
}

// Connect dials a NATS server with reconnect logging.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "nats")

	nc, err := nats.Connect(url,
		nats.Name("drawsync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// Subject returns the subject signals for account are published on.
func (p *Publisher) Subject(account string) string {
	return p.subject + "." + account
}

// Name implements outcome.Sink.
func (p *Publisher) Name() string {
	return "nats"
}

// Publish implements outcome.Sink.
func (p *Publisher) Publish(ctx context.Context, sig outcome.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	msg := nats.NewMsg(p.Subject(sig.Account))
	msg.Header.Set(nats.MsgIdHdr, sig.ID.String())
	msg.Data = data

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}

	p.logger.Debug("outcome published", "subject", msg.Subject, "request_id", sig.RequestID)
	return nil
}
