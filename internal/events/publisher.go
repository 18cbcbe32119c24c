// Package events publishes posting-change events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/jobwatch/crawler/internal/crawler"
)

// DefaultSubject is the subject change events are published on when the
// config does not name one.
const DefaultSubject = "jobs.changed"

const connectTimeout = 10 * time.Second

// Publisher emits crawler.ChangeEvent messages over a NATS connection.
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewPublisher connects to NATS. The connection retries in the background,
// so a bus that is briefly down does not fail startup.
func NewPublisher(natsURL, subject string, logger *zap.Logger) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	opts := []nats.Option{
		nats.Timeout(connectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	return &Publisher{
		nc:      nc,
		subject: subject,
		logger:  logger,
	}, nil
}

// PublishChange implements crawler.Publisher.
func (p *Publisher) PublishChange(_ context.Context, event crawler.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}

	p.logger.Debug("published change event",
		zap.String("subject", p.subject),
		zap.String("url", event.URL),
		zap.String("outcome", string(event.Outcome)),
	)
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
