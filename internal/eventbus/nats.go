package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes outcome events on core NATS subjects.
type NATS struct {
	nc conn
}

var _ Publisher = (*NATS)(nil)

// ConnectNATS dials url and returns a publisher that reconnects indefinitely.
func ConnectNATS(url string) (*NATS, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("workforce-signals"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NATS{nc: nc}, nil
}

// Publish sends evt as JSON on its outcome subject.
func (n *NATS) Publish(ctx context.Context, evt OutcomeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.nc.Publish(evt.Subject(), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", evt.Subject(), err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}
