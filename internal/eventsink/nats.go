package eventsink

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"imagegate/internal/storage"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type NATSSink struct {
	conn    natsConn
	subject string
}

func NewNATS(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("imagegate"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

// Publish sends to <subject>.<type>, e.g. imagegate.events.generate_finish.
func (n *NATSSink) Publish(ctx context.Context, e storage.EngineEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := Encode(e)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject+"."+e.Type, b); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (n *NATSSink) Close() error {
	return n.conn.Drain()
}
