// internal/bus/nats.go
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tendant/simple-renderer/pkg/schema"
)

type Client struct{ nc *nats.Conn }

func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("simple-renderer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) Conn() *nats.Conn { return c.nc }

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

var _ Bus = (*NATS)(nil)

// NATS carries status events on a core NATS subject. When a queue group is
// set, each request is delivered to one subscriber of the group only.
type NATS struct {
	client  *Client
	subject string
	queue   string
	logger  *slog.Logger
}

func NewNATS(c *Client, subject, queue string, logger *slog.Logger) *NATS {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{client: c, subject: subject, queue: queue, logger: logger}
}

func (b *NATS) Publish(_ context.Context, evt schema.StatusEvent) error {
	return b.client.PublishJSON(b.subject, evt)
}

func (b *NATS) Subscribe(ctx context.Context) (<-chan schema.StatusEvent, error) {
	msgs := make(chan *nats.Msg, feedBuffer)
	var (
		sub *nats.Subscription
		err error
	)
	if b.queue != "" {
		sub, err = b.client.nc.ChanQueueSubscribe(b.subject, b.queue, msgs)
	} else {
		sub, err = b.client.nc.ChanSubscribe(b.subject, msgs)
	}
	if err != nil {
		return nil, err
	}

	out := make(chan schema.StatusEvent, feedBuffer)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if b.client.nc.IsClosed() {
					b.logger.Warn("nats connection closed, ending feed", "subject", b.subject)
					return
				}
			case msg := <-msgs:
				forward(ctx, out, msg.Data, b.logger)
			}
		}
	}()
	return out, nil
}

func (b *NATS) Ping(context.Context) error {
	if b.client.nc.IsClosed() {
		return errors.New("bus/nats: connection closed")
	}
	if !b.client.nc.IsConnected() {
		return errors.New("bus/nats: not connected")
	}
	return nil
}
