// Package bus publishes and consumes status events on a pub/sub channel.
// Delivery is fire-and-forget: a subscriber only sees events published while
// its feed is open, and nothing is replayed.
package bus

import (
	"context"
	"log/slog"

	"github.com/tendant/simple-renderer/pkg/schema"
)

const feedBuffer = 64

// Bus is implemented by every backend.
type Bus interface {
	Publish(ctx context.Context, evt schema.StatusEvent) error
	// Subscribe returns a live feed that is closed when ctx is done or the
	// underlying subscription ends. A closed feed is not restarted.
	Subscribe(ctx context.Context) (<-chan schema.StatusEvent, error)
	Ping(ctx context.Context) error
}

func forward(ctx context.Context, out chan<- schema.StatusEvent, payload []byte, logger *slog.Logger) {
	evt, err := schema.DecodeStatusEvent(payload)
	if err != nil {
		logger.Warn("dropping undecodable event", "err", err, "payload", string(payload))
		return
	}
	select {
	case out <- evt:
	case <-ctx.Done():
	}
}
