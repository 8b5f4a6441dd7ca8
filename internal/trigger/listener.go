package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/tendant/simple-renderer/pkg/schema"
)

// Subscriber opens a live feed of status events.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan schema.StatusEvent, error)
}

// RequestDispatcher accepts render requests.
type RequestDispatcher interface {
	Dispatch(ctx context.Context, sessionID, trigger string) error
}

// IsWorkerStatus reports whether status is one the worker publishes itself.
// Requests and outcomes can share a channel, so these must not be treated as
// new requests.
func IsWorkerStatus(status schema.JobStatus) bool {
	switch status {
	case schema.StatusProcessing, schema.StatusCompleted, schema.StatusError:
		return true
	}
	return false
}

// Listener turns bus events into render requests.
type Listener struct {
	sub        Subscriber
	dispatcher RequestDispatcher
	retry      time.Duration
	logger     *slog.Logger
}

func NewListener(sub Subscriber, d RequestDispatcher, retry time.Duration, logger *slog.Logger) *Listener {
	if retry <= 0 {
		retry = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{sub: sub, dispatcher: d, retry: retry, logger: logger}
}

// Run consumes the feed until ctx is done. A feed that ends or fails to open
// is replaced by a fresh subscription after the retry delay; events published
// in between are not recovered.
func (l *Listener) Run(ctx context.Context) {
	for {
		feed, err := l.sub.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Error("subscribe failed", "err", err, "retry_in", l.retry)
		} else {
			l.logger.Info("listening for render requests")
			l.consume(ctx, feed)
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("request feed closed, resubscribing", "retry_in", l.retry)
		}

		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (l *Listener) consume(ctx context.Context, feed <-chan schema.StatusEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-feed:
			if !ok {
				return
			}
			l.handle(ctx, evt)
		}
	}
}

func (l *Listener) handle(ctx context.Context, evt schema.StatusEvent) {
	if evt.SessionID == "" {
		l.logger.Warn("dropping event without session id", "status", evt.Status)
		return
	}
	if IsWorkerStatus(evt.Status) {
		l.logger.Debug("ignoring worker status event", "session_id", evt.SessionID, "status", evt.Status)
		return
	}
	if err := l.dispatcher.Dispatch(ctx, evt.SessionID, "bus"); err != nil {
		l.logger.Error("dispatch render request failed", "session_id", evt.SessionID, "err", err)
	}
}
