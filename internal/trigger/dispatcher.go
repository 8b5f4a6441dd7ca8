// Package trigger feeds render requests from the HTTP API and the
// notification bus into a shared pool of workers.
package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/tendant/simple-renderer/internal/process"
)

var (
	ErrQueueFull = errors.New("render queue is full")
	ErrStopped   = errors.New("dispatcher stopped")
)

// Processor runs one render job to completion.
type Processor interface {
	Process(ctx context.Context, sessionID string) process.Outcome
}

// QueueMetrics receives queue accounting. RequestQueued is called for every
// request offered; a refused one is taken back with RequestDequeued.
type QueueMetrics interface {
	RequestQueued(ctx context.Context, trigger string)
	RequestDequeued(ctx context.Context)
	RequestDenied(ctx context.Context, trigger string)
}

type request struct {
	sessionID string
	trigger   string
}

// Dispatcher runs queued requests on a fixed pool of goroutines. Dispatch
// never blocks: when the queue is full the request is refused.
type Dispatcher struct {
	proc       Processor
	queue      chan request
	maxWorkers int
	metrics    QueueMetrics
	logger     *slog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher starts maxWorkers goroutines. Values below 1 default to 1
// worker and a queue of 100.
func NewDispatcher(proc Processor, maxWorkers, queueSize int, metrics QueueMetrics, logger *slog.Logger) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if metrics == nil {
		metrics = nopQueueMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		proc:       proc,
		queue:      make(chan request, queueSize),
		maxWorkers: maxWorkers,
		metrics:    metrics,
		logger:     logger,
	}
	for i := 0; i < d.maxWorkers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	d.logger.Debug("starting render worker", "worker_id", id)

	for req := range d.queue {
		ctx := context.Background()
		d.metrics.RequestDequeued(ctx)
		outcome := d.proc.Process(ctx, req.sessionID)
		d.logger.Info("render request finished",
			"worker_id", id,
			"session_id", req.sessionID,
			"trigger", req.trigger,
			"outcome", outcome,
		)
	}

	d.logger.Debug("render worker stopped", "worker_id", id)
}

// Dispatch queues a session for rendering and returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, trigger string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	// counted before the send so a fast worker never takes the gauge below zero
	d.metrics.RequestQueued(ctx, trigger)
	select {
	case d.queue <- request{sessionID: sessionID, trigger: trigger}:
		d.logger.Debug("queued render request", "session_id", sessionID, "trigger", trigger)
		return nil
	default:
		d.metrics.RequestDequeued(ctx)
		d.metrics.RequestDenied(ctx, trigger)
		return ErrQueueFull
	}
}

// Stop refuses new requests and waits for queued and running jobs to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.logger.Info("stopping dispatcher and waiting for render jobs to finish")
	d.wg.Wait()
	d.logger.Info("all render jobs have finished")
}

type nopQueueMetrics struct{}

func (nopQueueMetrics) RequestQueued(context.Context, string) {}
func (nopQueueMetrics) RequestDequeued(context.Context)       {}
func (nopQueueMetrics) RequestDenied(context.Context, string) {}
