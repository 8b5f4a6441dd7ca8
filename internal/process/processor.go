// internal/process/processor.go
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/tendant/simple-renderer/internal/lease"
	"github.com/tendant/simple-renderer/internal/store"
	"github.com/tendant/simple-renderer/pkg/schema"
)

// JobStore loads and saves job records by session id.
type JobStore interface {
	Load(ctx context.Context, sessionID string) (*schema.JobRecord, error)
	Save(ctx context.Context, sessionID string, rec *schema.JobRecord) error
}

// Notifier publishes status events.
type Notifier interface {
	Publish(ctx context.Context, evt schema.StatusEvent) error
}

// Renderer turns scene source into a video file on local disk. cleanup removes
// any scratch files and is non-nil whenever err is nil.
type Renderer interface {
	Render(ctx context.Context, source string) (videoPath string, cleanup func(), err error)
}

// ArtifactStore uploads a local file and returns its public URL.
type ArtifactStore interface {
	Upload(ctx context.Context, path string) (string, error)
}

// PosterGenerator extracts a still image from a rendered video.
type PosterGenerator interface {
	Generate(ctx context.Context, videoPath string) (posterPath string, cleanup func(), err error)
}

// Recorder receives job metrics.
type Recorder interface {
	JobStarted(ctx context.Context)
	JobFinished(ctx context.Context, outcome string, d time.Duration)
}

// Outcome is the result of one Process call.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeFailed           Outcome = "failed"
	OutcomeErrorUnpersisted Outcome = "error_unpersisted"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeMalformed        Outcome = "malformed"
	OutcomeStoreFailed      Outcome = "store_failed"
	OutcomeLockFailed       Outcome = "lock_failed"
	OutcomeInternal         Outcome = "internal"
)

const failureWriteTimeout = 30 * time.Second

// Option configures a Processor.
type Option func(*Processor)

func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithTimeout bounds rendering and uploading for a single job.
func WithTimeout(d time.Duration) Option {
	return func(p *Processor) { p.timeout = d }
}

// WithLocker replaces the default in-process session lock.
func WithLocker(l lease.Locker) Option {
	return func(p *Processor) { p.locker = l }
}

func WithPoster(g PosterGenerator) Option {
	return func(p *Processor) { p.poster = g }
}

func WithMetrics(r Recorder) Option {
	return func(p *Processor) { p.metrics = r }
}

// WithProcessingReport controls whether the processing state is saved and
// published before rendering starts.
func WithProcessingReport(enabled bool) Option {
	return func(p *Processor) { p.reportProcessing = enabled }
}

// Processor drives a job record from requested to completed or error.
type Processor struct {
	store     JobStore
	notifier  Notifier
	renderer  Renderer
	artifacts ArtifactStore

	poster           PosterGenerator
	locker           lease.Locker
	metrics          Recorder
	logger           *slog.Logger
	timeout          time.Duration
	reportProcessing bool
}

func NewProcessor(js JobStore, n Notifier, r Renderer, a ArtifactStore, opts ...Option) *Processor {
	p := &Processor{
		store:            js,
		notifier:         n,
		renderer:         r,
		artifacts:        a,
		locker:           lease.NewLocal(),
		metrics:          nopRecorder{},
		logger:           slog.Default(),
		timeout:          30 * time.Minute,
		reportProcessing: true,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs the full pipeline for one session. It never panics and never
// returns an error: every failure is logged and, once a record has been
// loaded, reported through the error status.
func (p *Processor) Process(ctx context.Context, sessionID string) (outcome Outcome) {
	start := time.Now()
	logger := p.logger.With("session_id", sessionID)

	p.metrics.JobStarted(ctx)
	defer func() {
		p.metrics.JobFinished(ctx, string(outcome), time.Since(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("process panicked", "panic", r, "stack", string(debug.Stack()))
			outcome = OutcomeInternal
		}
	}()

	release, err := p.locker.Acquire(ctx, sessionID)
	if err != nil {
		logger.Error("acquire session lock failed", "err", err)
		return OutcomeLockFailed
	}
	defer release()

	rec, err := p.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("no job record for session")
			return OutcomeNotFound
		}
		logger.Error("load job record failed", "err", newError(ErrStore, sessionID, "load", err))
		return OutcomeStoreFailed
	}
	if rec.ManimCode == "" {
		logger.Warn("job record has no scene source", "err", newError(ErrMalformedJob, sessionID, "validate", nil), "status", rec.Status)
		return OutcomeMalformed
	}

	// keep the loaded copy for the error path; run mutates its own
	loaded := *rec

	jobCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.run(jobCtx, sessionID, rec, logger); err != nil {
		logger.Error("render job failed", "kind", Kind(err), "err", err)
		return p.fail(ctx, sessionID, &loaded, logger)
	}

	logger.Info("render job completed", "video_url", rec.VideoURL, "duration_ms", time.Since(start).Milliseconds())
	return OutcomeCompleted
}

func (p *Processor) run(ctx context.Context, sessionID string, rec *schema.JobRecord, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("render pipeline panicked", "panic", r, "stack", string(debug.Stack()))
			err = newError(ErrInternal, sessionID, "run", fmt.Errorf("panic: %v", r))
		}
	}()

	if err := MarkProcessing(rec); err != nil {
		return newError(ErrMalformedJob, sessionID, "mark processing", err)
	}
	if p.reportProcessing {
		if err := p.store.Save(ctx, sessionID, rec); err != nil {
			logger.Warn("save processing status failed", "err", newError(ErrStore, sessionID, "save processing", err))
		} else {
			p.publish(ctx, sessionID, schema.StatusProcessing, logger)
		}
	}

	renderStart := time.Now()
	videoPath, cleanup, err := p.renderer.Render(ctx, rec.ManimCode)
	if err != nil {
		return newError(ErrRender, sessionID, "render", err)
	}
	if cleanup != nil {
		defer cleanup()
	}
	if videoPath == "" {
		return newError(ErrRender, sessionID, "render", errors.New("renderer produced no artifact"))
	}
	logger.Info("scene rendered", "path", videoPath, "render_ms", time.Since(renderStart).Milliseconds())

	videoURL, err := p.artifacts.Upload(ctx, videoPath)
	if err != nil {
		return newError(ErrUpload, sessionID, "upload", err)
	}
	logger.Info("video uploaded", "video_url", videoURL)

	if p.poster != nil {
		rec.PosterURL = p.attachPoster(ctx, videoPath, logger)
	}

	if err := MarkCompleted(rec, videoURL); err != nil {
		return newError(ErrInternal, sessionID, "complete", err)
	}
	if err := p.store.Save(ctx, sessionID, rec); err != nil {
		return newError(ErrStore, sessionID, "save completed", err)
	}
	p.publish(ctx, sessionID, schema.StatusCompleted, logger)
	return nil
}

// fail records the error status. The record is re-read first so concurrent
// edits by other writers are kept; if that fails the copy loaded at the start
// of the job is written instead. A record that no longer exists stays gone.
func (p *Processor) fail(ctx context.Context, sessionID string, loaded *schema.JobRecord, logger *slog.Logger) Outcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	rec, err := p.store.Load(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("job record expired during render, error status not recorded")
		return OutcomeNotFound
	}
	if err != nil {
		logger.Warn("reload job record failed, using loaded copy", "err", err)
		rec = loaded
	}
	MarkFailed(rec)

	if err := p.store.Save(ctx, sessionID, rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("job record expired during render, error status not recorded")
			return OutcomeNotFound
		}
		logger.Error("save error status failed", "err", newError(ErrStore, sessionID, "save error", err))
		return OutcomeErrorUnpersisted
	}
	p.publish(ctx, sessionID, schema.StatusError, logger)
	return OutcomeFailed
}

func (p *Processor) attachPoster(ctx context.Context, videoPath string, logger *slog.Logger) string {
	posterPath, cleanup, err := p.poster.Generate(ctx, videoPath)
	if err != nil {
		logger.Warn("poster generation failed", "err", err)
		return ""
	}
	if cleanup != nil {
		defer cleanup()
	}
	url, err := p.artifacts.Upload(ctx, posterPath)
	if err != nil {
		logger.Warn("poster upload failed", "err", err)
		return ""
	}
	return url
}

func (p *Processor) publish(ctx context.Context, sessionID string, status schema.JobStatus, logger *slog.Logger) {
	evt := schema.StatusEvent{SessionID: sessionID, Status: status}
	if err := p.notifier.Publish(ctx, evt); err != nil {
		logger.Error("publish status failed", "status", status, "err", newError(ErrPublish, sessionID, "publish", err))
	}
}

type nopRecorder struct{}

func (nopRecorder) JobStarted(context.Context)                          {}
func (nopRecorder) JobFinished(context.Context, string, time.Duration) {}
