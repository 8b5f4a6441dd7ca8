package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tendant/simple-renderer/internal/store"
	"github.com/tendant/simple-renderer/pkg/schema"
)

// Publisher sends a render request.
type Publisher interface {
	Publish(ctx context.Context, evt schema.StatusEvent) error
}

type requeueStats struct {
	Scanned         int
	Selected        int
	Published       int
	SkippedFinished int
	SkippedNoCode   int
	Failed          int
	FailedIDs       []string
}

// requeuer finds sessions that never reached a terminal status and asks the
// workers to render them again. A nil events publisher means dry-run.
type requeuer struct {
	jobs   store.JobStore
	events Publisher
	cfg    config
	logger *slog.Logger
}

func (r *requeuer) run(ctx context.Context) (requeueStats, error) {
	var stats requeueStats

	ids, err := r.jobs.Keys(ctx)
	if err != nil {
		return stats, fmt.Errorf("list sessions: %w", err)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if r.cfg.Limit > 0 && stats.Selected >= r.cfg.Limit {
			r.logger.Info("limit reached", "limit", r.cfg.Limit)
			break
		}
		stats.Scanned++

		rec, err := r.jobs.Load(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			// expired between the scan and the load
			continue
		}
		if err != nil {
			r.logger.Warn("skipping unreadable record", "session_id", id, "err", err)
			stats.Failed++
			stats.FailedIDs = append(stats.FailedIDs, id)
			continue
		}

		if !r.wanted(rec, &stats) {
			continue
		}
		stats.Selected++
		r.request(ctx, id, rec.Status, &stats)
	}

	return stats, nil
}

func (r *requeuer) runOne(ctx context.Context, id string) (requeueStats, error) {
	var stats requeueStats
	rec, err := r.jobs.Load(ctx, id)
	if err != nil {
		return stats, fmt.Errorf("load %s: %w", id, err)
	}
	stats.Scanned = 1
	if strings.TrimSpace(rec.ManimCode) == "" {
		stats.SkippedNoCode = 1
		return stats, nil
	}
	stats.Selected = 1
	r.request(ctx, id, rec.Status, &stats)
	return stats, nil
}

func (r *requeuer) wanted(rec *schema.JobRecord, stats *requeueStats) bool {
	switch {
	case strings.TrimSpace(rec.ManimCode) == "":
		stats.SkippedNoCode++
		return false
	case rec.Status == schema.StatusCompleted:
		stats.SkippedFinished++
		return false
	case rec.Status == schema.StatusError && !r.cfg.IncludeErrors:
		stats.SkippedFinished++
		return false
	}
	return true
}

func (r *requeuer) request(ctx context.Context, id string, current schema.JobStatus, stats *requeueStats) {
	if r.events == nil {
		r.logger.Info("would requeue", "session_id", id, "status", current)
		return
	}
	evt := schema.StatusEvent{SessionID: id, Status: schema.StatusReadyToRun}
	if err := r.events.Publish(ctx, evt); err != nil {
		r.logger.Error("publish render request failed", "session_id", id, "err", err)
		stats.Failed++
		stats.FailedIDs = append(stats.FailedIDs, id)
		return
	}
	stats.Published++
	r.logger.Info("requeued session", "session_id", id, "status", current)
}
