// internal/process/lifecycle.go
package process

import (
	"fmt"

	"github.com/tendant/simple-renderer/pkg/schema"
)

// transitions lists the allowed next states for each status. generated is the
// initial state written by the scene producer and behaves like pending.
var transitions = map[schema.JobStatus][]schema.JobStatus{
	schema.StatusPending:    {schema.StatusProcessing, schema.StatusError},
	schema.StatusGenerated:  {schema.StatusProcessing, schema.StatusError},
	// processing is re-entered when a run died before writing an outcome
	schema.StatusProcessing: {schema.StatusProcessing, schema.StatusCompleted, schema.StatusError},
	// a completed or failed record may be rendered again on a new request
	schema.StatusCompleted: {schema.StatusProcessing},
	schema.StatusError:     {schema.StatusProcessing},
}

// CanTransition reports whether a record may move from one status to another.
// An empty or unknown current status is treated as pending.
func CanTransition(from, to schema.JobStatus) bool {
	next, ok := transitions[from]
	if !ok {
		next = transitions[schema.StatusPending]
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func MarkProcessing(rec *schema.JobRecord) error {
	if !CanTransition(rec.Status, schema.StatusProcessing) {
		return fmt.Errorf("invalid transition %s -> %s", rec.Status, schema.StatusProcessing)
	}
	rec.Status = schema.StatusProcessing
	rec.VideoURL = ""
	rec.PosterURL = ""
	return nil
}

// MarkCompleted records the artifact location. videoURL must be non-empty.
func MarkCompleted(rec *schema.JobRecord, videoURL string) error {
	if videoURL == "" {
		return fmt.Errorf("completed job requires a video url")
	}
	if !CanTransition(rec.Status, schema.StatusCompleted) {
		return fmt.Errorf("invalid transition %s -> %s", rec.Status, schema.StatusCompleted)
	}
	rec.Status = schema.StatusCompleted
	rec.VideoURL = videoURL
	return nil
}

// MarkFailed is reachable from any state so a failure can always be recorded.
// The artifact fields are cleared because only completed records carry them.
func MarkFailed(rec *schema.JobRecord) {
	rec.Status = schema.StatusError
	rec.VideoURL = ""
	rec.PosterURL = ""
}
