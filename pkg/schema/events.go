// pkg/schema/events.go
package schema

import (
	"encoding/json"
	"fmt"
)

// JobStatus is the lifecycle state stored on a render job record.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusGenerated  JobStatus = "generated"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// StatusReadyToRun is the request status producers attach to a StatusEvent
// when a scene is ready to be rendered.
const StatusReadyToRun JobStatus = "ready_to_run"

// Terminal reports whether no further transition is expected from s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// StatusEvent is the envelope published on the notification channel, both for
// render requests and for worker outcomes.
type StatusEvent struct {
	SessionID string    `json:"sessionId"`
	Status    JobStatus `json:"status"`
}

// JobRecord is the JSON value stored under a session key.
type JobRecord struct {
	Topic     string    `json:"topic"`
	ManimCode string    `json:"manimCode"`
	AudioURL  string    `json:"audioUrl"`
	VideoURL  string    `json:"videoUrl"`
	PosterURL string    `json:"posterUrl,omitempty"`
	Status    JobStatus `json:"status"`
	CreatedAt string    `json:"createdAt"`

	// fields written by other producers, kept so a save does not drop them
	extra map[string]json.RawMessage
}

var knownRecordFields = map[string]struct{}{
	"topic": {}, "manimCode": {}, "audioUrl": {}, "videoUrl": {},
	"posterUrl": {}, "status": {}, "createdAt": {},
}

type jobRecordFields JobRecord

func (r *JobRecord) UnmarshalJSON(data []byte) error {
	var fields jobRecordFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = JobRecord(fields)
	for k, v := range raw {
		if _, ok := knownRecordFields[k]; ok {
			continue
		}
		if r.extra == nil {
			r.extra = make(map[string]json.RawMessage)
		}
		r.extra[k] = v
	}
	return nil
}

func (r JobRecord) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(jobRecordFields(r))
	if err != nil || len(r.extra) == 0 {
		return b, err
	}
	merged := make(map[string]json.RawMessage, len(r.extra)+len(knownRecordFields))
	for k, v := range r.extra {
		merged[k] = v
	}
	var own map[string]json.RawMessage
	if err := json.Unmarshal(b, &own); err != nil {
		return nil, err
	}
	for k, v := range own {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Extra returns a field written by another producer, if present.
func (r *JobRecord) Extra(name string) (json.RawMessage, bool) {
	v, ok := r.extra[name]
	return v, ok
}

// DecodeJobRecord parses a stored record value.
func DecodeJobRecord(data []byte) (*JobRecord, error) {
	var rec JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode job record: %w", err)
	}
	return &rec, nil
}

// DecodeStatusEvent parses a notification payload.
func DecodeStatusEvent(data []byte) (StatusEvent, error) {
	var evt StatusEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return StatusEvent{}, fmt.Errorf("decode status event: %w", err)
	}
	return evt, nil
}
