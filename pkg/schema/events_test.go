package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestJobRecordKeepsUnknownFields(t *testing.T) {
	raw := `{"topic":"circles","manimCode":"code","audioUrl":"","videoUrl":"","status":"generated","createdAt":"2024-05-01T10:00:00Z","userId":"u-42"}`

	rec, err := DecodeJobRecord([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeJobRecord returned error: %v", err)
	}
	if rec.Status != StatusGenerated || rec.ManimCode != "code" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	rec.Status = StatusCompleted
	rec.VideoURL = "https://blob/video.mp4"
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["userId"] != "u-42" {
		t.Fatalf("unknown field dropped: %s", out)
	}
	if got["status"] != "completed" || got["videoUrl"] != "https://blob/video.mp4" {
		t.Fatalf("own fields not written: %s", out)
	}
}

func TestJobRecordOmitsEmptyPoster(t *testing.T) {
	out, err := json.Marshal(JobRecord{Status: StatusPending})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(out), "posterUrl") {
		t.Fatalf("posterUrl should be omitted: %s", out)
	}
	for _, field := range []string{`"topic"`, `"manimCode"`, `"audioUrl"`, `"videoUrl"`, `"createdAt"`} {
		if !strings.Contains(string(out), field) {
			t.Fatalf("missing %s in %s", field, out)
		}
	}
}

func TestDecodeStatusEvent(t *testing.T) {
	evt, err := DecodeStatusEvent([]byte(`{"sessionId":"abc","status":"ready_to_run"}`))
	if err != nil {
		t.Fatalf("DecodeStatusEvent returned error: %v", err)
	}
	if evt.SessionID != "abc" || evt.Status != StatusReadyToRun {
		t.Fatalf("unexpected event: %+v", evt)
	}

	if _, err := DecodeStatusEvent([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestTerminalStatuses(t *testing.T) {
	cases := map[JobStatus]bool{
		StatusPending:    false,
		StatusGenerated:  false,
		StatusProcessing: false,
		StatusCompleted:  true,
		StatusError:      true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Fatalf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
