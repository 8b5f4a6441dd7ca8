package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tendant/simple-renderer/internal/store"
	"github.com/tendant/simple-renderer/internal/trigger"
	"github.com/tendant/simple-renderer/pkg/schema"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, sessionID, trigger string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, sessionID)
	return nil
}

type fakeJobs map[string]*schema.JobRecord

func (f fakeJobs) Load(ctx context.Context, sessionID string) (*schema.JobRecord, error) {
	if rec, ok := f[sessionID]; ok {
		return rec, nil
	}
	return nil, store.ErrNotFound
}

type routeRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (r *routeRecorder) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	r.mu.Lock()
	r.routes = append(r.routes, method+" "+route)
	r.mu.Unlock()
}

func newTestRouter(d Dispatcher, jobs JobReader, checks map[string]CheckFunc, m HTTPMetrics) http.Handler {
	return NewRouter(RouterConfig{
		Jobs:       jobs,
		Dispatcher: d,
		Checks:     checks,
		Metrics:    m,
		Logger:     quietLogger(),
	})
}

func TestProcessAccepted(t *testing.T) {
	d := &fakeDispatcher{}
	router := newTestRouter(d, fakeJobs{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/process", bytes.NewBufferString(`{"sessionId":"abc","status":"ready_to_run"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp processResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "Processing started" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(d.ids) != 1 || d.ids[0] != "abc" {
		t.Fatalf("expected abc to be dispatched, got %v", d.ids)
	}
}

func TestProcessBadRequest(t *testing.T) {
	for name, body := range map[string]string{
		"invalid json":  "not json",
		"missing id":    `{"status":"ready_to_run"}`,
		"blank id":      `{"sessionId":"   "}`,
		"wrong id type": `{"sessionId":42}`,
	} {
		t.Run(name, func(t *testing.T) {
			d := &fakeDispatcher{}
			router := newTestRouter(d, fakeJobs{}, nil, nil)

			req := httptest.NewRequest(http.MethodPost, "/process", bytes.NewBufferString(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if len(d.ids) != 0 {
				t.Fatalf("nothing should be dispatched, got %v", d.ids)
			}
		})
	}
}

func TestProcessQueueFull(t *testing.T) {
	router := newTestRouter(&fakeDispatcher{err: trigger.ErrQueueFull}, fakeJobs{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/process", bytes.NewBufferString(`{"sessionId":"abc"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestGetJob(t *testing.T) {
	jobs := fakeJobs{"abc": {Topic: "circles", Status: schema.StatusCompleted, VideoURL: "https://blob/x.mp4"}}
	router := newTestRouter(&fakeDispatcher{}, jobs, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs/abc", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	rec, err := schema.DecodeJobRecord(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Status != schema.StatusCompleted || rec.VideoURL != "https://blob/x.mp4" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	healthy := map[string]CheckFunc{
		"store": func(context.Context) error { return nil },
	}
	router := newTestRouter(&fakeDispatcher{}, fakeJobs{}, healthy, nil)

	for _, path := range []string{"/livez", "/readyz"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}

	failing := map[string]CheckFunc{
		"store":     func(context.Context) error { return nil },
		"artifacts": func(context.Context) error { return errors.New("container not found") },
	}
	router = newTestRouter(&fakeDispatcher{}, fakeJobs{}, failing, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checks["artifacts"] != "container not found" || resp.Checks["store"] != "ok" {
		t.Fatalf("unexpected checks: %+v", resp.Checks)
	}
}

func TestMetricsUseRoutePattern(t *testing.T) {
	m := &routeRecorder{}
	router := newTestRouter(&fakeDispatcher{}, fakeJobs{}, nil, m)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs/one", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs/two", nil))

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.routes) != 2 {
		t.Fatalf("expected 2 recordings, got %v", m.routes)
	}
	for _, r := range m.routes {
		if r != "GET /jobs/{sessionId}" {
			t.Fatalf("unexpected route label: %s", r)
		}
	}
}
