package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hylla/stamp/internal/adapters/server/common"
	"github.com/hylla/stamp/internal/adapters/storage/sqlite"
	"github.com/hylla/stamp/internal/app"
	"github.com/hylla/stamp/internal/domain"
)

// stubService records requests and returns fixture values. Unset methods panic through the nil embed.
type stubService struct {
	common.Service

	err         error
	tasks       []common.Task
	lastList    common.ListTasksRequest
	lastEvent   common.CreateEventRequest
	lastSummary common.SummaryRequest
	lastSave    common.SaveIntervalsRequest
}

func (s *stubService) ListTasks(_ context.Context, req common.ListTasksRequest) ([]common.Task, error) {
	s.lastList = req
	return s.tasks, s.err
}

func (s *stubService) CreateEvent(_ context.Context, req common.CreateEventRequest) (common.Event, error) {
	s.lastEvent = req
	if s.err != nil {
		return common.Event{}, s.err
	}
	return common.Event{ID: 7, Task: req.Task, Type: req.Type}, nil
}

func (s *stubService) Summary(_ context.Context, req common.SummaryRequest) (common.Summary, error) {
	s.lastSummary = req
	return common.Summary{}, s.err
}

func (s *stubService) SaveIntervals(_ context.Context, req common.SaveIntervalsRequest) (common.SaveIntervalsResult, error) {
	s.lastSave = req
	return common.SaveIntervalsResult{}, s.err
}

// decodeBody decodes one JSON response body into the requested type.
func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

// serve sends one request through the handler.
func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// newIntegrationHandler wires the handler to an in-memory store with a fixed clock.
func newIntegrationHandler(t *testing.T) http.Handler {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	svc := app.NewService(repo, func() time.Time { return now }, app.ServiceConfig{
		SummaryPolicy: domain.SummaryPolicy{IncludeOngoing: true},
	})
	return NewHandler(common.NewAppServiceAdapter(svc, common.WithLocation(time.UTC)))
}

// TestHandlerTaskLifecycle verifies create, read, patch, and delete shapes for tasks and tags.
func TestHandlerTaskLifecycle(t *testing.T) {
	h := newIntegrationHandler(t)

	rec := serve(t, h, http.MethodPost, "/tags", `{"name":"work"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /tags status = %d, body = %s", rec.Code, rec.Body.String())
	}
	tagID := decodeBody[idResponse](t, rec).ID

	rec = serve(t, h, http.MethodPost, "/tasks", fmt.Sprintf(`{"name":"report","tags":[%d]}`, tagID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /tasks status = %d, body = %s", rec.Code, rec.Body.String())
	}
	taskID := decodeBody[idResponse](t, rec).ID
	if taskID <= 0 {
		t.Fatalf("task id = %d, want positive", taskID)
	}

	rec = serve(t, h, http.MethodPatch, fmt.Sprintf("/tasks/%d", taskID), `{"name":"quarterly report"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH /tasks status = %d, body = %s", rec.Code, rec.Body.String())
	}
	task := decodeBody[common.Task](t, rec)
	if task.Name != "quarterly report" || len(task.Tags) != 1 {
		t.Fatalf("patched task = %#v, want renamed with tag kept", task)
	}

	rec = serve(t, h, http.MethodGet, fmt.Sprintf("/tasks?tags=%d", tagID), "")
	list := decodeBody[struct {
		Tasks []common.Task `json:"tasks"`
	}](t, rec)
	if len(list.Tasks) != 1 {
		t.Fatalf("GET /tasks?tags len = %d, want 1", len(list.Tasks))
	}

	rec = serve(t, h, http.MethodDelete, fmt.Sprintf("/tags/%d", tagID), "")
	deleted := decodeBody[map[string]bool](t, rec)
	if rec.Code != http.StatusOK || !deleted["deleted"] {
		t.Fatalf("DELETE /tags status = %d, body = %#v", rec.Code, deleted)
	}
	rec = serve(t, h, http.MethodGet, fmt.Sprintf("/tasks/%d", taskID), "")
	task = decodeBody[common.Task](t, rec)
	if len(task.Tags) != 0 {
		t.Fatalf("task tags after tag delete = %v, want none", task.Tags)
	}

	rec = serve(t, h, http.MethodDelete, fmt.Sprintf("/tasks/%d", taskID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /tasks status = %d", rec.Code)
	}
	rec = serve(t, h, http.MethodGet, fmt.Sprintf("/tasks/%d", taskID), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET deleted task status = %d, want 404", rec.Code)
	}
}

// TestHandlerIntervalsAndSummary verifies timestamps flow into intervals, overlap flags, and totals.
func TestHandlerIntervalsAndSummary(t *testing.T) {
	h := newIntegrationHandler(t)
	rec := serve(t, h, http.MethodPost, "/tasks", `{"name":"report"}`)
	taskID := decodeBody[idResponse](t, rec).ID

	events := []string{
		`{"task":%d,"timestamp":"2026-02-21T09:00:00Z","type":0}`,
		`{"task":%d,"timestamp":"2026-02-21T10:00:00Z","type":"stop"}`,
		`{"task":%d,"timestamp":"2026-02-21T09:30:00Z","type":"start"}`,
		`{"task":%d,"timestamp":"2026-02-21T11:00:00Z","type":1}`,
	}
	for _, body := range events {
		rec := serve(t, h, http.MethodPost, "/timestamps", fmt.Sprintf(body, taskID))
		if rec.Code != http.StatusCreated {
			t.Fatalf("POST /timestamps status = %d, body = %s", rec.Code, rec.Body.String())
		}
	}

	rec = serve(t, h, http.MethodGet, fmt.Sprintf("/timestamps?task=%d", taskID), "")
	stamps := decodeBody[struct {
		Timestamps []common.Event `json:"timestamps"`
	}](t, rec)
	if len(stamps.Timestamps) != 4 || stamps.Timestamps[1].Type != "start" {
		t.Fatalf("timestamps = %#v, want 4 ordered events", stamps.Timestamps)
	}

	rec = serve(t, h, http.MethodGet, fmt.Sprintf("/tasks/%d/intervals?from=2026-02-21&to=2026-02-21", taskID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET intervals status = %d, body = %s", rec.Code, rec.Body.String())
	}
	intervals := decodeBody[struct {
		Intervals []common.Interval `json:"intervals"`
	}](t, rec).Intervals
	if len(intervals) != 1 {
		t.Fatalf("intervals = %#v, want one rebuilt interval", intervals)
	}

	rec = serve(t, h, http.MethodGet, "/summary?from=2026-02-21&to=2026-02-21&include_ongoing=false", "")
	summary := decodeBody[common.Summary](t, rec)
	if rec.Code != http.StatusOK || len(summary.Tasks) != 1 || summary.IncludeOngoing {
		t.Fatalf("summary status = %d, body = %#v", rec.Code, summary)
	}
}

// TestHandlerTimerEndpoints verifies start/stop and the conflict code for repeats.
func TestHandlerTimerEndpoints(t *testing.T) {
	h := newIntegrationHandler(t)
	rec := serve(t, h, http.MethodPost, "/tasks", `{"name":"email"}`)
	taskID := decodeBody[idResponse](t, rec).ID

	rec = serve(t, h, http.MethodPost, fmt.Sprintf("/tasks/%d/start", taskID), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = serve(t, h, http.MethodPost, fmt.Sprintf("/tasks/%d/start", taskID), "")
	env := decodeBody[ErrorEnvelope](t, rec)
	if rec.Code != http.StatusConflict || env.Error.Code != "conflict" {
		t.Fatalf("second start status = %d, code = %q", rec.Code, env.Error.Code)
	}
	rec = serve(t, h, http.MethodGet, fmt.Sprintf("/tasks/%d/start", taskID), "")
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("GET start status = %d, allow = %q", rec.Code, rec.Header().Get("Allow"))
	}
}

// TestHandlerRequestParsing verifies query and body mapping into service requests.
func TestHandlerRequestParsing(t *testing.T) {
	stub := &stubService{}
	h := NewHandler(stub)

	serve(t, h, http.MethodGet, "/tasks?tags=3,1", "")
	if len(stub.lastList.Tags) != 2 || stub.lastList.Tags[0] != 3 || stub.lastList.Tags[1] != 1 {
		t.Fatalf("list tags = %v, want [3 1]", stub.lastList.Tags)
	}

	serve(t, h, http.MethodPost, "/timestamps", `{"task":4,"timestamp":"yesterday 9am","type":1}`)
	if stub.lastEvent.Task != 4 || stub.lastEvent.Type != "1" || stub.lastEvent.Timestamp != "yesterday 9am" {
		t.Fatalf("event request = %#v", stub.lastEvent)
	}

	serve(t, h, http.MethodGet, "/summary?from=today&include_ongoing=true", "")
	if stub.lastSummary.From != "today" || stub.lastSummary.IncludeOngoing == nil || !*stub.lastSummary.IncludeOngoing {
		t.Fatalf("summary request = %#v", stub.lastSummary)
	}

	serve(t, h, http.MethodPost, "/tasks/9/intervals", `{"edits":[{"start":"2026-02-21T09:00:00Z","start_event_id":5,"is_modified":true}]}`)
	if stub.lastSave.TaskID != 9 || len(stub.lastSave.Edits) != 1 || stub.lastSave.Edits[0].StartEventID != 5 {
		t.Fatalf("save request = %#v", stub.lastSave)
	}
}

// TestHandlerErrorMapping verifies error classes map to stable codes and statuses.
func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", fmt.Errorf("x: %w", common.ErrInvalidRequest), http.StatusBadRequest, "invalid_request"},
		{"interval", fmt.Errorf("x: %w", common.ErrInvalidInterval), http.StatusBadRequest, "invalid_interval"},
		{"missing", fmt.Errorf("x: %w", common.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", fmt.Errorf("x: %w", common.ErrConflict), http.StatusConflict, "conflict"},
		{"store", fmt.Errorf("x: %w", common.ErrStore), http.StatusInternalServerError, "store_error"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&stubService{err: tc.err})
			rec := serve(t, h, http.MethodGet, "/summary", "")
			env := decodeBody[ErrorEnvelope](t, rec)
			if rec.Code != tc.status || env.Error.Code != tc.code {
				t.Fatalf("status = %d code = %q, want %d %q", rec.Code, env.Error.Code, tc.status, tc.code)
			}
		})
	}
}

// TestHandlerPartialWriteContext verifies partial writes report applied and total counts.
func TestHandlerPartialWriteContext(t *testing.T) {
	partial := &app.PartialWriteError{Applied: 2, Total: 4, Err: app.ErrStore}
	h := NewHandler(&stubService{err: fmt.Errorf("save intervals: %w", errors.Join(common.ErrPartialWrite, partial))})

	rec := serve(t, h, http.MethodPost, "/tasks/1/intervals", `{"edits":[]}`)
	env := decodeBody[ErrorEnvelope](t, rec)
	if rec.Code != http.StatusInternalServerError || env.Error.Code != "partial_write" {
		t.Fatalf("status = %d code = %q", rec.Code, env.Error.Code)
	}
	if env.Error.Context["applied"] != float64(2) || env.Error.Context["total"] != float64(4) {
		t.Fatalf("context = %#v, want applied 2 total 4", env.Error.Context)
	}
}

// TestHandlerRejectsMalformedRequests verifies bad ids, bodies, and routes fail closed.
func TestHandlerRejectsMalformedRequests(t *testing.T) {
	h := NewHandler(&stubService{})
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad id", http.MethodGet, "/tasks/abc", "", http.StatusBadRequest},
		{"zero id", http.MethodDelete, "/tags/0", "", http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/timestamps", `{"task":1,"when":"now"}`, http.StatusBadRequest},
		{"trailing", http.MethodPost, "/timestamps", `{"task":1}{}`, http.StatusBadRequest},
		{"bad type", http.MethodPost, "/timestamps", `{"task":1,"type":true}`, http.StatusBadRequest},
		{"bad tags", http.MethodGet, "/tasks?tags=a", "", http.StatusBadRequest},
		{"bad bool", http.MethodGet, "/summary?include_ongoing=maybe", "", http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/projects", "", http.StatusNotFound},
		{"deep route", http.MethodGet, "/tasks/1/intervals/2", "", http.StatusNotFound},
		{"method", http.MethodPut, "/tags", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, h, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.status, rec.Body.String())
			}
		})
	}
}
