// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/stamp/internal/adapters/server/common"
	"github.com/hylla/stamp/internal/app"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service common.Service
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter.
func NewHandler(service common.Service) *Handler {
	return &Handler{service: service}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "tracking service is not configured",
		})
		return
	}
	parts := strings.Split(normalizePath(r.URL.Path), "/")
	switch parts[0] {
	case "tasks":
		h.routeTasks(w, r, parts[1:])
	case "tags":
		h.routeTags(w, r, parts[1:])
	case "timestamps":
		h.routeTimestamps(w, r, parts[1:])
	case "summary":
		if len(parts) != 1 {
			writeNotFound(w)
			return
		}
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleSummary(w, r)
	default:
		writeNotFound(w)
	}
}

// routeTasks dispatches `/tasks` and its sub-resources.
func (h *Handler) routeTasks(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			h.handleListTasks(w, r)
		case http.MethodPost:
			h.handleCreateTask(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	}
	id, ok := parseID(rest[0])
	if !ok {
		writeInvalidID(w, rest[0])
		return
	}
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			task, err := h.service.GetTask(r.Context(), id)
			respond(w, http.StatusOK, task, err)
		case http.MethodPatch:
			h.handleUpdateTask(w, r, id)
		case http.MethodDelete:
			respondDeleted(w, h.service.DeleteTask(r.Context(), id))
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
		return
	}
	if len(rest) != 2 {
		writeNotFound(w)
		return
	}
	switch rest[1] {
	case "intervals":
		switch r.Method {
		case http.MethodGet:
			intervals, err := h.service.ListIntervals(r.Context(), common.ListIntervalsRequest{
				TaskID: id,
				From:   r.URL.Query().Get("from"),
				To:     r.URL.Query().Get("to"),
			})
			respond(w, http.StatusOK, map[string]any{"intervals": intervals}, err)
		case http.MethodPost:
			h.handleSaveIntervals(w, r, id)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case "start", "stop":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		toggle := h.service.StartTimer
		if rest[1] == "stop" {
			toggle = h.service.StopTimer
		}
		event, err := toggle(r.Context(), id)
		respond(w, http.StatusCreated, event, err)
	default:
		writeNotFound(w)
	}
}

// routeTags dispatches `/tags` and `/tags/{id}`.
func (h *Handler) routeTags(w http.ResponseWriter, r *http.Request, rest []string) {
	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			tags, err := h.service.ListTags(r.Context())
			respond(w, http.StatusOK, map[string]any{"tags": tags}, err)
		case http.MethodPost:
			var body tagBody
			if err := decodeJSONBody(r.Context(), w, r, &body); err != nil {
				writeErrorFrom(w, err)
				return
			}
			tag, err := h.service.CreateTag(r.Context(), body.Name)
			respond(w, http.StatusCreated, idResponse{ID: tag.ID}, err)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case 1:
		id, ok := parseID(rest[0])
		if !ok {
			writeInvalidID(w, rest[0])
			return
		}
		switch r.Method {
		case http.MethodGet:
			tag, err := h.service.GetTag(r.Context(), id)
			respond(w, http.StatusOK, tag, err)
		case http.MethodPatch:
			var body tagBody
			if err := decodeJSONBody(r.Context(), w, r, &body); err != nil {
				writeErrorFrom(w, err)
				return
			}
			tag, err := h.service.RenameTag(r.Context(), id, body.Name)
			respond(w, http.StatusOK, tag, err)
		case http.MethodDelete:
			respondDeleted(w, h.service.DeleteTag(r.Context(), id))
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	default:
		writeNotFound(w)
	}
}

// routeTimestamps dispatches `/timestamps` and `/timestamps/{id}`.
func (h *Handler) routeTimestamps(w http.ResponseWriter, r *http.Request, rest []string) {
	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			h.handleListTimestamps(w, r)
		case http.MethodPost:
			var body eventBody
			if err := decodeJSONBody(r.Context(), w, r, &body); err != nil {
				writeErrorFrom(w, err)
				return
			}
			event, err := h.service.CreateEvent(r.Context(), common.CreateEventRequest{
				Task:      body.Task,
				Timestamp: body.Timestamp,
				Type:      string(body.Type),
			})
			respond(w, http.StatusCreated, idResponse{ID: event.ID}, err)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case 1:
		id, ok := parseID(rest[0])
		if !ok {
			writeInvalidID(w, rest[0])
			return
		}
		switch r.Method {
		case http.MethodPatch:
			var body eventBody
			if err := decodeJSONBody(r.Context(), w, r, &body); err != nil {
				writeErrorFrom(w, err)
				return
			}
			event, err := h.service.UpdateEvent(r.Context(), common.UpdateEventRequest{
				ID:        id,
				Timestamp: body.Timestamp,
				Type:      string(body.Type),
			})
			respond(w, http.StatusOK, event, err)
		case http.MethodDelete:
			respondDeleted(w, h.service.DeleteEvent(r.Context(), id))
		default:
			writeMethodNotAllowed(w, http.MethodPatch, http.MethodDelete)
		}
	default:
		writeNotFound(w)
	}
}

// handleListTasks serves GET `/tasks`.
func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tags, err := parseIDList(r.URL.Query().Get("tags"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	tasks, err := h.service.ListTasks(r.Context(), common.ListTasksRequest{Tags: tags})
	respond(w, http.StatusOK, map[string]any{"tasks": tasks}, err)
}

// handleCreateTask serves POST `/tasks`.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var body taskBody
	if err := decodeJSONBody(r.Context(), w, r, &body); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req := common.CreateTaskRequest{}
	if body.Name != nil {
		req.Name = *body.Name
	}
	if body.Tags != nil {
		req.Tags = *body.Tags
	}
	task, err := h.service.CreateTask(r.Context(), req)
	respond(w, http.StatusCreated, idResponse{ID: task.ID}, err)
}

// handleUpdateTask serves PATCH `/tasks/{id}`.
func (h *Handler) handleUpdateTask(w http.ResponseWriter, r *http.Request, id int64) {
	var body taskBody
	if err := decodeJSONBody(r.Context(), w, r, &body); err != nil {
		writeErrorFrom(w, err)
		return
	}
	task, err := h.service.UpdateTask(r.Context(), common.UpdateTaskRequest{ID: id, Name: body.Name, Tags: body.Tags})
	respond(w, http.StatusOK, task, err)
}

// handleSaveIntervals serves POST `/tasks/{id}/intervals`.
func (h *Handler) handleSaveIntervals(w http.ResponseWriter, r *http.Request, id int64) {
	var body saveIntervalsBody
	if err := decodeJSONBody(r.Context(), w, r, &body); err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := h.service.SaveIntervals(r.Context(), common.SaveIntervalsRequest{
		TaskID: id,
		Edits:  body.Edits,
		From:   body.From,
		To:     body.To,
	})
	respond(w, http.StatusOK, result, err)
}

// handleListTimestamps serves GET `/timestamps`.
func (h *Handler) handleListTimestamps(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := common.ListEventsRequest{From: query.Get("from"), To: query.Get("to")}
	if raw := strings.TrimSpace(query.Get("task")); raw != "" {
		task, ok := parseID(raw)
		if !ok {
			writeInvalidID(w, raw)
			return
		}
		req.TaskID = &task
	}
	events, err := h.service.ListEvents(r.Context(), req)
	respond(w, http.StatusOK, map[string]any{"timestamps": events}, err)
}

// handleSummary serves GET `/summary`.
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := common.SummaryRequest{From: query.Get("from"), To: query.Get("to")}
	if raw := strings.TrimSpace(query.Get("include_ongoing")); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: fmt.Sprintf("include_ongoing %q is not a boolean", raw),
			})
			return
		}
		req.IncludeOngoing = &include
	}
	summary, err := h.service.Summary(r.Context(), req)
	respond(w, http.StatusOK, summary, err)
}

// taskBody is the POST/PATCH payload for tasks.
type taskBody struct {
	Name *string  `json:"name"`
	Tags *[]int64 `json:"tags"`
}

// tagBody is the POST/PATCH payload for tags.
type tagBody struct {
	Name string `json:"name"`
}

// eventBody is the POST/PATCH payload for timestamps.
type eventBody struct {
	Task      int64     `json:"task"`
	Timestamp string    `json:"timestamp"`
	Type      eventType `json:"type"`
}

// saveIntervalsBody is the POST payload for interval edits.
type saveIntervalsBody struct {
	Edits []common.IntervalEdit `json:"edits"`
	From  string                `json:"from"`
	To    string                `json:"to"`
}

// idResponse is the body returned by create endpoints.
type idResponse struct {
	ID int64 `json:"id"`
}

// eventType accepts either the stored integer code or its name.
type eventType string

// UnmarshalJSON decodes `0`, `1`, `"start"`, or `"stop"`.
func (t *eventType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*t = eventType(raw)
		return nil
	}
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("type must be 0, 1, start, or stop: %w", err)
	}
	*t = eventType(strconv.Itoa(code))
	return nil
}

// respond writes payload on success or the mapped error otherwise.
func respond(w http.ResponseWriter, statusCode int, payload any, err error) {
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, statusCode, payload)
}

// respondDeleted writes the delete confirmation body.
func respondDeleted(w http.ResponseWriter, err error) {
	respond(w, http.StatusOK, map[string]bool{"deleted": true}, err)
}

// parseID parses one positive path or query id.
func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseIDList parses a comma-separated id filter.
func parseIDList(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, ok := parseID(part)
		if !ok {
			return nil, fmt.Errorf("tags: id %q: %w", part, common.ErrInvalidRequest)
		}
		out = append(out, id)
	}
	return out, nil
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	var partial *app.PartialWriteError
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrInvalidInterval):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_interval",
			Message: err.Error(),
			Hint:    "Every interval needs a start before its stop; edited intervals must reference stored events.",
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrPartialWrite):
		apiErr := APIError{
			Code:    "partial_write",
			Message: err.Error(),
			Hint:    "Reload the task's intervals; writes before the failure were kept.",
		}
		if errors.As(err, &partial) {
			apiErr.Context = map[string]any{"applied": partial.Applied, "total": partial.Total}
		}
		writeJSONError(w, http.StatusInternalServerError, apiErr)
	case errors.Is(err, common.ErrStore):
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "store_error",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeNotFound writes the unknown-endpoint response.
func writeNotFound(w http.ResponseWriter) {
	writeJSONError(w, http.StatusNotFound, APIError{
		Code:    "not_found",
		Message: "endpoint not found",
	})
}

// writeInvalidID writes a 400 for a malformed id segment.
func writeInvalidID(w http.ResponseWriter, raw string) {
	writeJSONError(w, http.StatusBadRequest, APIError{
		Code:    "invalid_request",
		Message: fmt.Sprintf("id %q must be a positive integer", raw),
	})
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
