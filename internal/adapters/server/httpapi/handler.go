// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/tempo/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// defaultKeepAlive is the idle interval between SSE comment pings.
const defaultKeepAlive = 15 * time.Second

// ActorHeader carries the mutation actor when the request body does not.
const ActorHeader = "X-Tempo-Actor"

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service   common.Service
	events    common.EventSource
	keepAlive time.Duration
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

// NewHandler constructs one HTTP API adapter. A nil event source disables `/events`.
func NewHandler(service common.Service, events common.EventSource) *Handler {
	return &Handler{
		service:   service,
		events:    events,
		keepAlive: defaultKeepAlive,
	}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "tempo service is not configured",
		})
		return
	}
	path := normalizePath(r.URL.Path)
	switch path {
	case "dependencies":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleAddDependency(w, r)
	case "views/list", "views/blocked", "reports/integrity":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleScopedRead(w, r, path)
	case "views/execution_window":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleExecutionWindow(w, r)
	case "batch":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleBatch(w, r)
	case "events":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleEvents(w, r)
	default:
		if id, ok := resolveResourceID(path, "dependencies/"); ok {
			if r.Method != http.MethodDelete {
				writeMethodNotAllowed(w, http.MethodDelete)
				return
			}
			h.handleRemoveDependency(w, r, id)
			return
		}
		if id, ok := resolveResourceID(path, "items/"); ok {
			if r.Method != http.MethodGet {
				writeMethodNotAllowed(w, http.MethodGet)
				return
			}
			h.handleItemDetails(w, r, id)
			return
		}
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    common.CodeNotFound,
			Message: "endpoint not found",
		})
	}
}

// handleAddDependency serves POST `/dependencies`.
func (h *Handler) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	var req common.AddDependencyRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if req.Actor == "" {
		req.Actor = r.Header.Get(ActorHeader)
	}
	dep, err := h.service.AddDependency(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dep)
}

// handleRemoveDependency serves DELETE `/dependencies/{id}`.
func (h *Handler) handleRemoveDependency(w http.ResponseWriter, r *http.Request, id string) {
	err := h.service.RemoveDependency(r.Context(), common.RemoveDependencyRequest{
		ID:    id,
		Actor: r.Header.Get(ActorHeader),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleScopedRead serves the list, blocked, and integrity reads that take only a scope.
func (h *Handler) handleScopedRead(w http.ResponseWriter, r *http.Request, path string) {
	scope, err := scopeFromQuery(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	switch path {
	case "views/list":
		items, err := h.service.ListView(r.Context(), scope)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case "views/blocked":
		items, err := h.service.BlockedView(r.Context(), scope)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		report, err := h.service.IntegrityReport(r.Context(), scope)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// handleExecutionWindow serves GET `/views/execution_window`.
func (h *Handler) handleExecutionWindow(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromQuery(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	req := common.ExecutionWindowRequest{ScopeRequest: scope}
	if req.From, err = timeFromQuery(r, "from"); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if req.To, err = timeFromQuery(r, "to"); err != nil {
		writeErrorFrom(w, err)
		return
	}
	window, err := h.service.ExecutionWindow(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, window)
}

// handleItemDetails serves GET `/items/{id}`.
func (h *Handler) handleItemDetails(w http.ResponseWriter, r *http.Request, id string) {
	details, err := h.service.ItemDetails(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// handleBatch serves POST `/batch`. A batch with failed ops still answers 200.
func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req common.BatchRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if req.Actor == "" {
		req.Actor = r.Header.Get(ActorHeader)
	}
	results, err := h.service.ApplyBatch(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	failed := 0
	for _, result := range results {
		if !result.OK {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"failed":  failed,
	})
}

// handleEvents serves GET `/events` as a server-sent event stream.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeJSONError(w, http.StatusNotImplemented, APIError{
			Code:    "not_implemented",
			Message: "event stream is not available",
		})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    common.CodeInternal,
			Message: "streaming not supported",
		})
		return
	}

	ctx := r.Context()
	events := h.events.Subscribe(ctx, strings.TrimSpace(r.URL.Query().Get("project_id")))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// scopeFromQuery reads `project_id`, `assignee_id`, and `include_archived`.
func scopeFromQuery(r *http.Request) (common.ScopeRequest, error) {
	query := r.URL.Query()
	scope := common.ScopeRequest{
		ProjectID:  strings.TrimSpace(query.Get("project_id")),
		AssigneeID: strings.TrimSpace(query.Get("assignee_id")),
	}
	if raw := strings.TrimSpace(query.Get("include_archived")); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return common.ScopeRequest{}, fmt.Errorf("%w: include_archived must be a boolean", common.ErrInvalidRequest)
		}
		scope.IncludeArchived = include
	}
	return scope, nil
}

// timeFromQuery parses one optional RFC3339 query timestamp.
func timeFromQuery(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", common.ErrInvalidRequest, key)
	}
	return &ts, nil
}

// resolveResourceID parses `{prefix}{id}` and returns `{id}`.
func resolveResourceID(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	id := strings.TrimSpace(strings.TrimPrefix(path, prefix))
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    common.CodeInternal,
			Message: "unknown error",
		})
		return
	}
	code := common.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case common.CodeInvalidRequest:
		status = http.StatusBadRequest
	case common.CodeNotFound:
		status = http.StatusNotFound
	case common.CodeDependencyCycle, common.CodeDuplicateDependency:
		status = http.StatusConflict
	}
	writeJSONError(w, status, APIError{
		Code:    code,
		Message: err.Error(),
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
