package graphql

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/mockgql/pkg/logging"
	"github.com/getmockd/mockgql/pkg/metrics"
	"github.com/vektah/gqlparser/v2/ast"
)

// MaxRequestBodySize is the maximum allowed request body size (1MB).
const MaxRequestBodySize = 1 << 20 // 1MB

// MaxLogBodySize is the maximum query size to include in logs (10KB).
const MaxLogBodySize = 10 * 1024

// Handler serves GraphQL over HTTP and, when a SubscriptionHandler is
// attached, GraphQL subscriptions over WebSocket on the same path.
type Handler struct {
	executor      *Executor
	subscriptions *SubscriptionHandler
	log           *slog.Logger
	path          string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSubscriptions routes WebSocket upgrades to sh.
func WithSubscriptions(sh *SubscriptionHandler) HandlerOption {
	return func(h *Handler) { h.subscriptions = sh }
}

// WithHandlerLogger sets the logger used for per-request debug lines.
func WithHandlerLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithHandlerPath sets the endpoint path used as the metrics path label.
// Without it the label is the ServeMux pattern that matched the request.
func WithHandlerPath(path string) HandlerOption {
	return func(h *Handler) { h.path = path }
}

// NewHandler creates a new GraphQL HTTP handler.
func NewHandler(executor *Executor, opts ...HandlerOption) *Handler {
	h := &Handler{
		executor: executor,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Executor returns the executor behind this handler.
func (h *Handler) Executor() *Executor {
	return h.executor
}

// ServeHTTP handles GET and POST GraphQL requests.
// POST accepts application/json and application/graphql bodies.
// CORS is handled by the engine's middleware, not here.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if h.subscriptions != nil && isWebSocketUpgrade(r) {
		h.subscriptions.ServeHTTP(w, r)
		return
	}

	// Handle preflight requests (CORS headers are set by middleware)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, POST")
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		h.recordMetrics(h.metricsPath(r), "unknown", http.StatusMethodNotAllowed, time.Since(startTime))
		return
	}

	var req *GraphQLRequest
	var err error
	if r.Method == http.MethodGet {
		req, err = h.parseGetRequest(r)
	} else {
		req, err = h.parsePostRequest(w, r)
	}
	if err != nil {
		status := http.StatusBadRequest
		if pe, ok := err.(*parseError); ok && pe.status != 0 {
			status = pe.status
		}
		h.writeError(w, status, err.Error())
		h.recordMetrics(h.metricsPath(r), "unknown", status, time.Since(startTime))
		return
	}

	op, errs := h.executor.Prepare(req)
	if errs != nil {
		h.writeResponse(w, http.StatusOK, &GraphQLResponse{Errors: errs})
		h.logRequest(r, req, "unknown", len(errs), startTime)
		h.recordMetrics(h.metricsPath(r), "unknown", http.StatusOK, time.Since(startTime))
		return
	}

	opType := string(op.Type())

	// GET must not have side effects
	if r.Method == http.MethodGet && op.Type() == ast.Mutation {
		w.Header().Set("Allow", "POST")
		h.writeError(w, http.StatusMethodNotAllowed, "mutations are only allowed over POST")
		h.recordMetrics(h.metricsPath(r), opType, http.StatusMethodNotAllowed, time.Since(startTime))
		return
	}

	var resp *GraphQLResponse
	if op.Type() == ast.Subscription {
		resp = errorResponse("subscriptions are only available over WebSocket")
	} else {
		resp = h.executor.Run(r.Context(), op)
	}

	h.writeResponse(w, http.StatusOK, resp)
	h.logRequest(r, req, opType, len(resp.Errors), startTime)
	h.recordMetrics(h.metricsPath(r), opType, http.StatusOK, time.Since(startTime))
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// metricsPath is the path label for request metrics. It never comes from
// the raw request path, which a catch-all endpoint does not bound.
func (h *Handler) metricsPath(r *http.Request) string {
	if h.path != "" {
		return h.path
	}
	return r.Pattern
}

// recordMetrics records GraphQL request metrics.
func (h *Handler) recordMetrics(path, operation string, status int, duration time.Duration) {
	if metrics.RequestsTotal != nil {
		if vec, err := metrics.RequestsTotal.WithLabels(operation, path, strconv.Itoa(status)); err == nil {
			_ = vec.Inc()
		}
	}
	if metrics.RequestDuration != nil {
		if vec, err := metrics.RequestDuration.WithLabels(operation, path); err == nil {
			vec.Observe(duration.Seconds())
		}
	}
}

// parseGetRequest parses a GraphQL request from GET query parameters.
func (h *Handler) parseGetRequest(r *http.Request) (*GraphQLRequest, error) {
	query := r.URL.Query()

	req := &GraphQLRequest{
		Query:         query.Get("query"),
		OperationName: query.Get("operationName"),
	}
	if req.Query == "" {
		return nil, &parseError{message: "GET query missing"}
	}

	if varsStr := query.Get("variables"); varsStr != "" {
		var variables map[string]interface{}
		if err := json.Unmarshal([]byte(varsStr), &variables); err != nil {
			return nil, &parseError{message: "invalid variables JSON"}
		}
		req.Variables = variables
	}

	return req, nil
}

// parsePostRequest parses a GraphQL request from a POST body.
func (h *Handler) parsePostRequest(w http.ResponseWriter, r *http.Request) (*GraphQLRequest, error) {
	contentType := r.Header.Get("Content-Type")

	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &parseError{
				message: "request body exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes",
				status:  http.StatusRequestEntityTooLarge,
			}
		}
		return nil, &parseError{message: "failed to read request body"}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &parseError{message: "empty request body"}
	}

	if strings.HasPrefix(contentType, "application/graphql") {
		return &GraphQLRequest{Query: string(body)}, nil
	}

	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &parseError{message: "invalid JSON request body"}
	}
	return &req, nil
}

// writeError writes a transport-level error response.
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, message string) {
	h.writeResponse(w, statusCode, errorResponse(message))
}

func (h *Handler) writeResponse(w http.ResponseWriter, statusCode int, resp *GraphQLResponse) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(resp); err != nil {
		h.log.Error("failed to encode GraphQL response", "error", err)
		statusCode = http.StatusInternalServerError
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(errorResponse("failed to encode response"))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// logRequest writes a debug line for each executed request.
func (h *Handler) logRequest(r *http.Request, req *GraphQLRequest, opType string, errorCount int, startTime time.Time) {
	query := req.Query
	if len(query) > MaxLogBodySize {
		query = query[:MaxLogBodySize] + "...[truncated]"
	}
	h.log.Debug("graphql request",
		"method", r.Method,
		"path", r.URL.Path,
		"operationType", opType,
		"operationName", req.OperationName,
		"errors", errorCount,
		"durationMs", time.Since(startTime).Milliseconds(),
		"remoteAddr", r.RemoteAddr,
		"query", query,
	)
}

// parseError represents a request parsing error.
type parseError struct {
	message string
	status  int
}

func (e *parseError) Error() string {
	return e.message
}
