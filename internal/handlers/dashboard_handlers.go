package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"incident-platform/internal/models"
	"incident-platform/internal/repository"
	"incident-platform/internal/services"
	"incident-platform/pkg/logging"
	"incident-platform/pkg/metrics"
)

// DashboardHandler exposes the incident dashboard API. It is the outermost
// boundary of the interactive path: every error is converted to a JSON
// notice here, and an empty store is reported as "run the ETL pipeline
// first" rather than a generic failure.
type DashboardHandler struct {
	dashboard *services.DashboardService
	repo      repository.IncidentRepository
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(
	dashboard *services.DashboardService,
	repo repository.IncidentRepository,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		repo:      repo,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// MetricsResponse carries the headline aggregates plus the unfiltered total
// so the UI can show "N of M incidents".
type MetricsResponse struct {
	models.DashboardMetrics
	TotalIncidents int `json:"total_incidents"`
}

// DetailResponse wraps the detail table rows.
type DetailResponse struct {
	Data  []models.DetailRow `json:"data"`
	Total int                `json:"total"`
	Limit int                `json:"limit"`
}

// MapResponse wraps the map point subset.
type MapResponse struct {
	Points []models.MapPoint `json:"points"`
	Total  int               `json:"total"`
}

// GetIncidents handles GET /api/incidents
func (h *DashboardHandler) GetIncidents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/incidents"))
	defer timer.ObserveDuration()

	limit, err := parseLimit(r, 100)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	incidents, err := h.dashboard.Load(ctx)
	if err != nil {
		h.sendLoadError(w, r, "/api/incidents", err)
		return
	}

	filtered := h.dashboard.FilterByType(incidents, parseTypes(r))
	rows := h.dashboard.DetailView(filtered, limit)

	h.metrics.RecordAPIRequest("/api/incidents", "GET", "200")
	h.sendJSON(w, DetailResponse{
		Data:  rows,
		Total: len(filtered),
		Limit: limit,
	}, http.StatusOK)
}

// GetIncidentTypes handles GET /api/incidents/types
func (h *DashboardHandler) GetIncidentTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/incidents/types"))
	defer timer.ObserveDuration()

	incidents, err := h.dashboard.Load(ctx)
	if err != nil {
		h.sendLoadError(w, r, "/api/incidents/types", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/incidents/types", "GET", "200")
	h.sendJSON(w, map[string]interface{}{
		"types": h.dashboard.IncidentTypes(incidents),
	}, http.StatusOK)
}

// GetMetrics handles GET /api/incidents/metrics
func (h *DashboardHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/incidents/metrics"))
	defer timer.ObserveDuration()

	incidents, err := h.dashboard.Load(ctx)
	if err != nil {
		h.sendLoadError(w, r, "/api/incidents/metrics", err)
		return
	}

	filtered := h.dashboard.FilterByType(incidents, parseTypes(r))

	h.metrics.RecordAPIRequest("/api/incidents/metrics", "GET", "200")
	h.sendJSON(w, MetricsResponse{
		DashboardMetrics: h.dashboard.Metrics(filtered),
		TotalIncidents:   len(incidents),
	}, http.StatusOK)
}

// GetMapPoints handles GET /api/incidents/map
func (h *DashboardHandler) GetMapPoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/incidents/map"))
	defer timer.ObserveDuration()

	incidents, err := h.dashboard.Load(ctx)
	if err != nil {
		h.sendLoadError(w, r, "/api/incidents/map", err)
		return
	}

	filtered := h.dashboard.FilterByType(incidents, parseTypes(r))
	points := h.dashboard.GeoSubset(filtered)

	h.metrics.RecordAPIRequest("/api/incidents/map", "GET", "200")
	h.sendJSON(w, MapResponse{
		Points: points,
		Total:  len(filtered),
	}, http.StatusOK)
}

// GetTopCategories handles GET /api/incidents/top
func (h *DashboardHandler) GetTopCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/incidents/top"))
	defer timer.ObserveDuration()

	column := r.URL.Query().Get("column")
	if column == "" {
		column = "neighborhood"
	}

	n := 10
	if nStr := r.URL.Query().Get("n"); nStr != "" {
		parsed, err := strconv.Atoi(nStr)
		if err != nil || parsed <= 0 || parsed > 100 {
			h.sendError(w, r, "invalid n, expected integer between 1 and 100", http.StatusBadRequest)
			return
		}
		n = parsed
	}

	incidents, err := h.dashboard.Load(ctx)
	if err != nil {
		h.sendLoadError(w, r, "/api/incidents/top", err)
		return
	}

	filtered := h.dashboard.FilterByType(incidents, parseTypes(r))
	entries, err := h.dashboard.TopNCategorical(filtered, column, n)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	h.metrics.RecordAPIRequest("/api/incidents/top", "GET", "200")
	h.sendJSON(w, map[string]interface{}{
		"column":  column,
		"entries": entries,
	}, http.StatusOK)
}

// HealthCheck handles GET /health. Store reachability is part of the
// report: an unreachable store degrades the status to 503.
func (h *DashboardHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.repo.HealthCheck(ctx); err != nil {
		h.logger.Error(ctx, "[HEALTH_CHECK] Store unreachable", logging.Fields{}, err)
		h.metrics.RecordAPIError("store_unreachable", "/health")
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{
		"status": status["status"],
	})
	h.sendJSON(w, status, code)
}

// parseTypes reads the incident-type multi-select. Both repeated params and
// comma-separated lists are accepted; no selection means "show all".
func parseTypes(r *http.Request) []string {
	var types []string
	for _, raw := range r.URL.Query()["types"] {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}
	return types
}

func parseLimit(r *http.Request, def int) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return def, nil
	}
	l, err := strconv.Atoi(limitStr)
	if err != nil || l <= 0 || l > 1000 {
		return 0, fmt.Errorf("invalid limit, expected integer between 1 and 1000")
	}
	return l, nil
}

// sendLoadError maps snapshot-load failures to user-facing notices. An
// empty store becomes a 409 prompting an ETL run; anything else is a
// generic 500 with no internals leaked.
func (h *DashboardHandler) sendLoadError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var empty *repository.EmptyDatasetError
	if errors.As(err, &empty) {
		h.metrics.RecordAPIError("empty_dataset", endpoint)
		h.sendError(w, r, "the incident store is empty: run the ETL pipeline first", http.StatusConflict)
		return
	}

	h.logger.Error(r.Context(), "[API_LOAD_ERROR] Failed to load snapshot", logging.Fields{
		"endpoint": endpoint,
	}, err)
	h.metrics.RecordAPIError("internal_error", endpoint)
	h.sendError(w, r, "failed to load incident data", http.StatusInternalServerError)
}

// sendJSON sends a JSON response
func (h *DashboardHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *DashboardHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all dashboard API routes
func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/incidents", h.GetIncidents).Methods("GET")
	router.HandleFunc("/api/incidents/types", h.GetIncidentTypes).Methods("GET")
	router.HandleFunc("/api/incidents/metrics", h.GetMetrics).Methods("GET")
	router.HandleFunc("/api/incidents/map", h.GetMapPoints).Methods("GET")
	router.HandleFunc("/api/incidents/top", h.GetTopCategories).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/", DashboardPage).Methods("GET")
}
