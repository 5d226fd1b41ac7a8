package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"incident-platform/internal/models"
	"incident-platform/internal/repository"
	"incident-platform/pkg/logging"
	"incident-platform/pkg/metrics"
)

// shortDateLayout is the locale display format for the detail table.
const shortDateLayout = "02/01/2006"

// DashboardService loads the persisted incident snapshot and computes the
// presentation-ready subsets and aggregates. The loaded snapshot is cached
// per store identity and must be treated as immutable by callers; the
// filter/aggregate operations only ever return fresh slices.
type DashboardService struct {
	repo    repository.IncidentRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector

	mu       sync.Mutex
	cacheKey string
	cached   []*models.Incident
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(repo repository.IncidentRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *DashboardService {
	return &DashboardService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Load returns the full snapshot, reading the store only when the store
// identity differs from the cached one. Repeated renders triggered by
// filter changes reuse the cached copy.
func (s *DashboardService) Load(ctx context.Context) ([]*models.Incident, error) {
	key := s.repo.StoreID()

	s.mu.Lock()
	if s.cached != nil && s.cacheKey == key {
		cached := s.cached
		s.mu.Unlock()
		s.metrics.CacheHitsTotal.Inc()
		return cached, nil
	}
	s.mu.Unlock()

	s.metrics.CacheMissesTotal.Inc()
	incidents, err := s.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cacheKey = key
	s.cached = incidents
	s.mu.Unlock()

	return incidents, nil
}

// Invalidate drops the cached snapshot; the next Load re-reads the store.
func (s *DashboardService) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.cacheKey = ""
	s.mu.Unlock()
}

// loadSnapshot is the pure (uncached) load behind Load.
func (s *DashboardService) loadSnapshot(ctx context.Context) ([]*models.Incident, error) {
	incidents, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "[DASHBOARD_LOAD] Snapshot loaded from store", logging.Fields{
		"store":     s.repo.StoreID(),
		"row_count": len(incidents),
	})

	return incidents, nil
}

// FilterByType keeps rows whose incident type is in selected. An empty
// selection means "show all", not "show none": it returns the input
// unchanged.
func (s *DashboardService) FilterByType(incidents []*models.Incident, selected []string) []*models.Incident {
	if len(selected) == 0 {
		return incidents
	}

	wanted := make(map[string]struct{}, len(selected))
	for _, t := range selected {
		wanted[t] = struct{}{}
	}

	filtered := make([]*models.Incident, 0, len(incidents))
	for _, incident := range incidents {
		if _, ok := wanted[incident.IncidentType]; ok {
			filtered = append(filtered, incident)
		}
	}
	return filtered
}

// Metrics computes the headline aggregates for the metrics display.
func (s *DashboardService) Metrics(incidents []*models.Incident) models.DashboardMetrics {
	m := models.DashboardMetrics{Incidents: len(incidents)}
	for _, incident := range incidents {
		m.Injured += incident.Injured
		m.Fatalities += incident.Fatalities
	}
	return m
}

// GeoSubset projects rows with a full coordinate pair to {lat, lon} points
// for map rendering. Rows without coordinates are skipped, not errors.
func (s *DashboardService) GeoSubset(incidents []*models.Incident) []models.MapPoint {
	points := make([]models.MapPoint, 0, len(incidents))
	for _, incident := range incidents {
		if incident.HasCoordinates() {
			points = append(points, models.MapPoint{
				Lat: *incident.Latitude,
				Lon: *incident.Longitude,
			})
		}
	}
	return points
}

// TopNCategorical counts value frequencies of the named column, keeps the
// top n by descending count, then re-orders ascending for horizontal-bar
// presentation. Ties preserve first-encountered order.
func (s *DashboardService) TopNCategorical(incidents []*models.Incident, column string, n int) ([]models.CategoryCount, error) {
	accessor, err := categoricalAccessor(column)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []models.CategoryCount{}, nil
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, incident := range incidents {
		value := accessor(incident)
		if _, seen := counts[value]; !seen {
			order = append(order, value)
		}
		counts[value]++
	}

	entries := make([]models.CategoryCount, 0, len(order))
	for _, value := range order {
		entries = append(entries, models.CategoryCount{Value: value, Count: counts[value]})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})

	if len(entries) > n {
		entries = entries[:n]
	}

	// Ascending order reads bottom-up on a horizontal bar chart.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

// categoricalAccessor maps an exposed column name to its field. Unknown
// columns are rejected rather than reflected over.
func categoricalAccessor(column string) (func(*models.Incident) string, error) {
	switch column {
	case "neighborhood":
		return func(i *models.Incident) string { return i.Neighborhood }, nil
	case "borough":
		return func(i *models.Incident) string { return i.Borough }, nil
	case "incident_type":
		return func(i *models.Incident) string { return i.IncidentType }, nil
	case "street":
		return func(i *models.Incident) string { return i.Street }, nil
	case "day_of_week":
		return func(i *models.Incident) string {
			if i.DayOfWeek == nil {
				return ""
			}
			return *i.DayOfWeek
		}, nil
	case "case_status":
		return func(i *models.Incident) string { return i.CaseStatus }, nil
	default:
		return nil, fmt.Errorf("unsupported column %q", column)
	}
}

// DetailView sorts by date descending with nulls last, projects to the
// fixed display columns, and truncates to limit rows.
func (s *DashboardService) DetailView(incidents []*models.Incident, limit int) []models.DetailRow {
	sorted := make([]*models.Incident, len(incidents))
	copy(sorted, incidents)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Date, sorted[j].Date
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	rows := make([]models.DetailRow, 0, len(sorted))
	for _, incident := range sorted {
		row := models.DetailRow{
			CaseStatus:        incident.CaseStatus,
			AggravatingFactor: incident.AggravatingFactor,
			IncidentType:      incident.IncidentType,
			Neighborhood:      incident.Neighborhood,
			Street:            incident.Street,
			Injured:           incident.Injured,
			Fatalities:        incident.Fatalities,
		}
		if incident.Date != nil {
			row.ShortDate = incident.Date.Format(shortDateLayout)
		}
		rows = append(rows, row)
	}
	return rows
}

// IncidentTypes returns the sorted distinct incident types, feeding the
// dashboard's multi-select filter control.
func (s *DashboardService) IncidentTypes(incidents []*models.Incident) []string {
	seen := make(map[string]struct{})
	types := make([]string, 0)
	for _, incident := range incidents {
		if _, ok := seen[incident.IncidentType]; !ok {
			seen[incident.IncidentType] = struct{}{}
			types = append(types, incident.IncidentType)
		}
	}
	sort.Strings(types)
	return types
}
