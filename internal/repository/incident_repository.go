package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"incident-platform/internal/models"
	"incident-platform/pkg/database"
	"incident-platform/pkg/logging"
	"incident-platform/pkg/metrics"
)

// IncidentRepository provides data access for the persisted incident snapshot.
type IncidentRepository interface {
	// ReplaceAll atomically replaces the whole road_incidents table with the
	// given records. The previous snapshot survives intact if the load fails.
	ReplaceAll(ctx context.Context, incidents []*models.Incident) error

	// ListAll reads the full persisted snapshot in canonical column order.
	// Returns EmptyDatasetError when the table is missing or has no rows.
	ListAll(ctx context.Context) ([]*models.Incident, error)

	// Count returns the persisted row count (0 when the table is missing).
	Count(ctx context.Context) (int, error)

	// StoreID identifies the underlying store handle for session caching.
	StoreID() string

	HealthCheck(ctx context.Context) error
}

// incidentRepository implements IncidentRepository
type incidentRepository struct {
	db      *database.SQLiteDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewIncidentRepository creates a new incident repository
func NewIncidentRepository(db *database.SQLiteDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) IncidentRepository {
	return &incidentRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const createTableSQL = `
CREATE TABLE ` + models.TableName + ` (
	id_incident        TEXT NOT NULL,
	date               INTEGER,
	time               TEXT,
	day_of_week        TEXT,
	incident_type      TEXT NOT NULL,
	longitude          REAL,
	latitude           REAL,
	borough            TEXT NOT NULL,
	neighborhood       TEXT NOT NULL,
	street             TEXT NOT NULL,
	case_type          TEXT NOT NULL,
	aggravating_factor TEXT NOT NULL,
	case_status        TEXT NOT NULL,
	injured            INTEGER NOT NULL DEFAULT 0,
	fatalities         INTEGER NOT NULL DEFAULT 0,
	vehicles_involved  INTEGER NOT NULL DEFAULT 0
)`

// ReplaceAll drops and rebuilds the snapshot table inside one transaction.
func (r *incidentRepository) ReplaceAll(ctx context.Context, incidents []*models.Incident) error {
	timer := time.Now()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+models.TableName); err != nil {
		return fmt.Errorf("failed to drop previous snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create snapshot table: %w", err)
	}

	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		models.TableName,
		strings.Join(models.Columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(models.Columns)), ", "),
	)

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, incident := range incidents {
		_, err := stmt.ExecContext(ctx,
			incident.IncidentID,
			toMillis(incident.Date),
			incident.Time,
			incident.DayOfWeek,
			incident.IncidentType,
			incident.Longitude,
			incident.Latitude,
			incident.Borough,
			incident.Neighborhood,
			incident.Street,
			incident.CaseType,
			incident.AggravatingFactor,
			incident.CaseStatus,
			incident.Injured,
			incident.Fatalities,
			incident.VehiclesInvolved,
		)
		if err != nil {
			return fmt.Errorf("failed to insert incident %s: %w", incident.IncidentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	duration := time.Since(timer)
	r.metrics.ETLStageDuration.WithLabelValues("load").Observe(duration.Seconds())
	r.metrics.ETLSnapshotRows.Set(float64(len(incidents)))

	r.logger.Info(ctx, "[REPO_REPLACE] Snapshot replaced", logging.Fields{
		"table":       models.TableName,
		"row_count":   len(incidents),
		"duration_ms": duration.Milliseconds(),
	})

	return nil
}

// ListAll reads every persisted incident in canonical column order.
func (r *incidentRepository) ListAll(ctx context.Context) ([]*models.Incident, error) {
	exists, err := r.tableExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect store: %w", err)
	}
	if !exists {
		return nil, &EmptyDatasetError{Table: models.TableName}
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s",
		strings.Join(models.Columns, ", "),
		models.TableName,
	)

	var rows []*incidentRow
	if err := r.db.SelectContext(ctx, "list_incidents", &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}

	if len(rows) == 0 {
		return nil, &EmptyDatasetError{Table: models.TableName}
	}

	incidents := make([]*models.Incident, 0, len(rows))
	for _, row := range rows {
		incidents = append(incidents, row.toIncident())
	}

	return incidents, nil
}

// incidentRow is the scan target for the persisted schema. Dates are stored
// as unix milliseconds so the SQLite driver never has to guess a time
// encoding.
type incidentRow struct {
	IncidentID        string   `db:"id_incident"`
	Date              *int64   `db:"date"`
	Time              *string  `db:"time"`
	DayOfWeek         *string  `db:"day_of_week"`
	IncidentType      string   `db:"incident_type"`
	Longitude         *float64 `db:"longitude"`
	Latitude          *float64 `db:"latitude"`
	Borough           string   `db:"borough"`
	Neighborhood      string   `db:"neighborhood"`
	Street            string   `db:"street"`
	CaseType          string   `db:"case_type"`
	AggravatingFactor string   `db:"aggravating_factor"`
	CaseStatus        string   `db:"case_status"`
	Injured           int      `db:"injured"`
	Fatalities        int      `db:"fatalities"`
	VehiclesInvolved  int      `db:"vehicles_involved"`
}

func (row *incidentRow) toIncident() *models.Incident {
	return &models.Incident{
		IncidentID:        row.IncidentID,
		Date:              fromMillis(row.Date),
		Time:              row.Time,
		DayOfWeek:         row.DayOfWeek,
		IncidentType:      row.IncidentType,
		Longitude:         row.Longitude,
		Latitude:          row.Latitude,
		Borough:           row.Borough,
		Neighborhood:      row.Neighborhood,
		Street:            row.Street,
		CaseType:          row.CaseType,
		AggravatingFactor: row.AggravatingFactor,
		CaseStatus:        row.CaseStatus,
		Injured:           row.Injured,
		Fatalities:        row.Fatalities,
		VehiclesInvolved:  row.VehiclesInvolved,
	}
}

func toMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UTC().UnixMilli()
	return &ms
}

func fromMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

// Count returns the persisted row count, 0 when the snapshot table is absent.
func (r *incidentRepository) Count(ctx context.Context) (int, error) {
	exists, err := r.tableExists(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect store: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var count int
	if err := r.db.GetContext(ctx, "count_incidents", &count, "SELECT COUNT(*) FROM "+models.TableName); err != nil {
		return 0, fmt.Errorf("failed to count incidents: %w", err)
	}
	return count, nil
}

func (r *incidentRepository) tableExists(ctx context.Context) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, "table_exists", &count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", models.TableName)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// StoreID returns the database file path backing this repository.
func (r *incidentRepository) StoreID() string {
	return r.db.Path()
}

// HealthCheck performs a repository health check
func (r *incidentRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// EmptyDatasetError signals that the snapshot table is missing or empty.
// Callers show a "run the ETL pipeline first" notice instead of a generic
// failure.
type EmptyDatasetError struct {
	Table string
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("no incident data in table %s: run the ETL pipeline first", e.Table)
}

func (e *EmptyDatasetError) IsTransient() bool {
	return false
}
