package models

import (
	"time"
)

// Sentinel defaults substituted when a source field is absent or empty.
const (
	DefaultIncidentType      = "UNSPECIFIED"
	DefaultCaseStatus        = "UNKNOWN"
	DefaultAggravatingFactor = "NONE"
	DefaultPlace             = "NO DATA"
)

// TableName is the single persisted table holding the normalized snapshot.
const TableName = "road_incidents"

// Incident is the normalized incident record persisted to the store.
// Nullable fields are pointers: date, time and day_of_week are null as a
// group when the source date/time could not be reconciled; coordinates are
// null independently when the feature carried no point geometry.
type Incident struct {
	IncidentID        string     `json:"id_incident" db:"id_incident"`
	Date              *time.Time `json:"date,omitempty" db:"date"`
	Time              *string    `json:"time,omitempty" db:"time"`
	DayOfWeek         *string    `json:"day_of_week,omitempty" db:"day_of_week"`
	IncidentType      string     `json:"incident_type" db:"incident_type"`
	Longitude         *float64   `json:"longitude,omitempty" db:"longitude"`
	Latitude          *float64   `json:"latitude,omitempty" db:"latitude"`
	Borough           string     `json:"borough" db:"borough"`
	Neighborhood      string     `json:"neighborhood" db:"neighborhood"`
	Street            string     `json:"street" db:"street"`
	CaseType          string     `json:"case_type" db:"case_type"`
	AggravatingFactor string     `json:"aggravating_factor" db:"aggravating_factor"`
	CaseStatus        string     `json:"case_status" db:"case_status"`
	Injured           int        `json:"injured" db:"injured"`
	Fatalities        int        `json:"fatalities" db:"fatalities"`
	VehiclesInvolved  int        `json:"vehicles_involved" db:"vehicles_involved"`
}

// Columns is the canonical column order of the persisted table. The
// transformer projects to this list and the loader writes it verbatim, so
// any schema drift upstream still has to conform here.
var Columns = []string{
	"id_incident", "date", "time", "day_of_week", "incident_type",
	"longitude", "latitude", "borough", "neighborhood", "street",
	"case_type", "aggravating_factor", "case_status",
	"injured", "fatalities", "vehicles_involved",
}

// HasCoordinates reports whether the record carries a full coordinate pair.
func (i *Incident) HasCoordinates() bool {
	return i.Longitude != nil && i.Latitude != nil
}

// RawFeature is one feature read from the GeoJSON source before
// normalization. Properties keep whatever attribute set the export carried;
// presence and naming of individual fields are not guaranteed.
type RawFeature struct {
	// Index is the feature's position in the source file, used as the
	// id_incident fallback when the export carries no id column.
	Index      int
	Properties map[string]interface{}
	// Longitude/Latitude are set only when the feature geometry was a
	// valid point.
	Longitude *float64
	Latitude  *float64
}

// MapPoint is the {lat, lon} pair projection consumed by map rendering.
type MapPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DashboardMetrics holds the headline aggregates for the metrics display.
type DashboardMetrics struct {
	Incidents  int `json:"incidents"`
	Injured    int `json:"injured"`
	Fatalities int `json:"fatalities"`
}

// CategoryCount is one bar of a value-frequency chart.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// DetailRow is the fixed display projection of the detail table, sorted by
// date descending. ShortDate is the locale-formatted dd/mm/yyyy label.
type DetailRow struct {
	ShortDate         string `json:"date,omitempty"`
	CaseStatus        string `json:"case_status"`
	AggravatingFactor string `json:"aggravating_factor"`
	IncidentType      string `json:"incident_type"`
	Neighborhood      string `json:"neighborhood"`
	Street            string `json:"street"`
	Injured           int    `json:"injured"`
	Fatalities        int    `json:"fatalities"`
}

// ValidationError represents a fatal precondition failure in the ETL path,
// e.g. a source file with no feature collection at all. Row-level data
// problems never produce one; they degrade to defaults instead.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent.
func (e *ValidationError) IsTransient() bool {
	return false
}
