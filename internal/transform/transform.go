package transform

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"incident-platform/internal/models"
	"incident-platform/pkg/logging"
	"incident-platform/pkg/metrics"
)

// Source property names as they appear in the municipal export after key
// normalization.
const (
	srcObjectID     = "objectid"
	srcID           = "id"
	srcDate         = "fecha"
	srcTime         = "hora"
	srcType         = "tipo"
	srcInjured      = "heridos"
	srcFatalities   = "muertos"
	srcStreet1      = "calle_1"
	srcStreet2      = "calle_2"
	srcBorough      = "delegacion"
	srcNeighborhood = "colonia"
	srcCaseType     = "tipo_hecho"
	srcAggravating  = "tipo_enerv"
	srcCaseStatus   = "estado"
)

// datetimeLayout is the fixed format the reconciled date+time string must
// match after meridiem cleanup.
const datetimeLayout = "2006-01-02 15:04:05"

// weekdayNames maps Go weekdays to the Spanish labels shown on the dashboard.
var weekdayNames = map[time.Weekday]string{
	time.Monday:    "Lunes",
	time.Tuesday:   "Martes",
	time.Wednesday: "Miércoles",
	time.Thursday:  "Jueves",
	time.Friday:    "Viernes",
	time.Saturday:  "Sábado",
	time.Sunday:    "Domingo",
}

// Transformer converts raw geospatial features into normalized incident
// records. Field-level problems degrade to sentinel defaults and never abort
// the transform; only a missing source table is fatal.
type Transformer struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewTransformer creates a new transformer
func NewTransformer(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Transformer {
	return &Transformer{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Transform normalizes every raw feature into the canonical incident schema.
func (t *Transformer) Transform(ctx context.Context, features []models.RawFeature) ([]*models.Incident, error) {
	if features == nil {
		return nil, &models.ValidationError{
			Field:   "features",
			Message: "no source features to transform",
		}
	}

	timer := time.Now()
	incidents := make([]*models.Incident, 0, len(features))
	invalidDates := 0

	for _, feature := range features {
		props := NormalizeKeys(feature.Properties)

		incident := &models.Incident{
			IncidentID:       t.deriveID(props, feature.Index),
			Longitude:        feature.Longitude,
			Latitude:         feature.Latitude,
			VehiclesInvolved: 0, // placeholder until the export carries vehicle counts
		}

		date, clock, weekday := DeriveDatetime(props)
		incident.Date = date
		incident.Time = clock
		incident.DayOfWeek = weekday
		if date == nil {
			invalidDates++
		}

		incident.Injured = t.coerceCount(props, srcInjured)
		incident.Fatalities = t.coerceCount(props, srcFatalities)

		incident.IncidentType = t.categorical(props, srcType, models.DefaultIncidentType, true)
		incident.CaseStatus = t.categorical(props, srcCaseStatus, models.DefaultCaseStatus, true)
		incident.AggravatingFactor = t.categorical(props, srcAggravating, models.DefaultAggravatingFactor, true)
		incident.Borough = t.categorical(props, srcBorough, models.DefaultPlace, false)
		incident.Neighborhood = t.categorical(props, srcNeighborhood, models.DefaultPlace, false)

		// The export rarely fills tipo_hecho; the incident type stands in.
		incident.CaseType = t.categorical(props, srcCaseType, incident.IncidentType, false)

		incident.Street = t.composeStreet(props)

		incidents = append(incidents, incident)
	}

	duration := time.Since(timer)
	t.metrics.ETLStageDuration.WithLabelValues("transform").Observe(duration.Seconds())
	t.metrics.ETLRecordsTotal.Add(float64(len(incidents)))

	t.logger.Info(ctx, "[TRANSFORM_COMPLETE] Features normalized", logging.Fields{
		"record_count":  len(incidents),
		"invalid_dates": invalidDates,
		"duration_ms":   duration.Milliseconds(),
	})

	return incidents, nil
}

// NormalizeKeys lower-cases and underscores all property keys. Values are
// carried over untouched.
func NormalizeKeys(props map[string]interface{}) map[string]interface{} {
	normalized := make(map[string]interface{}, len(props))
	for key, value := range props {
		key = strings.ToLower(strings.TrimSpace(key))
		key = strings.ReplaceAll(key, " ", "_")
		normalized[key] = value
	}
	return normalized
}

// DeriveDatetime reconciles the export's separate date and time fields into
// a parsed date, a "HH:MM:SS" clock string, and a Spanish weekday label.
// Either source field missing, or a value that does not parse after meridiem
// cleanup, yields nil for all three. The row itself is never dropped.
func DeriveDatetime(props map[string]interface{}) (*time.Time, *string, *string) {
	dateRaw, dateOK := stringProp(props, srcDate)
	timeRaw, timeOK := stringProp(props, srcTime)
	if !dateOK || !timeOK {
		return nil, nil, nil
	}

	combined := cleanClockSuffix(dateRaw + " " + timeRaw)
	parsed, err := time.Parse(datetimeLayout, combined)
	if err != nil {
		return nil, nil, nil
	}

	date := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
	clock := parsed.Format("15:04:05")
	weekday := weekdayNames[parsed.Weekday()]

	return &date, &clock, &weekday
}

// cleanClockSuffix strips the localized meridiem suffixes and stray periods
// the export mixes into its time strings, e.g. "14:30:00 p. m." → "14:30:00".
func cleanClockSuffix(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " p. m.", "")
	s = strings.ReplaceAll(s, " a. m.", "")
	s = strings.ReplaceAll(s, ".", "")
	return strings.TrimSpace(s)
}

// deriveID takes the export's numeric id when present, else the positional
// index. Uniqueness relies on the source; the positional fallback is only
// stable while extraction neither filters nor reorders features.
func (t *Transformer) deriveID(props map[string]interface{}, index int) string {
	if id, ok := stringProp(props, srcObjectID); ok && id != "" {
		return id
	}
	if id, ok := stringProp(props, srcID); ok && id != "" {
		return id
	}
	return strconv.Itoa(index)
}

// coerceCount coerces a numeric-like property to a non-negative int.
// Missing, non-numeric, and negative values all coerce to 0.
func (t *Transformer) coerceCount(props map[string]interface{}, key string) int {
	value, ok := props[key]
	if !ok || value == nil {
		return 0
	}

	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			t.metrics.RecordDefaultedField(key)
			return 0
		}
		n = parsed
	default:
		t.metrics.RecordDefaultedField(key)
		return 0
	}

	if math.IsNaN(n) || n < 0 {
		return 0
	}
	return int(n)
}

// categorical takes the named property if present, else the default, trims
// whitespace, and uppercases classification/status fields.
func (t *Transformer) categorical(props map[string]interface{}, key, def string, upper bool) string {
	value, ok := stringProp(props, key)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		t.metrics.RecordDefaultedField(key)
		return def
	}
	if upper {
		return strings.ToUpper(value)
	}
	return value
}

// composeStreet builds the display street from the two source sub-fields:
// "<calle_1> y <calle_2>" when the second is present, else calle_1 alone,
// with the sentinel default when both are empty.
func (t *Transformer) composeStreet(props map[string]interface{}) string {
	street1, _ := stringProp(props, srcStreet1)
	street2, _ := stringProp(props, srcStreet2)
	street1 = strings.TrimSpace(street1)
	street2 = strings.TrimSpace(street2)

	street := street1
	if street2 != "" {
		street = strings.TrimSpace(street1 + " y " + street2)
	}
	if street == "" {
		t.metrics.RecordDefaultedField("calle")
		return models.DefaultPlace
	}
	return street
}

// stringProp is the get-with-default accessor over the semi-structured
// property bag: it stringifies whatever the export put in the field. The
// second return reports whether the field was present and non-nil.
func stringProp(props map[string]interface{}, key string) (string, bool) {
	value, ok := props[key]
	if !ok || value == nil {
		return "", false
	}

	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return fmt.Sprint(v), true
	}
}
