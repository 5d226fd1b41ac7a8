package transform

import (
	"context"
	"io"
	"testing"
	"time"

	"incident-platform/internal/models"
	"incident-platform/pkg/logging"
	"incident-platform/pkg/metrics"
)

var testMetrics = metrics.NewCollector("transform_test")

func newTestTransformer() *Transformer {
	logger := logging.NewStructuredLogger("test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return NewTransformer(logger, testMetrics)
}

func TestNormalizeKeys(t *testing.T) {
	props := map[string]interface{}{
		"OBJECTID": 1.0,
		"Calle 1":  "Av. Reforma",
		" Hora ":   "14:30:00",
	}

	normalized := NormalizeKeys(props)

	for _, key := range []string{"objectid", "calle_1", "hora"} {
		if _, ok := normalized[key]; !ok {
			t.Errorf("expected normalized key %q, got %v", key, normalized)
		}
	}
}

func TestDeriveDatetime(t *testing.T) {
	tests := []struct {
		name        string
		props       map[string]interface{}
		wantDate    *time.Time
		wantTime    string
		wantWeekday string
	}{
		{
			name: "meridiem suffix stripped and parsed",
			props: map[string]interface{}{
				"fecha": "2021-06-15",
				"hora":  "14:30:00 p. m.",
			},
			wantDate:    timePtr(time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC)),
			wantTime:    "14:30:00",
			wantWeekday: "Martes",
		},
		{
			name: "morning suffix",
			props: map[string]interface{}{
				"fecha": "2021-06-13",
				"hora":  "08:05:00 a. m.",
			},
			wantDate:    timePtr(time.Date(2021, 6, 13, 0, 0, 0, 0, time.UTC)),
			wantTime:    "08:05:00",
			wantWeekday: "Domingo",
		},
		{
			name: "unparseable time nulls the whole group",
			props: map[string]interface{}{
				"fecha": "2021-06-15",
				"hora":  "not-a-time",
			},
		},
		{
			name: "missing hora column is a degraded mode, not an error",
			props: map[string]interface{}{
				"fecha": "2021-06-15",
			},
		},
		{
			name:  "missing fecha column",
			props: map[string]interface{}{"hora": "14:30:00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, clock, weekday := DeriveDatetime(tt.props)

			if tt.wantDate == nil {
				if date != nil || clock != nil || weekday != nil {
					t.Errorf("expected nil date/time/weekday, got %v %v %v", date, clock, weekday)
				}
				return
			}

			if date == nil || !date.Equal(*tt.wantDate) {
				t.Errorf("date = %v, want %v", date, tt.wantDate)
			}
			if clock == nil || *clock != tt.wantTime {
				t.Errorf("time = %v, want %v", clock, tt.wantTime)
			}
			if weekday == nil || *weekday != tt.wantWeekday {
				t.Errorf("weekday = %v, want %v", weekday, tt.wantWeekday)
			}
		})
	}
}

func TestTransform_NumericCoercion(t *testing.T) {
	tr := newTestTransformer()

	tests := []struct {
		name           string
		heridos        interface{}
		muertos        interface{}
		wantInjured    int
		wantFatalities int
	}{
		{"numbers pass through", 3.0, 1.0, 3, 1},
		{"numeric strings parse", "2", "0", 2, 0},
		{"garbage coerces to zero", "abc", "n/a", 0, 0},
		{"missing coerces to zero", nil, nil, 0, 0},
		{"negative clamps to zero", -4.0, "-1", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props := map[string]interface{}{}
			if tt.heridos != nil {
				props["heridos"] = tt.heridos
			}
			if tt.muertos != nil {
				props["muertos"] = tt.muertos
			}

			incidents, err := tr.Transform(context.Background(), []models.RawFeature{{Properties: props}})
			if err != nil {
				t.Fatalf("Transform() error = %v", err)
			}

			if got := incidents[0].Injured; got != tt.wantInjured {
				t.Errorf("Injured = %d, want %d", got, tt.wantInjured)
			}
			if got := incidents[0].Fatalities; got != tt.wantFatalities {
				t.Errorf("Fatalities = %d, want %d", got, tt.wantFatalities)
			}
			if incidents[0].Injured < 0 || incidents[0].Fatalities < 0 {
				t.Error("counts must never be negative after transform")
			}
		})
	}
}

func TestTransform_Categoricals(t *testing.T) {
	tr := newTestTransformer()

	feature := models.RawFeature{
		Properties: map[string]interface{}{
			"tipo":       "  choque lateral ",
			"estado":     "cerrado",
			"tipo_enerv": "alcohol",
			"delegacion": "Centro Histórico",
			"colonia":    "La Paz",
		},
	}

	incidents, err := tr.Transform(context.Background(), []models.RawFeature{feature, {Properties: map[string]interface{}{}}})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	got := incidents[0]
	if got.IncidentType != "CHOQUE LATERAL" {
		t.Errorf("IncidentType = %q, want %q", got.IncidentType, "CHOQUE LATERAL")
	}
	if got.CaseStatus != "CERRADO" {
		t.Errorf("CaseStatus = %q, want %q", got.CaseStatus, "CERRADO")
	}
	if got.AggravatingFactor != "ALCOHOL" {
		t.Errorf("AggravatingFactor = %q, want %q", got.AggravatingFactor, "ALCOHOL")
	}
	// Place names keep their source casing.
	if got.Borough != "Centro Histórico" {
		t.Errorf("Borough = %q, want source casing preserved", got.Borough)
	}
	if got.Neighborhood != "La Paz" {
		t.Errorf("Neighborhood = %q, want source casing preserved", got.Neighborhood)
	}

	defaulted := incidents[1]
	if defaulted.IncidentType != models.DefaultIncidentType {
		t.Errorf("IncidentType default = %q, want %q", defaulted.IncidentType, models.DefaultIncidentType)
	}
	if defaulted.CaseStatus != models.DefaultCaseStatus {
		t.Errorf("CaseStatus default = %q, want %q", defaulted.CaseStatus, models.DefaultCaseStatus)
	}
	if defaulted.AggravatingFactor != models.DefaultAggravatingFactor {
		t.Errorf("AggravatingFactor default = %q, want %q", defaulted.AggravatingFactor, models.DefaultAggravatingFactor)
	}
	if defaulted.Borough != models.DefaultPlace || defaulted.Neighborhood != models.DefaultPlace {
		t.Errorf("place defaults = %q/%q, want %q", defaulted.Borough, defaulted.Neighborhood, models.DefaultPlace)
	}
	if defaulted.CaseType != models.DefaultIncidentType {
		t.Errorf("CaseType fallback = %q, want incident type %q", defaulted.CaseType, models.DefaultIncidentType)
	}
}

func TestTransform_StreetComposition(t *testing.T) {
	tr := newTestTransformer()

	tests := []struct {
		name    string
		street1 string
		street2 string
		want    string
	}{
		{"both streets joined", "Av. Reforma", "Calle 5", "Av. Reforma y Calle 5"},
		{"second street empty", "Av. Reforma", "", "Av. Reforma"},
		{"both empty gets the sentinel", "", "", models.DefaultPlace},
		{"whitespace trimmed", "  Av. Reforma  ", "  Calle 5  ", "Av. Reforma y Calle 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feature := models.RawFeature{
				Properties: map[string]interface{}{
					"calle_1": tt.street1,
					"calle_2": tt.street2,
				},
			}

			incidents, err := tr.Transform(context.Background(), []models.RawFeature{feature})
			if err != nil {
				t.Fatalf("Transform() error = %v", err)
			}

			if got := incidents[0].Street; got != tt.want {
				t.Errorf("Street = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransform_IDDerivation(t *testing.T) {
	tr := newTestTransformer()

	features := []models.RawFeature{
		{Index: 0, Properties: map[string]interface{}{"objectid": 123.0}},
		{Index: 1, Properties: map[string]interface{}{"id": "abc-9"}},
		{Index: 2, Properties: map[string]interface{}{}},
	}

	incidents, err := tr.Transform(context.Background(), features)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if incidents[0].IncidentID != "123" {
		t.Errorf("IncidentID = %q, want %q", incidents[0].IncidentID, "123")
	}
	if incidents[1].IncidentID != "abc-9" {
		t.Errorf("IncidentID = %q, want %q", incidents[1].IncidentID, "abc-9")
	}
	if incidents[2].IncidentID != "2" {
		t.Errorf("IncidentID fallback = %q, want positional %q", incidents[2].IncidentID, "2")
	}
}

func TestTransform_Coordinates(t *testing.T) {
	tr := newTestTransformer()

	lon, lat := -98.2063, 19.0414
	features := []models.RawFeature{
		{Properties: map[string]interface{}{}, Longitude: &lon, Latitude: &lat},
		{Properties: map[string]interface{}{}},
	}

	incidents, err := tr.Transform(context.Background(), features)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if !incidents[0].HasCoordinates() {
		t.Error("expected coordinates to be carried through")
	}
	if *incidents[0].Longitude != lon || *incidents[0].Latitude != lat {
		t.Errorf("coordinates = %v/%v, want %v/%v",
			*incidents[0].Longitude, *incidents[0].Latitude, lon, lat)
	}
	if incidents[1].HasCoordinates() {
		t.Error("expected nil coordinates for geometry-less feature, row kept")
	}
}

// Vehicles involved is a placeholder with no data source yet; it must stay
// constant until a real derivation exists.
func TestTransform_VehiclesInvolvedIsConstantZero(t *testing.T) {
	tr := newTestTransformer()

	features := []models.RawFeature{
		{Properties: map[string]interface{}{"vehiculos": 5.0}},
		{Properties: map[string]interface{}{"vehiculos_involucrados": "3"}},
		{Properties: map[string]interface{}{}},
	}

	incidents, err := tr.Transform(context.Background(), features)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	for i, incident := range incidents {
		if incident.VehiclesInvolved != 0 {
			t.Errorf("incident %d: VehiclesInvolved = %d, want constant 0", i, incident.VehiclesInvolved)
		}
	}
}

func TestTransform_NilFeaturesIsFatal(t *testing.T) {
	tr := newTestTransformer()

	if _, err := tr.Transform(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil feature slice")
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
