package repository

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incident-platform/internal/models"
	"incident-platform/pkg/database"
	"incident-platform/pkg/logging"
	"incident-platform/pkg/metrics"
)

var testMetrics = metrics.NewCollector("repository_test")

func newTestRepo(t *testing.T) IncidentRepository {
	t.Helper()

	logger := logging.NewStructuredLogger("test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)

	db, err := database.NewSQLiteDB(&database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger, testMetrics)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewIncidentRepository(db, logger, testMetrics)
}

func sampleIncidents() []*models.Incident {
	date := time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC)
	clock := "14:30:00"
	weekday := "Martes"
	lon, lat := -98.2063, 19.0414

	return []*models.Incident{
		{
			IncidentID:        "1",
			Date:              &date,
			Time:              &clock,
			DayOfWeek:         &weekday,
			IncidentType:      "CHOQUE",
			Longitude:         &lon,
			Latitude:          &lat,
			Borough:           "Centro",
			Neighborhood:      "La Paz",
			Street:            "Av. Reforma y Calle 5",
			CaseType:          "CHOQUE",
			AggravatingFactor: "NONE",
			CaseStatus:        "ABIERTO",
			Injured:           2,
			Fatalities:        0,
		},
		{
			IncidentID:        "2",
			IncidentType:      models.DefaultIncidentType,
			Borough:           models.DefaultPlace,
			Neighborhood:      models.DefaultPlace,
			Street:            models.DefaultPlace,
			CaseType:          models.DefaultIncidentType,
			AggravatingFactor: models.DefaultAggravatingFactor,
			CaseStatus:        models.DefaultCaseStatus,
		},
	}
}

func TestReplaceAllAndListAll(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, sampleIncidents()))

	incidents, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, incidents, 2)

	first := incidents[0]
	assert.Equal(t, "1", first.IncidentID)
	require.NotNil(t, first.Date)
	assert.True(t, first.Date.Equal(time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, first.Time)
	assert.Equal(t, "14:30:00", *first.Time)
	require.NotNil(t, first.Longitude)
	assert.Equal(t, -98.2063, *first.Longitude)
	assert.Equal(t, 2, first.Injured)

	second := incidents[1]
	assert.Nil(t, second.Date)
	assert.Nil(t, second.Time)
	assert.Nil(t, second.DayOfWeek)
	assert.Nil(t, second.Longitude)
	assert.Nil(t, second.Latitude)
	assert.Equal(t, models.DefaultIncidentType, second.IncidentType)
	assert.Equal(t, 0, second.VehiclesInvolved)
}

// Full-replace semantics: loading the same input twice yields the same
// snapshot as loading it once.
func TestReplaceAll_Idempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, sampleIncidents()))
	require.NoError(t, repo.ReplaceAll(ctx, sampleIncidents()))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	incidents, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, incidents, 2)
}

func TestReplaceAll_ReplacesPriorSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, sampleIncidents()))
	require.NoError(t, repo.ReplaceAll(ctx, sampleIncidents()[:1]))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListAll_MissingTableSignalsEmptyDataset(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.ListAll(context.Background())
	require.Error(t, err)

	var empty *EmptyDatasetError
	assert.True(t, errors.As(err, &empty), "want EmptyDatasetError, got %T", err)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestListAll_EmptyTableSignalsEmptyDataset(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, nil))

	_, err := repo.ListAll(ctx)
	var empty *EmptyDatasetError
	assert.True(t, errors.As(err, &empty), "want EmptyDatasetError, got %T", err)
}

func TestHealthCheck(t *testing.T) {
	repo := newTestRepo(t)
	assert.NoError(t, repo.HealthCheck(context.Background()))
}
