package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"incident-platform/internal/models"
	"incident-platform/pkg/logging"
	"incident-platform/pkg/metrics"
)

// Extractor reads a GeoJSON incident export into raw in-memory features.
type Extractor struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewExtractor creates a new extractor
func NewExtractor(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Extractor {
	return &Extractor{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ReadFile parses the GeoJSON FeatureCollection at path. A missing file or
// a source with no features is a fatal precondition error; individual
// features with missing or non-point geometry are kept with nil coordinates.
func (e *Extractor) ReadFile(ctx context.Context, path string) ([]models.RawFeature, error) {
	timer := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file %s: %w", path, err)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON from %s: %w", path, err)
	}

	if len(fc.Features) == 0 {
		return nil, &models.ValidationError{
			Field:   "features",
			Value:   path,
			Message: fmt.Sprintf("source file %s contains no features", path),
		}
	}

	features := make([]models.RawFeature, 0, len(fc.Features))
	pointless := 0
	for i, f := range fc.Features {
		raw := models.RawFeature{
			Index:      i,
			Properties: f.Properties,
		}
		if raw.Properties == nil {
			raw.Properties = map[string]interface{}{}
		}

		if point, ok := f.Geometry.(*geom.Point); ok && point != nil && !point.Empty() {
			lon := point.X()
			lat := point.Y()
			raw.Longitude = &lon
			raw.Latitude = &lat
		} else {
			pointless++
		}

		features = append(features, raw)
	}

	duration := time.Since(timer)
	e.metrics.ETLStageDuration.WithLabelValues("extract").Observe(duration.Seconds())

	e.logger.Info(ctx, "[EXTRACT_COMPLETE] GeoJSON source read", logging.Fields{
		"source_file":      path,
		"feature_count":    len(features),
		"without_geometry": pointless,
		"duration_ms":      duration.Milliseconds(),
	})

	return features, nil
}
