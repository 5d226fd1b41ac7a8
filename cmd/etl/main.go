package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"incident-platform/internal/config"
	"incident-platform/internal/extract"
	"incident-platform/internal/repository"
	"incident-platform/internal/services"
	"incident-platform/internal/transform"
	"incident-platform/pkg/database"
	"incident-platform/pkg/logging"
	"incident-platform/pkg/metrics"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to the settings file")
	sourceFile := flag.String("source", "", "Override the configured GeoJSON source file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("incident-etl", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	source := cfg.DataSource
	if *sourceFile != "" {
		source = *sourceFile
	}

	ctx := context.Background()
	logger.Info(ctx, "[ETL_INIT] Starting incident ETL", logging.Fields{
		"version":     "1.0.0",
		"source_file": source,
		"database":    cfg.Database.Path,
	})

	metricsCollector := metrics.NewCollector("incident_etl")

	db, err := database.NewSQLiteDB(&database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	}, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[ETL_INIT_ERROR] Failed to open database", logging.Fields{}, err)
	}
	defer db.Close()

	incidentRepo := repository.NewIncidentRepository(db, logger, metricsCollector)
	extractor := extract.NewExtractor(logger, metricsCollector)
	transformer := transform.NewTransformer(logger, metricsCollector)
	etlService := services.NewETLService(extractor, transformer, incidentRepo, logger, metricsCollector)

	result, err := etlService.Run(ctx, source)
	if err != nil {
		logger.Fatal(ctx, "[ETL_ERROR] Pipeline run failed", logging.Fields{
			"source_file": source,
		}, err)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("ETL RUN COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Source Features:    %d\n", result.TotalFeatures)
	fmt.Printf("Loaded Records:     %d\n", result.LoadedRecords)
	fmt.Printf("With Coordinates:   %d\n", result.WithCoordinates)
	fmt.Printf("With Valid Date:    %d\n", result.WithValidDate)
	fmt.Printf("Duration:           %v\n", result.Duration)
}
