package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
data_source: data/incidentes_viales.geojson
database:
  path: data/incidents.db
server:
  port: 9090
  read_timeout: 30s
logging:
  level: debug
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.DataSource != "data/incidentes_viales.geojson" {
		t.Errorf("DataSource = %q", cfg.DataSource)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout.Std() != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout.Std())
	}
	// Unset fields keep their defaults.
	if cfg.Server.WriteTimeout.Std() != 15*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want default 15s", cfg.Server.WriteTimeout.Std())
	}
	if cfg.Database.MaxOpenConns != 1 {
		t.Errorf("Database.MaxOpenConns = %d, want default 1", cfg.Database.MaxOpenConns)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfig_MissingDataSource(t *testing.T) {
	path := writeConfigFile(t, `
database:
  path: data/incidents.db
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing data_source")
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	path := writeConfigFile(t, `
data_source: data/incidentes_viales.geojson
server:
  read_timeout: not-a-duration
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	path := writeConfigFile(t, `
data_source: data/incidentes_viales.geojson
server:
  port: 70000
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestLoadConfig_InvalidLogLevel(t *testing.T) {
	path := writeConfigFile(t, `
data_source: data/incidentes_viales.geojson
logging:
  level: loud
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
