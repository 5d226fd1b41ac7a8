package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"incident-platform/pkg/logging"
	"incident-platform/pkg/metrics"
)

// Config holds database connection configuration
type Config struct {
	Path         string
	MaxOpenConns int
	MaxIdleConns int
}

// SQLiteDB wraps sqlx.DB with monitoring and metrics
type SQLiteDB struct {
	db      *sqlx.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	config  *Config
}

// NewSQLiteDB opens (creating if needed) the SQLite database file at cfg.Path.
func NewSQLiteDB(cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*SQLiteDB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a small pool avoids SQLITE_BUSY churn.
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	logger.Info(context.Background(), "[DB_INIT] SQLite connection established", logging.Fields{
		"path":           cfg.Path,
		"max_open_conns": maxOpen,
		"max_idle_conns": cfg.MaxIdleConns,
	})

	sqliteDB := &SQLiteDB{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
		config:  cfg,
	}

	go sqliteDB.monitorConnectionPool()

	return sqliteDB, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	s.logger.Info(context.Background(), "[DB_CLOSE] Closing database connection", logging.Fields{
		"path": s.config.Path,
	})
	return s.db.Close()
}

// DB returns the underlying sqlx.DB instance
func (s *SQLiteDB) DB() *sqlx.DB {
	return s.db
}

// Path returns the database file path. It identifies the store handle for
// session-scoped caching.
func (s *SQLiteDB) Path() string {
	return s.config.Path
}

// ExecContext executes a command with context and metrics
func (s *SQLiteDB) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		s.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())

		s.logger.Debug(ctx, "[DB_EXEC] Command executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.metrics.RecordDBError("exec_error")
		s.logger.Error(ctx, "[DB_EXEC_ERROR] Command failed", logging.Fields{
			"query_type": queryType,
			"query":      query,
		}, err)
		return nil, err
	}

	return result, nil
}

// GetContext executes a single-row query with context and metrics
func (s *SQLiteDB) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		s.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
	}()

	err := s.db.GetContext(ctx, dest, query, args...)
	if err != nil && err != sql.ErrNoRows {
		s.metrics.RecordDBError("query_error")
		s.logger.Error(ctx, "[DB_QUERY_ERROR] Query failed", logging.Fields{
			"query_type": queryType,
			"query":      query,
		}, err)
	}

	return err
}

// SelectContext executes a multi-row query with context and metrics
func (s *SQLiteDB) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		s.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())

		s.logger.Debug(ctx, "[DB_QUERY] Query executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	err := s.db.SelectContext(ctx, dest, query, args...)
	if err != nil {
		s.metrics.RecordDBError("query_error")
		s.logger.Error(ctx, "[DB_QUERY_ERROR] Query failed", logging.Fields{
			"query_type": queryType,
			"query":      query,
		}, err)
		return err
	}

	return nil
}

// BeginTx begins a new transaction
func (s *SQLiteDB) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		s.metrics.RecordDBError("transaction_begin_error")
		s.logger.Error(ctx, "[DB_TX_ERROR] Failed to begin transaction", logging.Fields{}, err)
		return nil, err
	}

	return tx, nil
}

// monitorConnectionPool periodically updates connection pool metrics
func (s *SQLiteDB) monitorConnectionPool() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := s.db.Stats()

		s.metrics.UpdateDBConnectionPool(
			stats.InUse,
			stats.Idle,
			stats.OpenConnections,
		)
	}
}

// HealthCheck performs a database health check
func (s *SQLiteDB) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
