// Package db stores the position history of tracked aircraft in PostgreSQL.
// History is optional; the radar works entirely from memory without it.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/unklstewy/skyradar/pkg/config"
)

//go:embed schema.sql
var schemaSQL embed.FS

// DB wraps a database connection with helper methods.
type DB struct {
	*sql.DB
	config config.DatabaseConfig
}

// Connect establishes a connection to the PostgreSQL database.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, config: cfg}, nil
}

// InitSchema creates the history tables if they don't exist.
// This should be called once at application startup.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// CleanupOldData deletes position history older than maxAge and aircraft
// not seen since then. It returns the number of deleted positions.
func (db *DB) CleanupOldData(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error) {
	cutoff := now.UTC().Add(-maxAge)

	res, err := db.ExecContext(ctx,
		`DELETE FROM aircraft_positions WHERE timestamp < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old positions: %w", err)
	}
	deleted, _ := res.RowsAffected()

	_, err = db.ExecContext(ctx,
		`DELETE FROM aircraft WHERE last_seen < $1`,
		cutoff,
	)
	if err != nil {
		return deleted, fmt.Errorf("failed to delete old aircraft: %w", err)
	}

	return deleted, nil
}

// Stats summarizes the stored history.
type Stats struct {
	Aircraft  int64 `json:"aircraft"`
	Positions int64 `json:"positions"`
}

// GetStats returns database statistics.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats

	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM aircraft`).Scan(&stats.Aircraft)
	if err != nil {
		return stats, fmt.Errorf("failed to count aircraft: %w", err)
	}

	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM aircraft_positions`).Scan(&stats.Positions)
	if err != nil {
		return stats, fmt.Errorf("failed to count positions: %w", err)
	}

	return stats, nil
}
