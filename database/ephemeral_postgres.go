package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/stapelberg/postgrestest"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// EphemeralPostgresDB implements Repository using ephemeral PostgreSQL
type EphemeralPostgresDB struct {
	*BunDB
	server *postgrestest.Server
}

// SetupEphemeralPostgresDatabase creates an ephemeral PostgreSQL instance
func SetupEphemeralPostgresDatabase() (*EphemeralPostgresDB, error) {
	Logger.Info("Starting ephemeral PostgreSQL server...")

	ctx := context.Background()

	// Uses a temporary directory by default for simplicity
	pgt, err := postgrestest.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start ephemeral postgres: %w", err)
	}

	dsn, err := pgt.CreateDatabase(ctx)
	if err != nil {
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to create dtools database: %w", err)
	}
	Logger.Info("Created ephemeral database", "dsn", dsn)

	// postgrestest hands out libpq style DSNs, so connect through lib/pq
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to open dtools database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	Logger.Info("Connected to ephemeral PostgreSQL database successfully")

	bunDB, err := newBunDB(sqlDB, pgdialect.New(), "ephemeral")
	if err != nil {
		pgt.Cleanup()
		return nil, err
	}

	return &EphemeralPostgresDB{BunDB: bunDB, server: pgt}, nil
}

// Close closes the database connection and cleans up the ephemeral server
func (e *EphemeralPostgresDB) Close() error {
	if e.BunDB != nil {
		if err := e.BunDB.Close(); err != nil {
			Logger.Warn("Failed to close database connection", "error", err)
		}
	}

	if e.server != nil {
		Logger.Info("Cleaning up ephemeral PostgreSQL server...")
		e.server.Cleanup()
		e.server = nil
		Logger.Info("Ephemeral PostgreSQL server cleaned up")
	}

	return nil
}
