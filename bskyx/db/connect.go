// Package db opens the embedded libsql database used for benchmark history.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds configuration for embedded libsql connections.
type Config struct {
	DSN          string // "file:<path>" or a bare file path
	MaxOpenConns int
	BusyTimeout  time.Duration
}

// Connect opens the database at dsn and migrates it to the latest schema.
func Connect(ctx context.Context, dsn string, logger zerolog.Logger) (*sql.DB, error) {
	return ConnectWithConfig(ctx, &Config{DSN: dsn}, logger)
}

// ConnectWithConfig opens the database described by cfg and migrates it to the latest schema.
func ConnectWithConfig(ctx context.Context, cfg *Config, logger zerolog.Logger) (*sql.DB, error) {
	dsn, path, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Ensure database directory exists for embedded mode
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
	}

	logger.Debug().Str("dsn", dsn).Msg("Connecting to embedded libsql")

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1 // single writer
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := configurePragmas(ctx, db, cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	// Set goose dialect to SQLite (required for proper migration execution)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

func normalizeDSN(dsn string) (string, string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", fmt.Errorf("database DSN cannot be empty")
	}
	if strings.Contains(dsn, "://") {
		return "", "", fmt.Errorf("only embedded file databases are supported, got %q", dsn)
	}
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return "", "", fmt.Errorf("database DSN %q has no path", dsn)
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn, path, nil
}

func configurePragmas(ctx context.Context, db *sql.DB, busyTimeout time.Duration) error {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		// Some PRAGMA statements return rows, which libsql rejects on Exec
		rows, err := db.QueryContext(ctx, pragma)
		if err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
		rows.Close()
	}
	return nil
}
