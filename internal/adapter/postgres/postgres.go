// Package postgres implements the sensor and measurement repositories on
// PostgreSQL with PostGIS through database/sql. Both the pgx ("pgx") and
// lib/pq ("postgres") drivers are registered.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Store implements the sensor and measurement repositories. Every call is its
// own unit of work; no transaction spans more than one call.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects with the given driver ("pgx" or "postgres") and verifies the
// connection, retrying with backoff while the database starts up.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := pingWithRetry(ctx, db, pingAttempts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

const (
	pingAttempts   = 5
	pingTimeout    = 5 * time.Second
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

func pingWithRetry(ctx context.Context, db *sql.DB, attempts int) error {
	backoff := initialBackoff
	var err error
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if i == attempts-1 || !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("ping database: %w", err)
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}

func schemaStatements() []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
