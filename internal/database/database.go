package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/multiplier-synth/multiplier-api/internal/config"
)

// Dialect identifies the SQL engine behind a DB. Queries are written in
// the common subset of both engines ($n placeholders in order of first
// appearance, RETURNING, ON CONFLICT), so only the schema differs.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB wraps a database/sql handle with the dialect it speaks. Stores
// receive it explicitly; there is no package-level connection.
type DB struct {
	SQL     *sql.DB
	Dialect Dialect

	pool *pgxpool.Pool // nil for SQLite
}

// Open connects to the backend selected by cfg.Driver and verifies the
// connection. The schema is not touched; call Migrate for that.
func Open(ctx context.Context, cfg *config.Config) (*DB, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return OpenPostgres(ctx, cfg.ConnString())
	}
}

// OpenPostgres connects a pgx pool and exposes it through database/sql.
func OpenPostgres(ctx context.Context, connString string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	return &DB{SQL: stdlib.OpenDBFromPool(pool), Dialect: Postgres, pool: pool}, nil
}

// OpenSQLite opens (or creates) a SQLite database file. A single
// connection is used so writes are serialized by the pool.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: ping sqlite %s: %w", path, err)
	}
	return &DB{SQL: db, Dialect: SQLite}, nil
}

// Migrate bootstraps the schema. Every statement is idempotent, so it is
// safe to run on each start.
func (db *DB) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if db.Dialect == SQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := db.SQL.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("database: bootstrap schema: %w", err)
		}
	}
	return nil
}

// Close shuts down the connection pool. Call this during graceful shutdown.
func (db *DB) Close() {
	db.SQL.Close()
	if db.pool != nil {
		db.pool.Close()
	}
}

// IsUniqueViolation reports whether err is a unique constraint violation
// (PostgreSQL 23505 or SQLITE_CONSTRAINT_UNIQUE).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode() == sqlite3.CONSTRAINT_UNIQUE ||
			liteErr.ExtendedCode() == sqlite3.CONSTRAINT_PRIMARYKEY
	}
	return false
}
