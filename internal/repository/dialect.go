package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures the few places where SQLite and PostgreSQL differ.
type Dialect interface {
	Name() string
	DriverName() string
	CreateTableSQL() string
	// Rebind rewrites '?' placeholders into the dialect's own form.
	Rebind(query string) string
	IsUniqueViolation(err error) bool
	// Prepare applies per-database settings right after the pool is opened.
	Prepare(ctx context.Context, db *sql.DB) error
}

const accountsTable = "bank_accounts"

func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "":
		return sqliteDialect{}, nil
	case "postgres", "postgresql":
		return postgresDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }

func (sqliteDialect) CreateTableSQL() string {
	return `
		CREATE TABLE IF NOT EXISTS ` + accountsTable + ` (
			accountNumber TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address_line_1 TEXT,
			address_line_2 TEXT,
			address_line_3 TEXT,
			town TEXT NOT NULL,
			balance REAL NOT NULL,
			accountType INTEGER NOT NULL,
			overdraftAmount REAL,
			interestRate REAL
		) WITHOUT ROWID
	`
}

func (sqliteDialect) Rebind(query string) string { return query }

const (
	pragmaJournalModeWAL = `PRAGMA journal_mode=WAL`
	pragmaBusyTimeout    = `PRAGMA busy_timeout=5000`
)

// Prepare pins the pool to one connection. busy_timeout is per connection,
// and SQLite serialises writers anyway.
func (sqliteDialect) Prepare(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{pragmaJournalModeWAL, pragmaBusyTimeout} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("configure sqlite %q: %w", stmt, err)
		}
	}
	return nil
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !stderrors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

type postgresDialect struct{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) CreateTableSQL() string {
	return `
		CREATE TABLE IF NOT EXISTS ` + accountsTable + ` (
			accountNumber TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address_line_1 TEXT,
			address_line_2 TEXT,
			address_line_3 TEXT,
			town TEXT NOT NULL,
			balance DOUBLE PRECISION NOT NULL,
			accountType INTEGER NOT NULL,
			overdraftAmount DOUBLE PRECISION,
			interestRate DOUBLE PRECISION
		)
	`
}

const (
	postgresMaxConns        = 25
	postgresConnMaxLifetime = 5 * time.Minute
)

// Prepare sizes the connection pool. Nothing is sent to the server.
func (postgresDialect) Prepare(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(postgresMaxConns)
	db.SetMaxIdleConns(postgresMaxConns)
	db.SetConnMaxLifetime(postgresConnMaxLifetime)
	return nil
}

func (postgresDialect) Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code == "23505" // unique_violation
	}
	return false
}
