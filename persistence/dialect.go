package persistence

import (
	"strconv"
	"strings"
)

// Dialect hides the SQL differences between SQLite and PostgreSQL
type Dialect interface {
	// DriverName returns the database/sql driver name
	DriverName() string

	// Rebind rewrites ? placeholders into the dialect's form
	Rebind(query string) string

	// Schema returns the statements that create the tables
	Schema() []string
}

// SQLiteDialect targets modernc.org/sqlite
type SQLiteDialect struct{}

// DriverName returns "sqlite"
func (SQLiteDialect) DriverName() string { return "sqlite" }

// Rebind leaves ? placeholders untouched
func (SQLiteDialect) Rebind(query string) string { return query }

// MaxOpenConns serializes access through a single connection
func (SQLiteDialect) MaxOpenConns() int { return 1 }

// Schema returns the SQLite table definitions
func (SQLiteDialect) Schema() []string {
	return []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS builders (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			mode TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stations (
			name TEXT PRIMARY KEY,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			tiles TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS builds (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			station TEXT NOT NULL,
			id TEXT UNIQUE NOT NULL,
			kind TEXT NOT NULL,
			tiles TEXT NOT NULL,
			builder_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_builds_station ON builds(station, seq)`,
	}
}

// PostgresDialect targets github.com/lib/pq
type PostgresDialect struct{}

// DriverName returns "postgres"
func (PostgresDialect) DriverName() string { return "postgres" }

// Rebind numbers placeholders as $1, $2, ...
func (PostgresDialect) Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Schema returns the PostgreSQL table definitions
func (PostgresDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS builders (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			mode TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stations (
			name TEXT PRIMARY KEY,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			tiles JSONB NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS builds (
			seq SERIAL PRIMARY KEY,
			station TEXT NOT NULL,
			id TEXT UNIQUE NOT NULL,
			kind TEXT NOT NULL,
			tiles JSONB NOT NULL,
			builder_id TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_builds_station ON builds(station, seq)`,
	}
}
