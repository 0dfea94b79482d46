package persistence

import (
	_ "github.com/lib/pq" // PostgreSQL driver
)

// NewPostgresStore opens a PostgreSQL-backed store and creates its tables
func NewPostgresStore(connectionString string) (*SQLStore, error) {
	return openSQLStore(PostgresDialect{}, connectionString)
}
