package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"starbase/server/logger"
	"starbase/server/models"
)

// SQLStore handles persistence through database/sql for any Dialect
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func openSQLStore(dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Per-connection pragmas only hold if every query shares one connection
	if limited, ok := dialect.(interface{ MaxOpenConns() int }); ok {
		db.SetMaxOpenConns(limited.MaxOpenConns())
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{db: db, dialect: dialect}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema initializes the database schema
func (s *SQLStore) initSchema() error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) exec(query string, args ...any) (sql.Result, error) {
	return s.db.Exec(s.dialect.Rebind(query), args...)
}

// SaveBuilder saves a builder to the database
func (s *SQLStore) SaveBuilder(builder *models.Builder) error {
	query := `
	INSERT INTO builders (id, username, password_hash, mode, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (id)
	DO UPDATE SET password_hash = excluded.password_hash, mode = excluded.mode,
		updated_at = excluded.updated_at
	`

	_, err := s.exec(query,
		builder.ID, builder.Username, builder.PasswordHash, string(builder.Mode),
		builder.CreatedAt.UTC(), builder.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save builder: %w", err)
	}

	return nil
}

// LoadBuilder loads a builder by ID
func (s *SQLStore) LoadBuilder(builderID string) (*models.Builder, error) {
	return s.loadBuilder("id", builderID)
}

// LoadBuilderByUsername loads a builder by username
func (s *SQLStore) LoadBuilderByUsername(username string) (*models.Builder, error) {
	return s.loadBuilder("username", username)
}

func (s *SQLStore) loadBuilder(column, value string) (*models.Builder, error) {
	query := s.dialect.Rebind(`SELECT id, username, password_hash, mode, created_at, updated_at FROM builders WHERE ` + column + ` = ?`)

	var builder models.Builder
	var mode string
	err := s.db.QueryRow(query, value).Scan(
		&builder.ID, &builder.Username, &builder.PasswordHash, &mode,
		&builder.CreatedAt, &builder.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("builder with %s %s: %w", column, value, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load builder: %w", err)
	}
	builder.Mode = models.BuilderMode(mode)

	return &builder, nil
}

// SaveStation saves a station snapshot
func (s *SQLStore) SaveStation(name string, gameMap *models.GameMap) error {
	tilesJSON, err := json.Marshal(gameMap.Tiles)
	if err != nil {
		return fmt.Errorf("failed to marshal station tiles: %w", err)
	}

	query := `
	INSERT INTO stations (name, width, height, tiles, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (name)
	DO UPDATE SET width = excluded.width, height = excluded.height,
		tiles = excluded.tiles, updated_at = excluded.updated_at
	`

	_, err = s.exec(query, name, gameMap.Width, gameMap.Height, string(tilesJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save station: %w", err)
	}

	return nil
}

// LoadStation loads a station snapshot by name
func (s *SQLStore) LoadStation(name string) (*models.GameMap, error) {
	query := s.dialect.Rebind(`SELECT width, height, tiles FROM stations WHERE name = ?`)

	var gameMap models.GameMap
	var tilesJSON string
	err := s.db.QueryRow(query, name).Scan(&gameMap.Width, &gameMap.Height, &tilesJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("station with name %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load station: %w", err)
	}

	if err := json.Unmarshal([]byte(tilesJSON), &gameMap.Tiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal station tiles: %w", err)
	}

	return &gameMap, nil
}

// AppendBuild adds a record to the end of a station's replay log
func (s *SQLStore) AppendBuild(station string, record models.BuildRecord) error {
	tilesJSON, err := json.Marshal(record.Tiles)
	if err != nil {
		return fmt.Errorf("failed to marshal build tiles: %w", err)
	}

	query := `
	INSERT INTO builds (station, id, kind, tiles, builder_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.exec(query, station, record.ID, string(record.Kind), string(tilesJSON),
		record.BuilderID, record.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append build: %w", err)
	}

	return nil
}

// LoadBuilds returns a station's replay log in append order
func (s *SQLStore) LoadBuilds(station string) ([]models.BuildRecord, error) {
	query := s.dialect.Rebind(`SELECT id, kind, tiles, builder_id, created_at FROM builds WHERE station = ? ORDER BY seq`)

	rows, err := s.db.Query(query, station)
	if err != nil {
		return nil, fmt.Errorf("failed to load builds: %w", err)
	}
	defer rows.Close()

	var records []models.BuildRecord
	for rows.Next() {
		var record models.BuildRecord
		var kind, tilesJSON string
		if err := rows.Scan(&record.ID, &kind, &tilesJSON, &record.BuilderID, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		record.Kind = models.BuildKind(kind)
		if err := json.Unmarshal([]byte(tilesJSON), &record.Tiles); err != nil {
			return nil, fmt.Errorf("failed to unmarshal build tiles: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	logger.Info("Closing database connection", "driver", s.dialect.DriverName())
	return s.db.Close()
}
