package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"starbase/server/logger"
	"starbase/server/models"
	"starbase/server/persistence"
)

var (
	// ErrEmptyBatch is returned when no submitted tile could be accepted
	ErrEmptyBatch = errors.New("no buildable tiles in batch")

	// ErrNotAdministrator is returned when a non-administrator tries to build
	ErrNotAdministrator = errors.New("builder is not in administrator mode")
)

// WorldService is the authoritative build session for one station
type WorldService struct {
	name       string
	options    StationOptions
	station    *Station
	history    []models.BuildRecord
	builders   *BuilderService
	db         persistence.Storage
	onCommit   func(models.BuildRecord)
	worldMutex sync.Mutex
}

// NewWorldService creates the authority for a station, replaying its stored log
func NewWorldService(name string, opts StationOptions, builders *BuilderService, db persistence.Storage) (*WorldService, error) {
	ws := &WorldService{
		name:     name,
		options:  opts,
		station:  NewStation(opts),
		builders: builders,
		db:       db,
	}

	if err := ws.initializeWorld(); err != nil {
		return nil, err
	}

	return ws, nil
}

// initializeWorld rebuilds the station from its replay log
func (ws *WorldService) initializeWorld() error {
	records, err := ws.db.LoadBuilds(ws.name)
	if err != nil {
		return fmt.Errorf("failed to load build log: %w", err)
	}

	for _, record := range records {
		if err := ws.station.Apply(record); err != nil {
			return err
		}
	}
	ws.history = records

	if err := ws.reconcileSnapshot(); err != nil {
		return err
	}

	logger.Info("Station loaded", "station", ws.name, "records", len(records),
		"width", ws.options.Width, "height", ws.options.Height)
	return nil
}

// reconcileSnapshot compares the stored snapshot with the replayed grid. The
// log wins: a missing or stale snapshot is rewritten.
func (ws *WorldService) reconcileSnapshot() error {
	replayed := ws.station.Snapshot()

	stored, err := ws.db.LoadStation(ws.name)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		logger.Debug("No station snapshot stored", "station", ws.name)
	case err != nil:
		return fmt.Errorf("failed to load station snapshot: %w", err)
	case snapshotsEqual(stored, replayed):
		return nil
	default:
		logger.Warning("Stored station snapshot disagrees with build log, rewriting",
			"station", ws.name, "stored_width", stored.Width, "stored_height", stored.Height)
	}

	if err := ws.db.SaveStation(ws.name, replayed); err != nil {
		return fmt.Errorf("failed to save station snapshot: %w", err)
	}
	return nil
}

func snapshotsEqual(a, b *models.GameMap) bool {
	if a.Width != b.Width || a.Height != b.Height || len(a.Tiles) != len(b.Tiles) {
		return false
	}
	for i := range a.Tiles {
		if a.Tiles[i] != b.Tiles[i] {
			return false
		}
	}
	return true
}

// SetBroadcaster registers fn to receive every committed record. fn runs
// under the world lock, so records reach it in log order; it must not block.
func (ws *WorldService) SetBroadcaster(fn func(models.BuildRecord)) {
	ws.worldMutex.Lock()
	defer ws.worldMutex.Unlock()
	ws.onCommit = fn
}

// Join runs fn with the replay log under the world lock. Registering a
// client for broadcasts inside fn means it sees every record exactly once.
func (ws *WorldService) Join(fn func(history []models.BuildRecord)) {
	ws.worldMutex.Lock()
	defer ws.worldMutex.Unlock()

	history := make([]models.BuildRecord, len(ws.history))
	copy(history, ws.history)
	fn(history)
}

// Name returns the station name
func (ws *WorldService) Name() string { return ws.name }

// Options returns the options both sides build their station with
func (ws *WorldService) Options() StationOptions { return ws.options }

// SubmitBuildRoom validates and resolves a room batch from a builder. The
// returned record holds only the accepted tiles; it is what clients replay.
func (ws *WorldService) SubmitBuildRoom(builderID string, tiles []int) (*models.BuildRecord, []Resolution, error) {
	ws.worldMutex.Lock()
	defer ws.worldMutex.Unlock()

	if !ws.builders.IsAdministrator(builderID) {
		return nil, nil, ErrNotAdministrator
	}

	accepted, results := ws.station.BuildRoom(tiles)
	if len(accepted) == 0 {
		return nil, nil, ErrEmptyBatch
	}
	if skipped := len(tiles) - len(accepted); skipped > 0 {
		logger.Info("Skipped tiles in room batch", "builder", builderID, "skipped", skipped)
	}
	for _, res := range results {
		if res.Err != nil {
			logger.Warning("Room batch contained a faulted cell", "builder", builderID, "error", res.Err)
		}
	}

	record := models.BuildRecord{
		ID:        uuid.NewString(),
		Kind:      models.BuildRoom,
		Tiles:     accepted,
		BuilderID: builderID,
		CreatedAt: time.Now(),
	}
	if err := ws.commit(record); err != nil {
		return nil, nil, err
	}

	return &record, results, nil
}

// AssembleTile turns the hologram at tile into a built piece
func (ws *WorldService) AssembleTile(builderID string, tile int) (*models.BuildRecord, error) {
	ws.worldMutex.Lock()
	defer ws.worldMutex.Unlock()

	if !ws.builders.IsAdministrator(builderID) {
		return nil, ErrNotAdministrator
	}

	if err := ws.station.Assemble(tile); err != nil {
		return nil, err
	}

	record := models.BuildRecord{
		ID:        uuid.NewString(),
		Kind:      models.BuildAssemble,
		Tiles:     []int{tile},
		BuilderID: builderID,
		CreatedAt: time.Now(),
	}
	if err := ws.commit(record); err != nil {
		return nil, err
	}

	return &record, nil
}

// SwitchMode changes a builder's mode under the world lock, so a build is
// authorized against one mode for its whole run
func (ws *WorldService) SwitchMode(builderID string, mode models.BuilderMode) error {
	ws.worldMutex.Lock()
	defer ws.worldMutex.Unlock()
	return ws.builders.SwitchMode(builderID, mode)
}

// commit persists a record and a fresh snapshot; the caller holds worldMutex.
// A record that cannot be logged is rolled back out of the station.
func (ws *WorldService) commit(record models.BuildRecord) error {
	if err := ws.db.AppendBuild(ws.name, record); err != nil {
		if rerr := ws.rebuildStation(); rerr != nil {
			logger.Error("Failed to roll back station", "station", ws.name, "error", rerr)
		}
		return fmt.Errorf("failed to record build: %w", err)
	}
	ws.history = append(ws.history, record)
	if ws.onCommit != nil {
		ws.onCommit(record)
	}

	if err := ws.db.SaveStation(ws.name, ws.station.Snapshot()); err != nil {
		// The log is authoritative; a stale snapshot is only logged
		logger.Error("Failed to save station snapshot", "station", ws.name, "error", err)
	}
	return nil
}

// rebuildStation replaces the station with a fresh replay of the log; the
// caller holds worldMutex
func (ws *WorldService) rebuildStation() error {
	station := NewStation(ws.options)
	for _, record := range ws.history {
		if err := station.Apply(record); err != nil {
			return err
		}
	}
	ws.station = station
	return nil
}

// History returns a copy of the replay log
func (ws *WorldService) History() []models.BuildRecord {
	ws.worldMutex.Lock()
	defer ws.worldMutex.Unlock()

	history := make([]models.BuildRecord, len(ws.history))
	copy(history, ws.history)
	return history
}

// Snapshot copies the authoritative grid
func (ws *WorldService) Snapshot() *models.GameMap {
	ws.worldMutex.Lock()
	defer ws.worldMutex.Unlock()
	return ws.station.Snapshot()
}

// Pieces lists the authoritative placed pieces
func (ws *WorldService) Pieces() []models.Piece {
	ws.worldMutex.Lock()
	defer ws.worldMutex.Unlock()
	return ws.station.Ledger().Pieces()
}

// Maintain trims released pieces from the station's pool
func (ws *WorldService) Maintain(max int) int {
	ws.worldMutex.Lock()
	defer ws.worldMutex.Unlock()
	return ws.station.Ledger().Maintain(max)
}
