package persistence

import (
	"errors"

	"starbase/server/models"
)

// ErrNotFound is wrapped by every lookup that finds nothing
var ErrNotFound = errors.New("not found")

// Storage defines the interface for data persistence
type Storage interface {
	SaveBuilder(builder *models.Builder) error
	LoadBuilder(builderID string) (*models.Builder, error)
	LoadBuilderByUsername(username string) (*models.Builder, error)
	SaveStation(name string, gameMap *models.GameMap) error
	LoadStation(name string) (*models.GameMap, error)
	AppendBuild(station string, record models.BuildRecord) error
	LoadBuilds(station string) ([]models.BuildRecord, error)
	Close() error
}
