package services

import (
	"fmt"

	"starbase/server/models"
)

// Station is one side's view of a build field: the authority's, or a
// client's predicted copy. Both resolve the same batches the same way.
type Station struct {
	grid     *GridStore
	resolver *RoomResolver
	ledger   *PieceLedger
}

// StationOptions configures a Station
type StationOptions struct {
	Width        int
	Height       int
	Rotations    RotationRules
	PoolCapacity int
}

// NewStation creates an empty station
func NewStation(opts StationOptions) *Station {
	grid := NewGridStore(opts.Width, opts.Height)
	ledger := NewPieceLedger(opts.PoolCapacity)
	return &Station{
		grid:     grid,
		resolver: NewRoomResolver(grid, ledger, NewShapeTable(opts.Rotations)),
		ledger:   ledger,
	}
}

// Grid returns the station's grid
func (s *Station) Grid() *GridStore { return s.grid }

// Ledger returns the station's piece ledger
func (s *Station) Ledger() *PieceLedger { return s.ledger }

// BuildRoom marks the acceptable tiles as TempRoom and resolves them.
// It returns the accepted tiles and one Resolution per classified cell.
func (s *Station) BuildRoom(tiles []int) ([]int, []Resolution) {
	accepted := s.grid.MarkTempRoom(tiles)
	if len(accepted) == 0 {
		return accepted, nil
	}
	return accepted, s.resolver.Resolve(accepted)
}

// Assemble builds the piece at tile
func (s *Station) Assemble(tile int) error {
	return s.resolver.Assemble(tile)
}

// Apply replays one approved record
func (s *Station) Apply(record models.BuildRecord) error {
	switch record.Kind {
	case models.BuildRoom:
		s.BuildRoom(record.Tiles)
		return nil
	case models.BuildAssemble:
		for _, tile := range record.Tiles {
			if err := s.Assemble(tile); err != nil {
				return fmt.Errorf("replaying %s: %w", record.ID, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("replaying %s: unknown build kind %q", record.ID, record.Kind)
	}
}

// Snapshot copies the station's tile grid
func (s *Station) Snapshot() *models.GameMap {
	return s.grid.Snapshot()
}
