package services

import (
	"fmt"

	"github.com/zyedidia/generic/mapset"

	"starbase/server/logger"
	"starbase/server/models"
)

// GridStore owns the tile categories of one rectangular station field.
// It is not safe for concurrent use; callers serialize access.
type GridStore struct {
	width  int
	height int
	tiles  []models.TileCategory
}

// NewGridStore allocates a width*height grid with every cell empty
func NewGridStore(width, height int) *GridStore {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &GridStore{
		width:  width,
		height: height,
		tiles:  make([]models.TileCategory, width*height),
	}
}

// Width returns the number of columns
func (g *GridStore) Width() int { return g.width }

// Height returns the number of rows
func (g *GridStore) Height() int { return g.height }

// Len returns the number of cells
func (g *GridStore) Len() int { return len(g.tiles) }

// IndexOf converts a coordinate to its linear index
func (g *GridStore) IndexOf(x, y int) int {
	return x*g.height + y
}

// CoordsOf converts a linear index back to its coordinate
func (g *GridStore) CoordsOf(index int) models.Position {
	if g.height == 0 {
		return models.Position{}
	}
	return models.Position{X: index / g.height, Y: index % g.height}
}

// InBounds reports whether (x, y) lies on the grid
func (g *GridStore) InBounds(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

// ValidIndex reports whether index addresses a cell
func (g *GridStore) ValidIndex(index int) bool {
	return index >= 0 && index < len(g.tiles)
}

// OnBorder reports whether (x, y) is on the outer edge of the grid
func (g *GridStore) OnBorder(x, y int) bool {
	return x == 0 || y == 0 || x == g.width-1 || y == g.height-1
}

// Category returns the tile at (x, y), or TileNone when off the grid
func (g *GridStore) Category(x, y int) models.TileCategory {
	if !g.InBounds(x, y) {
		return models.TileNone
	}
	return g.tiles[g.IndexOf(x, y)]
}

// CategoryAt returns the tile at index, or TileNone when out of range
func (g *GridStore) CategoryAt(index int) models.TileCategory {
	if !g.ValidIndex(index) {
		return models.TileNone
	}
	return g.tiles[index]
}

// SetCategory writes a tile without validation.
func (g *GridStore) SetCategory(index int, category models.TileCategory) {
	g.tiles[index] = category
}

// NeighborMask sets one bit per neighbor of (x, y) whose category is target.
// Off-grid neighbors never match.
func (g *GridStore) NeighborMask(x, y int, target models.TileCategory) NeighborMask {
	var mask NeighborMask
	for d := DirUp; d <= DirUpperLeft; d++ {
		dx, dy := d.Offset()
		nx, ny := x+dx, y+dy
		if g.InBounds(nx, ny) && g.tiles[g.IndexOf(nx, ny)] == target {
			mask |= d.Bit()
		}
	}
	return mask
}

// Neighbor returns the index of the cell next to index in direction d
func (g *GridStore) Neighbor(index int, d Direction) (int, bool) {
	pos := g.CoordsOf(index)
	dx, dy := d.Offset()
	nx, ny := pos.X+dx, pos.Y+dy
	if !g.InBounds(nx, ny) {
		return 0, false
	}
	return g.IndexOf(nx, ny), true
}

// MarkTempRoom marks every acceptable index as TempRoom and returns the
// accepted batch in submission order. Out-of-range, duplicate and occupied
// indices are skipped.
func (g *GridStore) MarkTempRoom(indices []int) []int {
	seen := mapset.New[int]()
	accepted := make([]int, 0, len(indices))

	for _, index := range indices {
		switch {
		case !g.ValidIndex(index):
			logger.Debug("Skipping out of range tile", "index", index)
			continue
		case seen.Has(index):
			logger.Debug("Skipping duplicate tile", "index", index)
			continue
		case g.tiles[index] != models.TileNone:
			logger.Debug("Skipping occupied tile", "index", index, "category", g.tiles[index])
			continue
		}
		seen.Put(index)
		g.tiles[index] = models.TileTempRoom
		accepted = append(accepted, index)
	}

	return accepted
}

// Snapshot copies the grid into a GameMap
func (g *GridStore) Snapshot() *models.GameMap {
	tiles := make([]models.TileCategory, len(g.tiles))
	copy(tiles, g.tiles)
	return &models.GameMap{Width: g.width, Height: g.height, Tiles: tiles}
}

// Restore overwrites the grid with a snapshot of the same dimensions
func (g *GridStore) Restore(snapshot *models.GameMap) error {
	if snapshot.Width != g.width || snapshot.Height != g.height {
		return fmt.Errorf("snapshot is %dx%d, grid is %dx%d",
			snapshot.Width, snapshot.Height, g.width, g.height)
	}
	if len(snapshot.Tiles) != len(g.tiles) {
		return fmt.Errorf("snapshot has %d tiles, want %d", len(snapshot.Tiles), len(g.tiles))
	}
	copy(g.tiles, snapshot.Tiles)
	return nil
}
