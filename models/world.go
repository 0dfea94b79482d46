package models

import "fmt"

// GameMap is a serializable snapshot of a station's tile grid
type GameMap struct {
	Width  int            `json:"width"`
	Height int            `json:"height"`
	Tiles  []TileCategory `json:"tiles"` // Indexed by x*Height + y
}

// TileCategory is the per-cell tile code
type TileCategory int

// Tile categories represented as integers for memory efficiency
const (
	TileNone TileCategory = iota // Empty space
	TileTempRoom
	TileGround
	TileWall
	TileDoor
	TileTeleporter
	TileResource
)

func (c TileCategory) String() string {
	switch c {
	case TileNone:
		return "none"
	case TileTempRoom:
		return "temp_room"
	case TileGround:
		return "ground"
	case TileWall:
		return "wall"
	case TileDoor:
		return "door"
	case TileTeleporter:
		return "teleporter"
	case TileResource:
		return "resource"
	default:
		return fmt.Sprintf("tile(%d)", int(c))
	}
}

// WallShape selects which wall piece a wall cell becomes
type WallShape int

const (
	ShapeNone WallShape = iota // Unresolved or faulted
	ShapeStraight
	ShapeCorner
	ShapeThreeWay
	ShapeCross
)

func (s WallShape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapeStraight:
		return "straight"
	case ShapeCorner:
		return "corner"
	case ShapeThreeWay:
		return "three_way"
	case ShapeCross:
		return "cross"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Position is a cell coordinate on the station grid
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}
