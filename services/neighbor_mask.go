package services

import "math/bits"

// NeighborMask records which of a cell's 8 neighbors match a category.
type NeighborMask uint8

// Bit assignment is fixed; changing it invalidates every shape table.
const (
	MaskUp         NeighborMask = 1 << iota // (x, y-1)
	MaskRight                               // (x+1, y)
	MaskDown                                // (x, y+1)
	MaskLeft                                // (x-1, y)
	MaskLowerLeft                           // (x-1, y-1)
	MaskLowerRight                          // (x+1, y-1)
	MaskUpperRight                          // (x+1, y+1)
	MaskUpperLeft                           // (x-1, y+1)

	MaskCardinals = MaskUp | MaskRight | MaskDown | MaskLeft
)

// Direction is a neighbor slot, numbered by its mask bit
type Direction int

const (
	DirUp Direction = iota
	DirRight
	DirDown
	DirLeft
	DirLowerLeft
	DirLowerRight
	DirUpperRight
	DirUpperLeft

	// NoDirection marks "no neighbor" in the recheck table
	NoDirection Direction = -1
)

var neighborOffsets = [8]struct{ dx, dy int }{
	DirUp:         {0, -1},
	DirRight:      {1, 0},
	DirDown:       {0, 1},
	DirLeft:       {-1, 0},
	DirLowerLeft:  {-1, -1},
	DirLowerRight: {1, -1},
	DirUpperRight: {1, 1},
	DirUpperLeft:  {-1, 1},
}

// Offset returns the grid delta for d
func (d Direction) Offset() (dx, dy int) {
	o := neighborOffsets[d]
	return o.dx, o.dy
}

// Bit returns the mask bit for d
func (d Direction) Bit() NeighborMask {
	return 1 << NeighborMask(d)
}

// Opposite returns the cardinal direction facing d
func (d Direction) Opposite() Direction {
	switch d {
	case DirUp:
		return DirDown
	case DirDown:
		return DirUp
	case DirLeft:
		return DirRight
	case DirRight:
		return DirLeft
	}
	return NoDirection
}

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirRight:
		return "right"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirLowerLeft:
		return "lower_left"
	case DirLowerRight:
		return "lower_right"
	case DirUpperRight:
		return "upper_right"
	case DirUpperLeft:
		return "upper_left"
	}
	return "none"
}

// Has reports whether every bit of bit is set in m
func (m NeighborMask) Has(bit NeighborMask) bool {
	return m&bit == bit
}

// Cardinals keeps only the up/right/down/left bits
func (m NeighborMask) Cardinals() NeighborMask {
	return m & MaskCardinals
}

// CardinalCount returns how many cardinal neighbors are set
func (m NeighborMask) CardinalCount() int {
	return bits.OnesCount8(uint8(m.Cardinals()))
}
