package services

import (
	"errors"
	"fmt"

	"starbase/server/models"
)

// ErrUnmappedMask is returned for a wall-neighbor mask with no table entry
var ErrUnmappedMask = errors.New("unmapped neighbor mask")

// RotationRules are the art-dependent rotation constants. Every rotation is
// relative to the wall piece's authored orientation.
type RotationRules struct {
	DefaultOrientation int `json:"default_orientation"`

	// Straight runs
	StraightAlongY int `json:"straight_along_y"` // up/down neighbors
	StraightAlongX int `json:"straight_along_x"` // left/right neighbors

	// Corner is keyed by the two perpendicular cardinal bits present
	Corner map[NeighborMask]int `json:"corner"`

	// ThreeWay is keyed by the three cardinal bits present
	ThreeWay map[NeighborMask]int `json:"three_way"`

	// Overrides replace the base rotation for a full mask value
	Overrides map[NeighborMask]int `json:"overrides,omitempty"`
}

// DefaultRotationRules returns the rotations the station's wall art is authored for
func DefaultRotationRules() RotationRules {
	return RotationRules{
		StraightAlongY: 0,
		StraightAlongX: 90,
		Corner: map[NeighborMask]int{
			MaskRight | MaskDown: 90,
			MaskUp | MaskRight:   180,
			MaskUp | MaskLeft:    270,
			MaskDown | MaskLeft:  0,
		},
		ThreeWay: map[NeighborMask]int{
			MaskUp | MaskRight | MaskDown:   90,  // open to the left
			MaskUp | MaskRight | MaskLeft:   180, // open downward
			MaskUp | MaskDown | MaskLeft:    270, // open to the right
			MaskRight | MaskDown | MaskLeft: 0,   // open upward
		},
		Overrides: map[NeighborMask]int{
			MaskUp | MaskRight | MaskDown | MaskLowerLeft | MaskUpperLeft: 180,
		},
	}
}

// ShapeEntry is the table's answer for one mask value
type ShapeEntry struct {
	Shape    models.WallShape
	Rotation int
}

// ShapeLookup classifies wall-neighbor masks
type ShapeLookup interface {
	// Lookup returns the shape for mask, or ErrUnmappedMask
	Lookup(mask NeighborMask) (ShapeEntry, error)

	// Recheck names the neighbor whose shape must be refreshed once a cell
	// with this mask is placed, or NoDirection
	Recheck(mask NeighborMask) Direction
}

// ShapeTable is a fixed 256-entry lookup built once from RotationRules.
// Mask 0 has no entry: a wall with no wall neighbors is a fault.
type ShapeTable struct {
	entries [256]ShapeEntry
	mapped  [256]bool
	recheck [256]Direction
}

// NewShapeTable populates every mask value from 1 to 255
func NewShapeTable(rules RotationRules) *ShapeTable {
	t := &ShapeTable{}
	for i := range t.recheck {
		t.recheck[i] = NoDirection
	}

	for value := 1; value < 256; value++ {
		mask := NeighborMask(value)
		shape, base := classifyCardinals(mask, rules)
		if override, ok := rules.Overrides[mask]; ok {
			base = override
		}
		t.entries[value] = ShapeEntry{
			Shape:    shape,
			Rotation: normalizeDegrees(rules.DefaultOrientation + base),
		}
		t.mapped[value] = true
		t.recheck[value] = recheckDirection(mask)
	}

	return t
}

// Lookup implements ShapeLookup
func (t *ShapeTable) Lookup(mask NeighborMask) (ShapeEntry, error) {
	if !t.mapped[mask] {
		return ShapeEntry{}, fmt.Errorf("%w: %d", ErrUnmappedMask, mask)
	}
	return t.entries[mask], nil
}

// Recheck implements ShapeLookup
func (t *ShapeTable) Recheck(mask NeighborMask) Direction {
	return t.recheck[mask]
}

// classifyCardinals decides the shape from the cardinal bits alone; diagonal
// bits only reach the result through RotationRules.Overrides.
func classifyCardinals(mask NeighborMask, rules RotationRules) (models.WallShape, int) {
	cardinals := mask.Cardinals()

	switch mask.CardinalCount() {
	case 0:
		return models.ShapeStraight, 0
	case 1:
		if cardinals&(MaskUp|MaskDown) != 0 {
			return models.ShapeStraight, rules.StraightAlongY
		}
		return models.ShapeStraight, rules.StraightAlongX
	case 2:
		switch cardinals {
		case MaskUp | MaskDown:
			return models.ShapeStraight, rules.StraightAlongY
		case MaskLeft | MaskRight:
			return models.ShapeStraight, rules.StraightAlongX
		}
		return models.ShapeCorner, rules.Corner[cardinals]
	case 3:
		return models.ShapeThreeWay, rules.ThreeWay[cardinals]
	default:
		return models.ShapeCross, 0
	}
}

// recheckDirection picks the neighbor a freshly placed wall may have made stale:
// the continuation of a run that ends here, or the stem of a T.
func recheckDirection(mask NeighborMask) Direction {
	cardinals := mask.Cardinals()

	switch mask.CardinalCount() {
	case 1:
		for d := DirUp; d <= DirLeft; d++ {
			if cardinals.Has(d.Bit()) {
				return d
			}
		}
	case 3:
		for d := DirUp; d <= DirLeft; d++ {
			if !cardinals.Has(d.Bit()) {
				return d.Opposite()
			}
		}
	}
	return NoDirection
}

func normalizeDegrees(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}
