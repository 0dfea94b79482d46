package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starbase/server/models"
)

func TestShapeTableCoversEveryNonZeroMask(t *testing.T) {
	table := NewShapeTable(DefaultRotationRules())

	for value := 1; value < 256; value++ {
		entry, err := table.Lookup(NeighborMask(value))
		require.NoError(t, err, "mask %d", value)
		assert.NotEqual(t, models.ShapeNone, entry.Shape, "mask %d", value)
		assert.True(t, entry.Rotation >= 0 && entry.Rotation < 360, "mask %d rotation %d", value, entry.Rotation)
	}

	_, err := table.Lookup(0)
	assert.ErrorIs(t, err, ErrUnmappedMask)
}

func TestShapeTableShapes(t *testing.T) {
	table := NewShapeTable(DefaultRotationRules())

	tests := []struct {
		mask NeighborMask
		want models.WallShape
	}{
		{15, models.ShapeCross},
		{255, models.ShapeCross},
		{1, models.ShapeStraight},
		{2, models.ShapeStraight},
		{4, models.ShapeStraight},
		{8, models.ShapeStraight},
		{5, models.ShapeStraight},
		{10, models.ShapeStraight},
		{MaskLeft | MaskRight | MaskUpperLeft | MaskUpperRight, models.ShapeStraight},
		{MaskLowerLeft, models.ShapeStraight},
		{MaskLowerLeft | MaskUpperRight, models.ShapeStraight},
		{3, models.ShapeCorner},
		{6, models.ShapeCorner},
		{9, models.ShapeCorner},
		{12, models.ShapeCorner},
		{MaskRight | MaskDown | MaskUpperRight, models.ShapeCorner},
		{7, models.ShapeThreeWay},
		{11, models.ShapeThreeWay},
		{13, models.ShapeThreeWay},
		{14, models.ShapeThreeWay},
		{13 | MaskUpperRight, models.ShapeThreeWay},
	}

	for _, tc := range tests {
		entry, err := table.Lookup(tc.mask)
		require.NoError(t, err)
		assert.Equal(t, tc.want, entry.Shape, "mask %d", tc.mask)
	}
}

func TestShapeTableRotations(t *testing.T) {
	table := NewShapeTable(DefaultRotationRules())

	tests := []struct {
		name string
		mask NeighborMask
		want int
	}{
		{"vertical run", MaskUp | MaskDown, 0},
		{"vertical run end", MaskDown, 0},
		{"horizontal run", MaskLeft | MaskRight, 90},
		{"horizontal run end", MaskLeft, 90},
		{"corner right+down", MaskRight | MaskDown, 90},
		{"corner up+right", MaskUp | MaskRight, 180},
		{"corner up+left", MaskUp | MaskLeft, 270},
		{"corner down+left", MaskDown | MaskLeft, 0},
		{"tee open left", 7, 90},
		{"tee open left with upper-left", 135, 90},
		{"tee open down", 11, 180},
		{"tee open down with diagonals", 139, 180},
		{"tee open right", 13, 270},
		{"tee open right with diagonals", 205, 270},
		{"tee open up", 14, 0},
		{"tee override", 151, 180},
		{"cross", 15, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entry, err := table.Lookup(tc.mask)
			require.NoError(t, err)
			assert.Equal(t, tc.want, entry.Rotation)
		})
	}
}

func TestShapeTableAddsDefaultOrientation(t *testing.T) {
	rules := DefaultRotationRules()
	rules.DefaultOrientation = 90
	table := NewShapeTable(rules)

	entry, err := table.Lookup(MaskUp | MaskLeft)
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Rotation, "270 + 90 wraps to 0")

	entry, err = table.Lookup(MaskUp | MaskDown)
	require.NoError(t, err)
	assert.Equal(t, 90, entry.Rotation)
}

func TestShapeTableRecheck(t *testing.T) {
	table := NewShapeTable(DefaultRotationRules())

	assert.Equal(t, DirUp, table.Recheck(MaskUp))
	assert.Equal(t, DirLeft, table.Recheck(MaskLeft|MaskUpperRight))
	assert.Equal(t, DirRight, table.Recheck(7), "stem of a tee open to the left")
	assert.Equal(t, DirUp, table.Recheck(11))
	assert.Equal(t, NoDirection, table.Recheck(MaskLeft|MaskRight))
	assert.Equal(t, NoDirection, table.Recheck(MaskUp|MaskRight))
	assert.Equal(t, NoDirection, table.Recheck(15))
	assert.Equal(t, NoDirection, table.Recheck(MaskLowerLeft))
	assert.Equal(t, NoDirection, table.Recheck(0))
}
