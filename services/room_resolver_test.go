package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starbase/server/models"
)

// recordingSink counts sink calls on top of a real ledger
type recordingSink struct {
	*PieceLedger
	floors   int
	walls    int
	releases int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{PieceLedger: NewPieceLedger(8)}
}

func (s *recordingSink) PlaceFloor(index int, pos models.Position) models.PieceHandle {
	s.floors++
	return s.PieceLedger.PlaceFloor(index, pos)
}

func (s *recordingSink) PlaceWall(index int, pos models.Position, shape models.WallShape, rotation int) models.PieceHandle {
	s.walls++
	return s.PieceLedger.PlaceWall(index, pos, shape, rotation)
}

func (s *recordingSink) ReleaseWall(handle models.PieceHandle) {
	s.releases++
	s.PieceLedger.ReleaseWall(handle)
}

// failingLookup faults on one mask and counts lookups
type failingLookup struct {
	*ShapeTable
	failOn  NeighborMask
	lookups int
}

func (f *failingLookup) Lookup(mask NeighborMask) (ShapeEntry, error) {
	f.lookups++
	if mask == f.failOn {
		return ShapeEntry{}, errors.New("lookup failed")
	}
	return f.ShapeTable.Lookup(mask)
}

// rightwardLookup always names the right neighbor for a recheck
type rightwardLookup struct {
	lookups int
}

func (l *rightwardLookup) Lookup(NeighborMask) (ShapeEntry, error) {
	l.lookups++
	return ShapeEntry{Shape: models.ShapeStraight}, nil
}

func (l *rightwardLookup) Recheck(NeighborMask) Direction { return DirRight }

func newTestResolver(width, height int, sink Sink, shapes ShapeLookup) (*GridStore, *RoomResolver) {
	grid := NewGridStore(width, height)
	if shapes == nil {
		shapes = NewShapeTable(DefaultRotationRules())
	}
	return grid, NewRoomResolver(grid, sink, shapes)
}

func block(grid *GridStore, x0, y0, x1, y1 int) []int {
	var tiles []int
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			tiles = append(tiles, grid.IndexOf(x, y))
		}
	}
	return tiles
}

func byIndex(results []Resolution) map[int]Resolution {
	out := make(map[int]Resolution, len(results))
	for _, res := range results {
		if res.Rechecked {
			continue
		}
		out[res.Index] = res
	}
	return out
}

func TestResolveThreeByThreeRoom(t *testing.T) {
	sink := newRecordingSink()
	grid, resolver := newTestResolver(5, 5, sink, nil)
	batch := grid.MarkTempRoom(block(grid, 1, 1, 3, 3))
	require.Len(t, batch, 9)

	results := byIndex(resolver.Resolve(batch))
	require.Len(t, results, 9)

	center := results[grid.IndexOf(2, 2)]
	assert.Equal(t, models.TileGround, center.Category)
	assert.Equal(t, models.TileGround, grid.Category(2, 2))

	corners := map[models.Position]int{
		{X: 1, Y: 1}: 90,
		{X: 3, Y: 1}: 0,
		{X: 1, Y: 3}: 180,
		{X: 3, Y: 3}: 270,
	}
	for pos, rotation := range corners {
		res := results[grid.IndexOf(pos.X, pos.Y)]
		assert.Equal(t, models.ShapeCorner, res.Shape, "corner %s", pos)
		assert.Equal(t, rotation, res.Rotation, "corner %s", pos)
	}

	edges := map[models.Position]int{
		{X: 2, Y: 1}: 90,
		{X: 2, Y: 3}: 90,
		{X: 1, Y: 2}: 0,
		{X: 3, Y: 2}: 0,
	}
	for pos, rotation := range edges {
		res := results[grid.IndexOf(pos.X, pos.Y)]
		assert.Equal(t, models.TileWall, res.Category, "edge %s", pos)
		assert.Equal(t, models.ShapeStraight, res.Shape, "edge %s", pos)
		assert.Equal(t, rotation, res.Rotation, "edge %s", pos)
		assert.NoError(t, res.Err)
	}

	assert.Equal(t, 1, sink.floors)
	assert.Equal(t, 8, sink.walls)
	assert.Equal(t, 0, sink.releases)
	assert.Len(t, sink.Pieces(), 9)
}

func TestResolveCorridorIsAllStraight(t *testing.T) {
	grid, resolver := newTestResolver(10, 5, newRecordingSink(), nil)
	batch := grid.MarkTempRoom(block(grid, 2, 2, 7, 2))

	results := resolver.Resolve(batch)

	// both run ends recheck the cell next to them
	require.Len(t, results, 8)
	rechecked := 0
	for _, res := range results {
		if res.Rechecked {
			rechecked++
		}
		assert.Equal(t, models.TileWall, res.Category)
		assert.Equal(t, models.ShapeStraight, res.Shape, "tile %s", res.Position)
		assert.Equal(t, 90, res.Rotation, "tile %s", res.Position)
	}
	assert.Equal(t, 2, rechecked)
}

func TestResolveBorderCellsNeverBecomeGround(t *testing.T) {
	grid, resolver := newTestResolver(4, 4, newRecordingSink(), nil)
	batch := grid.MarkTempRoom(block(grid, 0, 0, 3, 3))

	resolver.Resolve(batch)

	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			if grid.OnBorder(x, y) {
				assert.Equal(t, models.TileWall, grid.Category(x, y), "border (%d,%d)", x, y)
				continue
			}
			assert.Equal(t, models.TileGround, grid.Category(x, y), "interior (%d,%d)", x, y)
		}
	}
}

func TestExtractFloorsIsIdempotent(t *testing.T) {
	sink := newRecordingSink()
	grid, resolver := newTestResolver(5, 5, sink, nil)
	resolver.Resolve(grid.MarkTempRoom(block(grid, 1, 1, 3, 3)))
	center := grid.IndexOf(2, 2)

	walls := resolver.ExtractFloors([]int{center})

	assert.Empty(t, walls)
	assert.Equal(t, models.TileGround, grid.CategoryAt(center))
	assert.Equal(t, 1, sink.floors, "existing floor piece kept")
}

func TestResolveIsDeterministic(t *testing.T) {
	run := func() ([]Resolution, *models.GameMap) {
		grid, resolver := newTestResolver(12, 12, NewPieceLedger(4), nil)
		var all []Resolution
		all = append(all, resolver.Resolve(grid.MarkTempRoom(block(grid, 1, 1, 5, 4)))...)
		all = append(all, resolver.Resolve(grid.MarkTempRoom(block(grid, 6, 2, 9, 2)))...)
		all = append(all, resolver.Resolve(grid.MarkTempRoom(block(grid, 3, 5, 4, 9)))...)
		return all, grid.Snapshot()
	}

	firstResults, firstGrid := run()
	secondResults, secondGrid := run()

	assert.Equal(t, firstResults, secondResults)
	assert.Equal(t, firstGrid, secondGrid)
}

func TestResolveLookupFaultDoesNotStopBatch(t *testing.T) {
	sink := newRecordingSink()
	lookup := &failingLookup{ShapeTable: NewShapeTable(DefaultRotationRules()), failOn: MaskRight | MaskDown}
	grid, resolver := newTestResolver(5, 5, sink, lookup)

	results := byIndex(resolver.Resolve(grid.MarkTempRoom(block(grid, 1, 1, 3, 3))))

	faulted := grid.IndexOf(1, 1)
	res := results[faulted]
	require.Error(t, res.Err)
	assert.Equal(t, models.TileWall, res.Category)
	assert.Equal(t, models.ShapeNone, res.Shape)
	assert.Equal(t, models.TileWall, grid.CategoryAt(faulted))
	_, placed := resolver.PieceShape(faulted)
	assert.False(t, placed)

	for index, other := range results {
		if index == faulted {
			continue
		}
		assert.NoError(t, other.Err, "tile %s", other.Position)
	}
	assert.Equal(t, 7, sink.walls)
	assert.Equal(t, 1, sink.floors)
}

func TestResolveUnmappedMaskFaults(t *testing.T) {
	grid, resolver := newTestResolver(5, 5, newRecordingSink(), nil)

	results := resolver.Resolve(grid.MarkTempRoom([]int{grid.IndexOf(2, 2)}))

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrUnmappedMask)
	assert.Equal(t, models.ShapeNone, results[0].Shape)
}

func TestRecheckStopsAtDepthOne(t *testing.T) {
	lookup := &rightwardLookup{}
	grid, resolver := newTestResolver(8, 5, newRecordingSink(), lookup)

	resolver.Resolve(grid.MarkTempRoom(block(grid, 1, 2, 5, 2)))

	// five direct lookups plus one recheck for each cell with a wall to its right
	assert.Equal(t, 9, lookup.lookups)
}

func TestRecheckReplacesStaleWallPiece(t *testing.T) {
	sink := newRecordingSink()
	grid, resolver := newTestResolver(10, 10, sink, nil)
	resolver.Resolve(grid.MarkTempRoom(block(grid, 2, 2, 4, 2)))
	end := grid.IndexOf(4, 2)

	shape, ok := resolver.PieceShape(end)
	require.True(t, ok)
	require.Equal(t, models.ShapeStraight, shape)
	require.NoError(t, resolver.Assemble(end))

	results := resolver.Resolve(grid.MarkTempRoom([]int{grid.IndexOf(4, 3)}))

	require.Len(t, results, 2)
	assert.Equal(t, grid.IndexOf(4, 3), results[0].Index)
	assert.False(t, results[0].Rechecked)
	assert.Equal(t, end, results[1].Index, "neighbor from the earlier batch is reported")
	assert.True(t, results[1].Rechecked)
	assert.Equal(t, models.ShapeCorner, results[1].Shape)
	assert.Equal(t, 0, results[1].Rotation)

	shape, _ = resolver.PieceShape(end)
	assert.Equal(t, models.ShapeCorner, shape)
	assert.Equal(t, 1, sink.releases)

	var found bool
	for _, piece := range sink.Pieces() {
		if piece.Index == end {
			found = true
			assert.Equal(t, models.ShapeCorner, piece.Shape)
			assert.Equal(t, 0, piece.Rotation)
			assert.True(t, piece.Assembled, "assembled state survives replacement")
		}
	}
	assert.True(t, found)
}

func TestAssemble(t *testing.T) {
	grid, resolver := newTestResolver(5, 5, newRecordingSink(), nil)
	resolver.Resolve(grid.MarkTempRoom(block(grid, 1, 1, 3, 3)))

	require.NoError(t, resolver.Assemble(grid.IndexOf(1, 1)))
	assert.ErrorIs(t, resolver.Assemble(grid.IndexOf(1, 1)), ErrAlreadyAssembled)
	assert.ErrorIs(t, resolver.Assemble(grid.IndexOf(0, 0)), ErrNoPiece)
}
