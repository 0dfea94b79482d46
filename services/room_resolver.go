package services

import (
	"errors"
	"fmt"

	"starbase/server/logger"
	"starbase/server/models"
)

var (
	// ErrNoPiece is returned when assembling a cell nothing was placed on
	ErrNoPiece = errors.New("no piece at tile")

	// ErrAlreadyAssembled is returned when assembling a piece twice
	ErrAlreadyAssembled = errors.New("piece already assembled")
)

// maxRecheckDepth bounds neighbor re-classification to one level
const maxRecheckDepth = 1

// Resolution is the outcome for one classified cell. Rechecked marks a wall
// that was re-classified because a neighbor was placed next to it; it may
// lie outside the batch.
type Resolution struct {
	Index     int                 `json:"index"`
	Position  models.Position     `json:"position"`
	Category  models.TileCategory `json:"category"`
	Shape     models.WallShape    `json:"shape"`
	Rotation  int                 `json:"rotation"`
	Mask      NeighborMask        `json:"mask"`
	Rechecked bool                `json:"rechecked,omitempty"`
	Err       error               `json:"-"`
}

type placedPiece struct {
	handle    models.PieceHandle
	category  models.TileCategory
	shape     models.WallShape
	rotation  int
	assembled bool
}

// RoomResolver turns batches of TempRoom cells into floors and shaped walls.
// It runs synchronously on its caller's goroutine.
type RoomResolver struct {
	grid   *GridStore
	sink   Sink
	shapes ShapeLookup
	pieces map[int]*placedPiece
}

// NewRoomResolver creates a resolver writing to grid and sink
func NewRoomResolver(grid *GridStore, sink Sink, shapes ShapeLookup) *RoomResolver {
	return &RoomResolver{
		grid:   grid,
		sink:   sink,
		shapes: shapes,
		pieces: make(map[int]*placedPiece),
	}
}

// Resolve classifies every cell of batch. The batch must already be marked
// TempRoom and in bounds. Faults are reported per cell; the rest of the batch
// is still processed. Rechecked neighbors are reported after the cell that
// triggered them, so an index can appear more than once.
func (r *RoomResolver) Resolve(batch []int) []Resolution {
	results := make([]Resolution, 0, len(batch))

	work := make([]int, len(batch))
	copy(work, batch)

	walls, floors := r.extractFloors(work)
	results = append(results, floors...)

	for _, index := range walls {
		results = r.classifyWall(index, 0, results)
	}

	return results
}

// ExtractFloors runs the floor pass alone and returns the cells left as walls
func (r *RoomResolver) ExtractFloors(batch []int) []int {
	work := make([]int, len(batch))
	copy(work, batch)
	walls, _ := r.extractFloors(work)
	return walls
}

// extractFloors walks the batch back to front so removing a floor cell never
// skips an unvisited one. Cells with no empty neighbor that are not on the
// grid border become Ground; everything else is tentatively Wall.
func (r *RoomResolver) extractFloors(batch []int) ([]int, []Resolution) {
	var floors []Resolution

	for i := len(batch) - 1; i >= 0; i-- {
		index := batch[i]
		pos := r.grid.CoordsOf(index)
		empty := r.grid.NeighborMask(pos.X, pos.Y, models.TileNone)

		if empty == 0 && !r.grid.OnBorder(pos.X, pos.Y) {
			r.grid.SetCategory(index, models.TileGround)
			r.placeFloor(index, pos)
			floors = append(floors, Resolution{
				Index:    index,
				Position: pos,
				Category: models.TileGround,
				Mask:     empty,
			})
			batch = append(batch[:i], batch[i+1:]...)
			continue
		}

		r.grid.SetCategory(index, models.TileWall)
	}

	return batch, floors
}

// classifyWall looks up the shape for a wall cell, updates its piece and
// appends the outcome to results. At depth 0 it may re-classify one neighbor
// the table names, whose outcome follows the cell's own.
func (r *RoomResolver) classifyWall(index int, depth int, results []Resolution) []Resolution {
	pos := r.grid.CoordsOf(index)
	mask := r.grid.NeighborMask(pos.X, pos.Y, models.TileWall)
	res := Resolution{
		Index:     index,
		Position:  pos,
		Category:  models.TileWall,
		Mask:      mask,
		Rechecked: depth > 0,
	}

	entry, err := r.shapes.Lookup(mask)
	if err != nil {
		logger.Warning("Wall classification failed", "index", index, "position", pos, "mask", int(mask), "error", err)
		res.Err = fmt.Errorf("tile %d: %w", index, err)
		return append(results, res)
	}

	res.Shape = entry.Shape
	res.Rotation = entry.Rotation
	r.placeWall(index, pos, entry)
	results = append(results, res)

	if depth < maxRecheckDepth {
		if d := r.shapes.Recheck(mask); d != NoDirection {
			if neighbor, ok := r.grid.Neighbor(index, d); ok && r.grid.CategoryAt(neighbor) == models.TileWall {
				results = r.classifyWall(neighbor, depth+1, results)
			}
		}
	}

	return results
}

func (r *RoomResolver) placeFloor(index int, pos models.Position) {
	if existing, ok := r.pieces[index]; ok {
		if existing.category == models.TileGround {
			return
		}
		r.sink.ReleaseWall(existing.handle)
		delete(r.pieces, index)
	}

	handle := r.sink.PlaceFloor(index, pos)
	r.pieces[index] = &placedPiece{handle: handle, category: models.TileGround}
}

// placeWall keeps a matching piece and swaps one whose shape or rotation no
// longer matches the cell.
func (r *RoomResolver) placeWall(index int, pos models.Position, entry ShapeEntry) {
	assembled := false
	if existing, ok := r.pieces[index]; ok {
		if existing.category == models.TileWall && existing.shape == entry.Shape && existing.rotation == entry.Rotation {
			return
		}
		logger.Debug("Replacing stale wall piece", "index", index,
			"old_shape", existing.shape, "new_shape", entry.Shape)
		r.sink.ReleaseWall(existing.handle)
		delete(r.pieces, index)
		assembled = existing.assembled
	}

	handle := r.sink.PlaceWall(index, pos, entry.Shape, entry.Rotation)
	r.pieces[index] = &placedPiece{
		handle:    handle,
		category:  models.TileWall,
		shape:     entry.Shape,
		rotation:  entry.Rotation,
		assembled: assembled,
	}
	// A built wall stays built when its shape changes
	if assembled {
		r.sink.AssemblePiece(handle)
	}
}

// Assemble turns the hologram piece at index into a built one
func (r *RoomResolver) Assemble(index int) error {
	piece, ok := r.pieces[index]
	if !ok {
		return fmt.Errorf("tile %d: %w", index, ErrNoPiece)
	}
	if piece.assembled {
		return fmt.Errorf("tile %d: %w", index, ErrAlreadyAssembled)
	}
	piece.assembled = true
	r.sink.AssemblePiece(piece.handle)
	return nil
}

// PieceShape reports the shape currently placed at index
func (r *RoomResolver) PieceShape(index int) (models.WallShape, bool) {
	piece, ok := r.pieces[index]
	if !ok {
		return models.ShapeNone, false
	}
	return piece.shape, true
}
