package services

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"starbase/server/models"
)

// PieceLedger is a Sink that records placed pieces instead of drawing them.
// Piece records are pooled and keep their handle across reuse.
type PieceLedger struct {
	pool   *Pool[*models.Piece]
	active map[models.PieceHandle]*models.Piece
	mutex  sync.RWMutex
}

// NewPieceLedger creates a ledger whose pool keeps up to capacity idle records
func NewPieceLedger(capacity int) *PieceLedger {
	return &PieceLedger{
		pool: NewPool(capacity,
			func() *models.Piece {
				return &models.Piece{Handle: models.PieceHandle(uuid.NewString())}
			},
			func(p *models.Piece) *models.Piece {
				*p = models.Piece{Handle: p.Handle}
				return p
			}),
		active: make(map[models.PieceHandle]*models.Piece),
	}
}

// PlaceFloor implements Sink
func (l *PieceLedger) PlaceFloor(index int, pos models.Position) models.PieceHandle {
	return l.place(models.Piece{
		Index:    index,
		Position: pos,
		Category: models.TileGround,
	})
}

// PlaceWall implements Sink
func (l *PieceLedger) PlaceWall(index int, pos models.Position, shape models.WallShape, rotation int) models.PieceHandle {
	return l.place(models.Piece{
		Index:    index,
		Position: pos,
		Category: models.TileWall,
		Shape:    shape,
		Rotation: rotation,
	})
}

func (l *PieceLedger) place(template models.Piece) models.PieceHandle {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	piece := l.pool.Acquire()
	template.Handle = piece.Handle
	*piece = template
	l.active[piece.Handle] = piece
	return piece.Handle
}

// ReleaseWall implements Sink
func (l *PieceLedger) ReleaseWall(handle models.PieceHandle) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	piece, ok := l.active[handle]
	if !ok {
		return
	}
	delete(l.active, handle)
	l.pool.Release(piece)
}

// AssemblePiece implements Sink
func (l *PieceLedger) AssemblePiece(handle models.PieceHandle) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if piece, ok := l.active[handle]; ok {
		piece.Assembled = true
	}
}

// Maintain trims up to max overflow records and returns the number dropped
func (l *PieceLedger) Maintain(max int) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.pool.Trim(max)
}

// Piece returns a copy of the live piece with handle
func (l *PieceLedger) Piece(handle models.PieceHandle) (models.Piece, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	piece, ok := l.active[handle]
	if !ok {
		return models.Piece{}, false
	}
	return *piece, true
}

// Pieces lists live pieces ordered by tile index
func (l *PieceLedger) Pieces() []models.Piece {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	pieces := make([]models.Piece, 0, len(l.active))
	for _, piece := range l.active {
		pieces = append(pieces, *piece)
	}
	sort.Slice(pieces, func(i, j int) bool {
		return pieces[i].Index < pieces[j].Index
	})
	return pieces
}

// Idle returns the number of pooled records
func (l *PieceLedger) Idle() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.pool.Idle()
}
