package services

import "starbase/server/models"

// Sink materializes resolver output. Calls for an index may repeat; each call
// replaces whatever the sink showed for it before. Releasing a piece is a
// logical removal, the sink may clean up later.
type Sink interface {
	PlaceFloor(index int, pos models.Position) models.PieceHandle
	PlaceWall(index int, pos models.Position, shape models.WallShape, rotation int) models.PieceHandle
	ReleaseWall(handle models.PieceHandle)
	AssemblePiece(handle models.PieceHandle)
}
