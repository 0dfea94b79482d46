package models

import "time"

// PieceHandle identifies a placed visual piece
type PieceHandle string

// Piece is a placed floor or wall piece tracked by a sink
type Piece struct {
	Handle    PieceHandle  `json:"handle"`
	Index     int          `json:"index"`
	Position  Position     `json:"position"`
	Category  TileCategory `json:"category"` // TileGround or TileWall
	Shape     WallShape    `json:"shape"`
	Rotation  int          `json:"rotation"` // Degrees
	Assembled bool         `json:"assembled"`
}

// BuilderMode mirrors the administrator/character play modes
type BuilderMode string

const (
	ModeAdministrator BuilderMode = "administrator"
	ModeCharacter     BuilderMode = "character"
)

// Builder is a user allowed to connect to a station
type Builder struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	PasswordHash string      `json:"password_hash"`
	Mode         BuilderMode `json:"mode"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// BuildKind distinguishes entries in a station's replay log
type BuildKind string

const (
	BuildRoom     BuildKind = "room"
	BuildAssemble BuildKind = "assemble"
)

// BuildRecord is one approved batch in a station's replay log
type BuildRecord struct {
	ID        string    `json:"id"`
	Kind      BuildKind `json:"kind"`
	Tiles     []int     `json:"tiles"`
	BuilderID string    `json:"builder_id"`
	CreatedAt time.Time `json:"created_at"`
}
