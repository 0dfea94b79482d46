package messages

import (
	"encoding/json"

	"starbase/server/models"
	"starbase/server/services"
)

// MessageType defines the type of message being sent
type MessageType string

const (
	MessageTypeLogin         MessageType = "login"
	MessageTypeLoginSuccess  MessageType = "login_success"
	MessageTypeBuildRoom     MessageType = "build_room"
	MessageTypeRoomApproved  MessageType = "room_approved"
	MessageTypeAssembleTile  MessageType = "assemble_tile"
	MessageTypeTileAssembled MessageType = "tile_assembled"
	MessageTypeSwitchMode    MessageType = "switch_mode"
	MessageTypeModeChanged   MessageType = "mode_changed"
	MessageTypeError         MessageType = "error"
)

// Error codes carried by ErrorMessage
const (
	CodeBadPayload         = "BAD_PAYLOAD"
	CodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	CodeLoginFailed        = "LOGIN_FAILED"
	CodeNotAuthenticated   = "NOT_AUTHENTICATED"
	CodeNotAdministrator   = "NOT_ADMINISTRATOR"
	CodeBuildRejected      = "BUILD_REJECTED"
	CodeAssembleFailed     = "ASSEMBLE_FAILED"
	CodeModeRejected       = "MODE_REJECTED"
	CodeInternal           = "INTERNAL_ERROR"
)

// BaseMessage is the envelope for every outgoing message
type BaseMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is an incoming message with its payload left undecoded
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Payload, v)
}

// LoginMessage represents a login request
type LoginMessage struct {
	Username string             `json:"username"`
	Password string             `json:"password"`
	Mode     models.BuilderMode `json:"mode,omitempty"`
}

// LoginSuccessMessage carries everything a client needs to rebuild its
// predicted station: the field size and the approved log so far
type LoginSuccessMessage struct {
	BuilderID string                 `json:"builder_id"`
	Mode      models.BuilderMode     `json:"mode"`
	Station   string                 `json:"station"`
	Width     int                    `json:"width"`
	Height    int                    `json:"height"`
	Rotations services.RotationRules `json:"rotations"`
	History   []models.BuildRecord   `json:"history"`
}

// BuildRoomMessage submits a batch of tile indices to become a room
type BuildRoomMessage struct {
	Tiles []int `json:"tiles"`
}

// RoomApprovedMessage broadcasts an accepted room batch
type RoomApprovedMessage struct {
	BatchID   string `json:"batch_id"`
	BuilderID string `json:"builder_id"`
	Tiles     []int  `json:"tiles"`
}

// AssembleTileMessage asks to build the hologram piece on a tile
type AssembleTileMessage struct {
	Tile int `json:"tile"`
}

// TileAssembledMessage broadcasts an assembled tile
type TileAssembledMessage struct {
	BatchID   string `json:"batch_id"`
	BuilderID string `json:"builder_id"`
	Tile      int    `json:"tile"`
}

// SwitchModeMessage moves the sender between administrator and character mode
type SwitchModeMessage struct {
	Mode models.BuilderMode `json:"mode"`
}

// ModeChangedMessage confirms a mode switch
type ModeChangedMessage struct {
	Mode models.BuilderMode `json:"mode"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError wraps an error code and text in an envelope
func NewError(code, message string) BaseMessage {
	return BaseMessage{
		Type:    MessageTypeError,
		Payload: ErrorMessage{Code: code, Message: message},
	}
}
