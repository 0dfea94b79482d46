package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gorilla/websocket"

	"starbase/server/logger"
	"starbase/server/messages"
	"starbase/server/models"
	"starbase/server/network"
	"starbase/server/services"
)

// ClientHandler manages a single client connection
type ClientHandler struct {
	conn          *network.Connection
	builders      *services.BuilderService
	world         *services.WorldService
	clientManager *ClientManager
	builder       *models.Builder
}

// HandleClientConnection serves one websocket until it closes
func HandleClientConnection(wsConn *websocket.Conn, maxMessageSize int64, builders *services.BuilderService, world *services.WorldService, clientManager *ClientManager) {
	conn := network.NewConnection(wsConn, maxMessageSize)
	logger.Info("New connection", "remote_addr", conn.RemoteAddr())

	handler := &ClientHandler{
		conn:          conn,
		builders:      builders,
		world:         world,
		clientManager: clientManager,
	}

	go conn.WritePump()

	// Messages are handled on this goroutine, in arrival order
	conn.ReadPump(handler)

	if handler.builder != nil {
		handler.leave()
		logger.Info("Builder disconnected", "builder", handler.builder.Username)
	}
}

// HandleMessage handles incoming messages from the client
func (h *ClientHandler) HandleMessage(conn *network.Connection, message []byte) {
	var envelope messages.Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		logger.Debug("Error unmarshaling message", "remote_addr", conn.RemoteAddr(), "error", err)
		h.sendError(messages.CodeBadPayload, "Malformed message")
		return
	}

	switch envelope.Type {
	case messages.MessageTypeLogin:
		h.handleLogin(envelope)
	case messages.MessageTypeBuildRoom:
		h.handleBuildRoom(envelope)
	case messages.MessageTypeAssembleTile:
		h.handleAssembleTile(envelope)
	case messages.MessageTypeSwitchMode:
		h.handleSwitchMode(envelope)
	default:
		logger.Debug("Unknown message type", "type", envelope.Type)
		h.sendError(messages.CodeUnknownMessageType, "Unknown message type received")
	}
}

// handleLogin authenticates the builder and sends the replay log. The log
// is sent and the client registered under the world lock, so no approved
// record is missed or delivered twice.
func (h *ClientHandler) handleLogin(envelope messages.Envelope) {
	var loginMsg messages.LoginMessage
	if err := envelope.Decode(&loginMsg); err != nil {
		h.sendError(messages.CodeBadPayload, "Invalid login payload")
		return
	}

	builder, err := h.builders.Login(loginMsg.Username, loginMsg.Password, loginMsg.Mode)
	if err != nil {
		logger.Info("Login failed", "username", loginMsg.Username, "error", err)
		message := "Failed to log in"
		if errors.Is(err, services.ErrBadCredentials) || errors.Is(err, services.ErrInvalidMode) {
			message = err.Error()
		}
		h.sendError(messages.CodeLoginFailed, message)
		return
	}

	if h.builder != nil && h.builder.ID != builder.ID {
		h.leave()
	}
	h.builder = builder

	opts := h.world.Options()
	h.world.Join(func(history []models.BuildRecord) {
		h.clientManager.AddClient(builder.ID, h)
		h.send(messages.BaseMessage{
			Type: messages.MessageTypeLoginSuccess,
			Payload: messages.LoginSuccessMessage{
				BuilderID: builder.ID,
				Mode:      builder.Mode,
				Station:   h.world.Name(),
				Width:     opts.Width,
				Height:    opts.Height,
				Rotations: opts.Rotations,
				History:   history,
			},
		})
	})

	logger.Info("Builder logged in", "builder", builder.Username, "mode", builder.Mode)
}

// handleBuildRoom submits a room batch. Success is acknowledged by the
// room_approved broadcast every client receives, the sender included.
func (h *ClientHandler) handleBuildRoom(envelope messages.Envelope) {
	if !h.requireLogin() {
		return
	}

	var buildMsg messages.BuildRoomMessage
	if err := envelope.Decode(&buildMsg); err != nil {
		h.sendError(messages.CodeBadPayload, "Invalid build_room payload")
		return
	}

	record, _, err := h.world.SubmitBuildRoom(h.builder.ID, buildMsg.Tiles)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotAdministrator):
			h.sendError(messages.CodeNotAdministrator, err.Error())
		case errors.Is(err, services.ErrEmptyBatch):
			h.sendError(messages.CodeBuildRejected, err.Error())
		default:
			logger.Error("Room submission failed", "builder", h.builder.Username, "error", err)
			h.sendError(messages.CodeInternal, "Failed to record room")
		}
		return
	}

	logger.Info("Room approved", "builder", h.builder.Username, "batch_id", record.ID, "tiles", len(record.Tiles))
}

// handleAssembleTile builds the hologram on one tile
func (h *ClientHandler) handleAssembleTile(envelope messages.Envelope) {
	if !h.requireLogin() {
		return
	}

	var assembleMsg messages.AssembleTileMessage
	if err := envelope.Decode(&assembleMsg); err != nil {
		h.sendError(messages.CodeBadPayload, "Invalid assemble_tile payload")
		return
	}

	if _, err := h.world.AssembleTile(h.builder.ID, assembleMsg.Tile); err != nil {
		switch {
		case errors.Is(err, services.ErrNotAdministrator):
			h.sendError(messages.CodeNotAdministrator, err.Error())
		case errors.Is(err, services.ErrNoPiece), errors.Is(err, services.ErrAlreadyAssembled):
			h.sendError(messages.CodeAssembleFailed, err.Error())
		default:
			logger.Error("Assemble failed", "builder", h.builder.Username, "error", err)
			h.sendError(messages.CodeInternal, "Failed to record assembly")
		}
	}
}

// handleSwitchMode moves the builder between administrator and character mode
func (h *ClientHandler) handleSwitchMode(envelope messages.Envelope) {
	if !h.requireLogin() {
		return
	}

	var switchMsg messages.SwitchModeMessage
	if err := envelope.Decode(&switchMsg); err != nil {
		h.sendError(messages.CodeBadPayload, "Invalid switch_mode payload")
		return
	}

	if err := h.world.SwitchMode(h.builder.ID, switchMsg.Mode); err != nil {
		h.sendError(messages.CodeModeRejected, err.Error())
		return
	}

	h.send(messages.BaseMessage{
		Type:    messages.MessageTypeModeChanged,
		Payload: messages.ModeChangedMessage{Mode: switchMsg.Mode},
	})
}

func (h *ClientHandler) requireLogin() bool {
	if h.builder != nil {
		return true
	}
	h.sendError(messages.CodeNotAuthenticated, "Log in first")
	return false
}

// leave unregisters the current builder session
func (h *ClientHandler) leave() {
	if h.clientManager.RemoveClient(h.builder.ID, h) {
		h.builders.Logout(h.builder.ID)
	}
}

func (h *ClientHandler) send(msg messages.BaseMessage) {
	if err := h.conn.SendMessage(msg); err != nil {
		logger.Debug("Error sending message", "type", msg.Type, "error", err)
	}
}

func (h *ClientHandler) sendError(code, message string) {
	h.send(messages.NewError(code, message))
}
