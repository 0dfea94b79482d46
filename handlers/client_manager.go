package handlers

import (
	"sync"

	"starbase/server/logger"
	"starbase/server/messages"
	"starbase/server/models"
)

// ClientManager manages connected clients
type ClientManager struct {
	clients map[string]*ClientHandler // Map BuilderID to ClientHandler
	mutex   sync.RWMutex
}

// NewClientManager creates a new client manager
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[string]*ClientHandler),
	}
}

// AddClient adds a client to the manager, replacing an older session of the
// same builder
func (cm *ClientManager) AddClient(builderID string, handler *ClientHandler) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.clients[builderID] = handler
}

// RemoveClient removes handler if it is still the builder's current session
func (cm *ClientManager) RemoveClient(builderID string, handler *ClientHandler) bool {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if current, ok := cm.clients[builderID]; !ok || current != handler {
		return false
	}
	delete(cm.clients, builderID)
	return true
}

// Count returns the number of connected builders
func (cm *ClientManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.clients)
}

// BroadcastToAll sends a message to all connected clients
func (cm *ClientManager) BroadcastToAll(msg interface{}) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	for id, client := range cm.clients {
		if err := client.conn.SendMessage(msg); err != nil {
			logger.Warning("Error broadcasting to client", "builder", id, "error", err)
		}
	}
}

// BroadcastRecord announces an approved build record to every client
func (cm *ClientManager) BroadcastRecord(record models.BuildRecord) {
	msg, ok := RecordMessage(record)
	if !ok {
		logger.Error("Not broadcasting record of unknown kind", "batch_id", record.ID, "kind", record.Kind)
		return
	}
	cm.BroadcastToAll(msg)
}

// RecordMessage converts a build record to the message clients replay
func RecordMessage(record models.BuildRecord) (messages.BaseMessage, bool) {
	switch record.Kind {
	case models.BuildRoom:
		return messages.BaseMessage{
			Type: messages.MessageTypeRoomApproved,
			Payload: messages.RoomApprovedMessage{
				BatchID:   record.ID,
				BuilderID: record.BuilderID,
				Tiles:     record.Tiles,
			},
		}, true
	case models.BuildAssemble:
		if len(record.Tiles) != 1 {
			return messages.BaseMessage{}, false
		}
		return messages.BaseMessage{
			Type: messages.MessageTypeTileAssembled,
			Payload: messages.TileAssembledMessage{
				BatchID:   record.ID,
				BuilderID: record.BuilderID,
				Tile:      record.Tiles[0],
			},
		}, true
	default:
		return messages.BaseMessage{}, false
	}
}
