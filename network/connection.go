package network

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"starbase/server/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// ErrConnectionClosed is returned when sending on a closed connection
var ErrConnectionClosed = errors.New("connection closed")

// Connection wraps the WebSocket connection with an outgoing queue
type Connection struct {
	ws        *websocket.Conn
	send      chan []byte
	closed    bool
	closeOnce sync.Once
	mutex     sync.Mutex
}

// NewConnection creates a new connection wrapper. maxMessageSize bounds
// incoming messages; zero leaves gorilla's default.
func NewConnection(ws *websocket.Conn, maxMessageSize int64) *Connection {
	if maxMessageSize > 0 {
		ws.SetReadLimit(maxMessageSize)
	}
	return &Connection{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}
}

// RemoteAddr returns the peer address
func (c *Connection) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// ReadPump reads messages from the WebSocket connection until it fails,
// handing each one to h on the calling goroutine
func (c *Connection) ReadPump(h MessageHandler) {
	defer c.Close()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warning("Error reading message", "remote_addr", c.RemoteAddr(), "error", err)
			}
			break
		}

		h.HandleMessage(c, message)
	}
}

// WritePump writes queued messages and keepalive pings to the WebSocket connection
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, say goodbye
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(message); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a message for the client. A client that cannot keep
// up with its queue is disconnected.
func (c *Connection) SendMessage(msg interface{}) error {
	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- messageBytes:
		return nil
	default:
		logger.Warning("Send queue full, dropping client", "remote_addr", c.RemoteAddr())
		c.closeLocked()
		return ErrConnectionClosed
	}
}

// Close stops the write pump, which then closes the socket
func (c *Connection) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closeLocked()
}

func (c *Connection) closeLocked() {
	c.closeOnce.Do(func() {
		c.closed = true
		close(c.send)
	})
}

// MessageHandler interface for handling messages
type MessageHandler interface {
	HandleMessage(conn *Connection, message []byte)
}
