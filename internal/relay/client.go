package relay

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cipherchat/internal/model"
	"cipherchat/internal/utils/log"
)

const sendBufferSize = 256

type (
	// client pumps frames between one websocket and the registry. The
	// closed flag is owned by the registry goroutine.
	client struct {
		registry *Registry
		conn     *websocket.Conn
		send     chan model.Frame
		userID   string
		closed   bool
	}
)

func newClient(registry *Registry, conn *websocket.Conn, userID string) *client {
	return &client{
		registry: registry,
		conn:     conn,
		send:     make(chan model.Frame, sendBufferSize),
		userID:   userID,
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.registry.unregister <- c:
		case <-c.registry.done:
		}
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug("web socket closed", zap.String("userID", c.userID), zap.Error(err))
			return
		}

		var frame model.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Error("dropping undecodable frame",
				zap.String("userID", c.userID), zap.Error(err))
			continue
		}

		select {
		case c.registry.inbound <- inbound{from: c, frame: frame}:
		case <-c.registry.done:
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for frame := range c.send {
		if err := c.conn.WriteJSON(&frame); err != nil {
			log.Debug("write failed", zap.String("userID", c.userID), zap.Error(err))
			return
		}
	}
	// send channel closed by the registry: say goodbye properly.
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
