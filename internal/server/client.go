package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Slack added on top of the ping interval before a silent peer is dropped.
	pongGrace = 10 * time.Second

	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// client is one websocket connection. Writes go through the send channel so
// the write pump is the only goroutine touching the connection for output.
type client struct {
	srv      *Server
	conn     *websocket.Conn
	send     chan []byte
	playerID string
	matchID  string
	logger   *zap.Logger
}

func newClient(srv *Server, conn *websocket.Conn) *client {
	return &client{
		srv:    srv,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: srv.logger,
	}
}

// enqueue queues a message for delivery, dropping the client when its buffer
// is full (a reader that slow is effectively gone).
func (c *client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) sendMessage(msg ServerMessage) {
	payload, err := encodeServerMessage(msg)
	if err != nil {
		c.logger.Error("encoding server message", zap.Error(err))
		return
	}
	if !c.enqueue(payload) {
		c.logger.Warn("client send buffer full, dropping connection",
			zap.String("player", c.playerID))
		c.conn.Close()
	}
}

// readPump consumes client messages until the connection dies.
func (c *client) readPump() {
	defer func() {
		c.srv.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	deadline := c.srv.cfg.PingInterval + pongGrace
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.sendMessage(errorMessage("malformed message"))
			continue
		}
		c.srv.handleMessage(c, msg)
	}
}

// writePump delivers queued messages and keeps the connection alive with
// pings.
func (c *client) writePump() {
	ticker := time.NewTicker(c.srv.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
