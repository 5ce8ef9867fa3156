package signaling

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/SpandanM110/Chatroom/internal/matchmaking"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must stay below pongWait so idle sockets are kept alive.
	pingPeriod = (pongWait * 9) / 10

	// SDP offers with many candidates fit comfortably in 64 KB.
	maxMessageSize = 64 * 1024
)

// Client is one accepted socket. Its ID is the connection id known to the
// matchmaking coordinator.
type Client struct {
	// ID is the connection id assigned when the socket was accepted.
	ID matchmaking.ConnID

	// Hub is the hub that owns this client's matchmaking state.
	Hub *Hub

	// Conn is the websocket connection.
	Conn *websocket.Conn

	// Send is a buffered channel for all outbound messages. Only the hub
	// writes to it and closes it; WritePump drains it.
	Send chan *Message

	drops atomic.Int64
}

// NewClient wraps conn for hub with an outbound queue of the given size.
func NewClient(id matchmaking.ConnID, hub *Hub, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		ID:   id,
		Hub:  hub,
		Conn: conn,
		Send: make(chan *Message, buffer),
	}
}

// Drops returns how many outbound messages were discarded for this client.
func (c *Client) Drops() int64 {
	return c.drops.Load()
}

// ReadPump decodes frames from the socket and forwards them to the hub. It is
// the only reader of Conn and unregisters the client when the socket dies.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("Read error", "conn", c.ID, "error", err)
			}
			return
		}

		// A malformed frame only costs its sender an error reply.
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Hub.log.Debug("Malformed message", "conn", c.ID, "error", err)
			msg = Message{Type: MessageTypeError, Error: "malformed message"}
		}
		msg.client = c

		if !c.Hub.inbound(&msg) {
			return
		}
	}
}

// WritePump drains Send onto the socket and keeps it alive with pings. It is
// the only writer of Conn and exits once the hub closes Send.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				c.Hub.log.Debug("Write error", "conn", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
