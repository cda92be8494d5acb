package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Viewers only send control frames.
	maxMessageSize = 4096

	// sendBuffer absorbs bursts of access units before a client counts as slow.
	sendBuffer = 256
)

// Client is one viewer attached to a Hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
	joined time.Time
}

// Serve attaches conn to the hub and blocks until the viewer goes away.
// Use it as a websocket handler.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := &Client{hub: h, conn: conn, send: make(chan Message, sendBuffer), joined: time.Now()}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writeLoop()
	c.drain()
	c.leave()
}

// leave unregisters c unless the hub has already stopped.
func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	c.conn.Close()
}

// drain discards inbound frames so pongs and the close handshake are seen.
func (c *Client) drain() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer on the connection. The hub closes send to
// end it.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, c.hub.name+" closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := c.write(msg); err != nil {
				c.hub.logger.Debug("viewer write failed",
					"error", err, "connected_for", time.Since(c.joined).Round(time.Second))
				return
			}

		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// write sends every frame of msg under one deadline.
func (c *Client) write(msg Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	for _, p := range msg.Parts {
		if err := c.conn.WriteMessage(p.Opcode, p.Data); err != nil {
			return err
		}
	}
	return nil
}
