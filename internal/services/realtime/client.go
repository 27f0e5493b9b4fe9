package realtime

import (
	"context"
	"time"

	"spiritualconnect/internal/models"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one websocket connection attached to the hub.
type Client struct {
	*models.Connection
	Conn *websocket.Conn
	Send chan []byte // outbound frames, closed by the hub

	hub         *Hub
	rooms       map[string]struct{} // owned by the hub loop
	connectSpan trace.SpanContext
}

// NewClient wraps conn. userID is zero for unauthenticated connections.
func (h *Hub) NewClient(conn *websocket.Conn, userID int, userName string) *Client {
	return &Client{
		Connection: models.NewConnection(userID, userName),
		Conn:       conn,
		Send:       make(chan []byte, h.opts.SendBuffer),
		hub:        h,
		rooms:      make(map[string]struct{}),
	}
}

// ReadPump reads frames until the connection fails, then unregisters.
// Events from one connection are handled in arrival order.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.Conn.Close()
	}()

	if c.hub.opts.MaxMessageBytes > 0 {
		c.Conn.SetReadLimit(c.hub.opts.MaxMessageBytes)
	}
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.LastActiveAt = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read failed", zap.String("conn_id", c.ID), zap.Error(err))
			}
			return
		}

		c.LastActiveAt = time.Now()
		c.hub.HandleEvent(ctx, c, message)
	}
}

// WritePump writes queued frames and keepalive pings. One JSON envelope per
// text frame.
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
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
