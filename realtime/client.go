package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"canteen-runner-api/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Render turns an event into the frame sent to one client. Returning false
// skips the event.
type Render func(ev events.OrderEvent) (any, bool)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	sub    *Subscription
	render Render
	log    *zap.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, sub *Subscription, render Render, log *zap.Logger) *Client {
	return &Client{hub: hub, conn: conn, sub: sub, render: render, log: log}
}

// Serve writes the snapshot, then streams events until the peer goes away or
// the subscription is closed. It blocks.
func (c *Client) Serve(snapshot any) {
	go c.readPump()
	c.writePump(snapshot)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.sub)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump(snapshot any) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.Unsubscribe(c.sub)
		_ = c.conn.Close()
	}()

	if err := c.writeJSON(snapshot); err != nil {
		return
	}
	for {
		select {
		case ev, ok := <-c.sub.Events():
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frame, ok := c.render(ev)
			if !ok {
				continue
			}
			if err := c.writeJSON(frame); err != nil {
				c.log.Debug("websocket write failed", zap.String("subscription", c.sub.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
