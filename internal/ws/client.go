package ws

import (
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/helpdeskhq/chat-service/internal/models"
)

// Client is one live socket. Identity is populated at handshake time and
// never changes for the connection's lifetime.
type Client struct {
	SocketID   string
	User       *models.User
	DeviceInfo string
	IP         string

	send chan []byte
}

func NewClient(socketID string, user *models.User, bufSize int) *Client {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Client{
		SocketID: socketID,
		User:     user,
		send:     make(chan []byte, bufSize),
	}
}

func (c *Client) UserID() string { return c.User.ID.Hex() }

// Outbox exposes the send channel for tests.
func (c *Client) Outbox() <-chan []byte { return c.send }

// writePump drains the send channel onto the wire and keeps the
// connection alive with pings. Runs in its own goroutine; returns when
// the channel closes or a write fails.
func (c *Client) writePump(conn *websocket.Conn, pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
