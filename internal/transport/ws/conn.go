package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before the read
	// loop gives up on it.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize caps inbound command frames.
	maxMessageSize = 32 * 1024
	// sendBuffer is the per-connection outbound queue depth. A full queue
	// means the client is not draining and the connection is dropped.
	sendBuffer = 64
)

// conn wraps a websocket connection behind a buffered outbound queue so that
// engine fan-out never blocks on a slow client.
type conn struct {
	ws  *websocket.Conn
	out chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:   ws,
		out:  make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues a frame for delivery. It fails without blocking when the
// connection is closed or the client has stopped draining its queue.
func (c *conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection closed")
	default:
	}
	select {
	case c.out <- payload:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Close shuts the connection down once, sending the reason in the close frame.
func (c *conn) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, message, deadline)
		_ = c.ws.Close()
	})
}

// writePump drains the outbound queue and keeps the connection alive with
// pings. It owns all writes to the underlying socket.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close("write-failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close("ping-failed")
				return
			}
		case <-c.done:
			return
		}
	}
}
