package stream

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hearthhub/hearthd/internal/journal"
)

// sendQueueSize bounds each connection's outbound queue, per spec.md §4.4
// ("a few thousand events"). A full queue triggers a policy-violation
// close rather than blocking the publisher.
const sendQueueSize = 4096

// Connection is one live /ws client: a gorilla/websocket conn plus the
// subscription it registered in its hello frame and a bounded outbound
// queue, directly adapted from the teacher's internal/websocket.Connection
// with the JSON-RPC framing replaced by the hello/hello_ok/event grammar.
type Connection struct {
	conn   *websocket.Conn
	hub    *Hub
	sendCh chan []byte

	mu     sync.Mutex
	closed bool
	sub    journal.Subscription
}

func newConnection(conn *websocket.Conn, hub *Hub) *Connection {
	return &Connection{
		conn:   conn,
		hub:    hub,
		sendCh: make(chan []byte, sendQueueSize),
	}
}

// readHello blocks for the connection's mandatory first frame. A
// malformed or missing hello closes the connection with code 1008.
func (c *Connection) readHello() (helloFrame, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return helloFrame{}, fmt.Errorf("read hello: %w", err)
	}

	var hello helloFrame
	if err := json.Unmarshal(data, &hello); err != nil || hello.Type != "hello" {
		return helloFrame{}, fmt.Errorf("malformed hello frame")
	}

	if hello.Subscriptions != nil {
		c.sub = journal.Subscription{
			Channels: hello.Subscriptions.Channels,
			Topics:   hello.Subscriptions.Topics,
		}
	}
	return hello, nil
}

// writeJSON marshals and queues v, per enqueue's backpressure policy.
func (c *Connection) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return c.enqueue(data)
}

// enqueue queues data for WriteLoop. A full queue is a backpressure
// violation: the connection is closed with code 1008 rather than blocking
// or silently dropping the event.
func (c *Connection) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection closed")
	}

	select {
	case c.sendCh <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// readLoop discards further client frames (this is a server-push
// protocol after hello) but keeps the read side alive for ping/pong and
// close detection.
func (c *Connection) readLoop() {
	defer c.Close(websocket.CloseNormalClosure, "")

	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop drains sendCh to the socket and pings on a 54s ticker,
// matching the teacher's keepalive cadence (under the 60s read deadline).
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.sendCh:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the connection with the given close code, unregistering it
// from the hub. Idempotent.
func (c *Connection) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.sendCh)
	c.mu.Unlock()

	c.hub.remove(c)

	deadline := time.Now().Add(5 * time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.conn.Close()
}
