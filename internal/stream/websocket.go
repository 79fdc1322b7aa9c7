package stream

import (
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ahmedelshiha/NextAccounting229/pkg/sdk"
)

// WSConn carries the same stream over a WebSocket. Heartbeats are ping
// control frames; a reader goroutine notices when the peer goes away.
type WSConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool

	done     chan struct{}
	doneOnce sync.Once
}

var _ Conn = (*WSConn)(nil)

// NewWSConn starts the reader. pongWait should exceed the heartbeat interval.
func NewWSConn(conn *websocket.Conn, writeTimeout, pongWait time.Duration) *WSConn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	c := &WSConn{
		conn:         conn,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	go c.readLoop(pongWait)
	return c
}

func (c *WSConn) Transport() string { return "websocket" }

// readLoop discards client frames; any read error means the client left.
func (c *WSConn) readLoop(pongWait time.Duration) {
	defer c.markDone()
	c.conn.SetReadLimit(1024)
	if pongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WSConn) Connected(at time.Time) error {
	b, err := ackPayload(at)
	if err != nil {
		return err
	}
	return c.writeMessage(b)
}

func (c *WSConn) Heartbeat(at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	payload := []byte(strconv.FormatInt(at.UnixMilli(), 10))
	if err := c.conn.WriteControl(websocket.PingMessage, payload, time.Now().Add(c.writeTimeout)); err != nil {
		c.markDone()
		return err
	}
	return nil
}

func (c *WSConn) Send(msg sdk.Message) error {
	b, ping, err := encode(msg)
	if err != nil {
		c.markDone()
		return err
	}
	if ping {
		return c.Heartbeat(heartbeatTime(msg))
	}
	return c.writeMessage(b)
}

func (c *WSConn) Done() <-chan struct{} { return c.done }

func (c *WSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.markDone()
	return err
}

func (c *WSConn) writeMessage(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		c.markDone()
		return err
	}
	return nil
}

func (c *WSConn) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}
