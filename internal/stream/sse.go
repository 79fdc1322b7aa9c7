package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ahmedelshiha/NextAccounting229/pkg/sdk"
)

const DefaultWriteTimeout = 10 * time.Second

// SetSSEHeaders prepares w for an event stream.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Frame encodes msg as an SSE chunk. Heartbeats become comment lines so
// standard parsers ignore them.
func Frame(msg sdk.Message) ([]byte, error) {
	b, ping, err := encode(msg)
	if err != nil {
		return nil, err
	}
	if ping {
		return pingFrame(heartbeatTime(msg)), nil
	}
	return dataFrame(b), nil
}

// encode is the single place that knows every event type. It returns the
// JSON body, or ping=true for heartbeats which transports render natively.
func encode(msg sdk.Message) (b []byte, ping bool, err error) {
	switch msg.Type {
	case sdk.HeartbeatEvent:
		return nil, true, nil
	case sdk.ServiceRequestUpdatedEvent,
		sdk.TaskUpdatedEvent,
		sdk.AvailabilityUpdatedEvent,
		sdk.BookingUpdatedEvent,
		sdk.BookingCreatedEvent,
		sdk.BookingDeletedEvent,
		sdk.SystemAlertEvent,
		sdk.ReadyEvent:
		if msg.Data == nil || msg.Data.EventType() != msg.Type {
			return nil, false, fmt.Errorf("%w: %s message carries %T", sdk.ErrInvalidPayload, msg.Type, msg.Data)
		}
		b, err = json.Marshal(msg)
		return b, false, err
	default:
		return nil, false, fmt.Errorf("%w: %q", sdk.ErrUnknownEventType, msg.Type)
	}
}

func heartbeatTime(msg sdk.Message) time.Time {
	at, err := time.Parse(time.RFC3339Nano, msg.Timestamp)
	if err != nil {
		return time.Now()
	}
	return at
}

type connectedAck struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func ackPayload(at time.Time) ([]byte, error) {
	return json.Marshal(connectedAck{Type: "connected", Timestamp: sdk.Timestamp(at)})
}

func dataFrame(b []byte) []byte {
	out := make([]byte, 0, len(b)+8)
	out = append(out, "data: "...)
	out = append(out, b...)
	return append(out, "\n\n"...)
}

func pingFrame(at time.Time) []byte {
	return []byte(": ping " + strconv.FormatInt(at.UnixMilli(), 10) + "\n\n")
}

// SSEConn writes frames to one HTTP response. Writes are serialized and
// bounded by a per-write deadline.
type SSEConn struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool

	done     chan struct{}
	doneOnce sync.Once
}

var _ Conn = (*SSEConn)(nil)

func NewSSEConn(w http.ResponseWriter, writeTimeout time.Duration) *SSEConn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &SSEConn{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

func (c *SSEConn) Transport() string { return "sse" }

func (c *SSEConn) Connected(at time.Time) error {
	b, err := ackPayload(at)
	if err != nil {
		return err
	}
	return c.write(dataFrame(b))
}

func (c *SSEConn) Heartbeat(at time.Time) error {
	return c.write(pingFrame(at))
}

func (c *SSEConn) Send(msg sdk.Message) error {
	b, err := Frame(msg)
	if err != nil {
		// the bus drops this subscriber on error; end the session with it
		c.markDone()
		return err
	}
	return c.write(b)
}

func (c *SSEConn) Done() <-chan struct{} { return c.done }

func (c *SSEConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.rc.SetWriteDeadline(time.Time{})
	c.markDone()
	return nil
}

func (c *SSEConn) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if err := c.rc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		c.markDone()
		return err
	}
	if _, err := c.w.Write(b); err != nil {
		c.markDone()
		return err
	}
	if err := c.rc.Flush(); err != nil {
		c.markDone()
		return err
	}
	return nil
}

func (c *SSEConn) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}
