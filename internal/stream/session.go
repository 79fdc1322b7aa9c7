// Package stream turns one client connection into a bus subscriber and keeps
// it alive until the client goes away.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ahmedelshiha/NextAccounting229/internal/events"
	"github.com/ahmedelshiha/NextAccounting229/internal/metrics"
)

const DefaultHeartbeatInterval = 25 * time.Second

var ErrConnClosed = errors.New("stream: connection closed")

// Conn is a transport-specific client connection.
type Conn interface {
	events.Sink
	// Connected writes the acknowledgment that opens every stream.
	Connected(at time.Time) error
	// Heartbeat writes a keep-alive.
	Heartbeat(at time.Time) error
	// Done is closed once the connection can no longer be written to.
	Done() <-chan struct{}
	// Close releases the connection. Safe to call more than once.
	Close() error
	Transport() string
}

type State int32

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session is one open stream registered on the bus.
type Session struct {
	bus       *events.Bus
	conn      Conn
	userID    string
	types     []string
	heartbeat time.Duration
	log       *zap.Logger

	state     atomic.Int32
	id        atomic.Value
	closeOnce sync.Once
	opened    time.Time
}

type SessionConfig struct {
	UserID     string
	EventTypes []string
	Heartbeat  time.Duration
}

func NewSession(bus *events.Bus, conn Conn, cfg SessionConfig, log *zap.Logger) *Session {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeatInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		bus:       bus,
		conn:      conn,
		userID:    cfg.UserID,
		types:     cfg.EventTypes,
		heartbeat: cfg.Heartbeat,
		log:       log,
	}
	s.id.Store("")
	return s
}

func (s *Session) State() State { return State(s.state.Load()) }

// ConnectionID is empty until the session has subscribed.
func (s *Session) ConnectionID() string { return s.id.Load().(string) }

// Run acknowledges the connection, subscribes, and blocks until ctx is
// cancelled or the connection fails. The session is closed on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	s.opened = time.Now()
	if err := s.conn.Connected(s.opened); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	id := s.bus.Subscribe(s.conn, s.userID, s.types)
	s.id.Store(id)
	if !s.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		// closed while subscribing
		s.bus.Cleanup(id)
		return nil
	}
	metrics.SessionsOpen.WithLabelValues(s.conn.Transport()).Inc()
	log := s.log.With(zap.String("connection_id", id))
	log.Info("realtime session open",
		zap.String("user_id", s.userID),
		zap.String("transport", s.conn.Transport()),
		zap.Strings("events", s.types))

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.conn.Done():
			return nil
		case t := <-ticker.C:
			if err := s.conn.Heartbeat(t); err != nil {
				log.Debug("heartbeat failed", zap.Error(err))
				return nil
			}
			metrics.HeartbeatsSent.Inc()
		}
	}
}

// Close unsubscribes and releases the connection. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		prev := State(s.state.Swap(int32(Closed)))
		if id := s.ConnectionID(); id != "" {
			s.bus.Cleanup(id)
		}
		_ = s.conn.Close()
		if prev == Open {
			metrics.SessionsOpen.WithLabelValues(s.conn.Transport()).Dec()
			metrics.SessionDuration.Observe(time.Since(s.opened).Seconds())
			s.log.Info("realtime session closed",
				zap.String("connection_id", s.ConnectionID()),
				zap.String("user_id", s.userID))
		}
	})
}
