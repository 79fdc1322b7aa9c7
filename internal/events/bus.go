package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahmedelshiha/NextAccounting229/internal/metrics"
	"github.com/ahmedelshiha/NextAccounting229/pkg/sdk"
)

// Sink is the outbound write handle of one client connection.
type Sink interface {
	Send(msg sdk.Message) error
}

type subscriber struct {
	id     string
	userID string
	filter Filter
	sink   Sink
}

// Bus is a process-local subscriber table. Events published on one process
// are never seen by subscribers connected to another.
type Bus struct {
	log *zap.Logger

	// pubMu serializes Publish so every sink sees one global order.
	pubMu sync.Mutex

	mu   sync.RWMutex
	subs map[string]*subscriber
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		log:  log.With(zap.String("component", "event-bus")),
		subs: make(map[string]*subscriber),
	}
}

// Subscribe registers sink and returns its connection id.
func (b *Bus) Subscribe(sink Sink, userID string, eventTypes []string) string {
	sub := &subscriber{
		id:     uuid.NewString(),
		userID: userID,
		filter: NewFilter(eventTypes),
		sink:   sink,
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	n := len(b.subs)
	b.mu.Unlock()

	metrics.SubscribersActive.Inc()
	b.log.Debug("subscriber registered",
		zap.String("connection_id", sub.id),
		zap.String("user_id", userID),
		zap.Strings("events", sub.filter.Names()),
		zap.Int("total_subscribers", n))
	return sub.id
}

// Cleanup removes the subscriber. Unknown or already removed ids are ignored.
func (b *Bus) Cleanup(connectionID string) {
	b.mu.Lock()
	_, ok := b.subs[connectionID]
	delete(b.subs, connectionID)
	n := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return
	}
	metrics.SubscribersActive.Dec()
	b.log.Debug("subscriber removed",
		zap.String("connection_id", connectionID),
		zap.Int("total_subscribers", n))
}

// Publish delivers msg to every subscriber whose filter matches. A failing
// sink is removed; delivery to the rest continues. Publish never fails.
func (b *Bus) Publish(msg sdk.Message) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	metrics.EventsPublished.WithLabelValues(string(msg.Type)).Inc()

	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.filter.Matches(msg.Type) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if err := b.deliver(s, msg); err != nil {
			metrics.SinkFailures.Inc()
			b.log.Warn("dropping subscriber after failed write",
				zap.String("connection_id", s.id),
				zap.String("user_id", s.userID),
				zap.String("event_type", string(msg.Type)),
				zap.Error(err))
			b.Cleanup(s.id)
			continue
		}
		delivered++
	}
	metrics.Deliveries.Add(float64(delivered))

	b.log.Debug("event published",
		zap.String("event_type", string(msg.Type)),
		zap.Int("subscribers", delivered))
}

func (b *Bus) deliver(s *subscriber, msg sdk.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return s.sink.Send(msg)
}

// Len returns the number of live subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Has reports whether connectionID is registered.
func (b *Bus) Has(connectionID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.subs[connectionID]
	return ok
}
