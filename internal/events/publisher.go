package events

import (
	"github.com/ahmedelshiha/NextAccounting229/pkg/sdk"
)

// Publisher is the handle given to mutation handlers. It stamps events and
// hands them to the bus; callers never touch the subscriber table.
type Publisher struct {
	bus *Bus
}

var _ sdk.Publisher = (*Publisher)(nil)

func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) Publish(payload sdk.Payload, userID string) {
	p.bus.Publish(sdk.NewMessage(payload, userID))
}

func (p *Publisher) BookingCreated(b sdk.BookingPayload, userID string) {
	if b.Action == "" {
		b.Action = "created"
	}
	p.Publish(sdk.BookingCreated{BookingPayload: b}, userID)
}

func (p *Publisher) BookingUpdated(b sdk.BookingPayload, userID string) {
	if b.Action == "" {
		b.Action = "updated"
	}
	p.Publish(sdk.BookingUpdated{BookingPayload: b}, userID)
}

func (p *Publisher) BookingDeleted(b sdk.BookingPayload, userID string) {
	if b.Action == "" {
		b.Action = "deleted"
	}
	p.Publish(sdk.BookingDeleted{BookingPayload: b}, userID)
}

func (p *Publisher) TaskUpdated(t sdk.TaskUpdated, userID string) {
	p.Publish(t, userID)
}

func (p *Publisher) ServiceRequestUpdated(sr sdk.ServiceRequestUpdated, userID string) {
	p.Publish(sr, userID)
}

func (p *Publisher) AvailabilityUpdated(a sdk.AvailabilityUpdated, userID string) {
	p.Publish(a, userID)
}

// SystemAlert broadcasts an operator-facing alert with no originator.
func (p *Publisher) SystemAlert(level sdk.AlertLevel, message, code string) {
	p.Publish(sdk.SystemAlert{Level: level, Message: message, Code: code}, "")
}
