package sdk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType names one kind of realtime notification.
type EventType string

const (
	ServiceRequestUpdatedEvent EventType = "service-request-updated"
	TaskUpdatedEvent           EventType = "task-updated"
	AvailabilityUpdatedEvent   EventType = "availability-updated"
	BookingUpdatedEvent        EventType = "booking-updated"
	BookingCreatedEvent        EventType = "booking-created"
	BookingDeletedEvent        EventType = "booking-deleted"
	SystemAlertEvent           EventType = "system_alert"
	HeartbeatEvent             EventType = "heartbeat"
	ReadyEvent                 EventType = "ready"
)

// AllEvents is the filter wildcard.
const AllEvents = "all"

// EventTypes lists every known event type in declaration order.
var EventTypes = []EventType{
	ServiceRequestUpdatedEvent,
	TaskUpdatedEvent,
	AvailabilityUpdatedEvent,
	BookingUpdatedEvent,
	BookingCreatedEvent,
	BookingDeletedEvent,
	SystemAlertEvent,
	HeartbeatEvent,
	ReadyEvent,
}

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrInvalidPayload   = errors.New("invalid event payload")
)

// Known reports whether t belongs to the enumeration.
func (t EventType) Known() bool {
	for _, k := range EventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Payload is the closed set of event payloads. Only this package declares
// variants; consumers switch over them exhaustively.
type Payload interface {
	EventType() EventType
	payload()
}

// ID carries identifiers that upstream handlers emit either as strings or
// as JSON numbers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

type ServiceRequestUpdated struct {
	ServiceRequestID ID     `json:"serviceRequestId"`
	Action           string `json:"action,omitempty"` // created|updated|deleted|rescheduled|task-created
	Status           string `json:"status,omitempty"`
	TaskID           ID     `json:"taskId,omitempty"`
}

type TaskUpdated struct {
	TaskID           ID     `json:"taskId"`
	ServiceRequestID ID     `json:"serviceRequestId,omitempty"`
	Action           string `json:"action,omitempty"` // created|updated|deleted|completed
}

type AvailabilityUpdated struct {
	ServiceID    ID     `json:"serviceId"`
	TeamMemberID ID     `json:"teamMemberId,omitempty"`
	Date         string `json:"date,omitempty"`
	Action       string `json:"action,omitempty"`
}

// BookingPayload is shared by the three booking events.
type BookingPayload struct {
	ID        ID     `json:"id"`
	ServiceID ID     `json:"serviceId,omitempty"`
	Action    string `json:"action,omitempty"`
}

type BookingCreated struct{ BookingPayload }
type BookingUpdated struct{ BookingPayload }
type BookingDeleted struct{ BookingPayload }

type AlertLevel string

const (
	AlertInfo  AlertLevel = "info"
	AlertWarn  AlertLevel = "warn"
	AlertError AlertLevel = "error"
)

type SystemAlert struct {
	Level   AlertLevel `json:"level"`
	Message string     `json:"message"`
	Code    string     `json:"code,omitempty"`
}

type Heartbeat struct {
	At string `json:"at"`
}

type Ready struct{}

func (ServiceRequestUpdated) EventType() EventType { return ServiceRequestUpdatedEvent }
func (TaskUpdated) EventType() EventType           { return TaskUpdatedEvent }
func (AvailabilityUpdated) EventType() EventType   { return AvailabilityUpdatedEvent }
func (BookingCreated) EventType() EventType        { return BookingCreatedEvent }
func (BookingUpdated) EventType() EventType        { return BookingUpdatedEvent }
func (BookingDeleted) EventType() EventType        { return BookingDeletedEvent }
func (SystemAlert) EventType() EventType           { return SystemAlertEvent }
func (Heartbeat) EventType() EventType             { return HeartbeatEvent }
func (Ready) EventType() EventType                 { return ReadyEvent }

func (ServiceRequestUpdated) payload() {}
func (TaskUpdated) payload()           {}
func (AvailabilityUpdated) payload()   {}
func (BookingCreated) payload()        {}
func (BookingUpdated) payload()        {}
func (BookingDeleted) payload()        {}
func (SystemAlert) payload()           {}
func (Heartbeat) payload()             {}
func (Ready) payload()                 {}

// Message is the unit delivered to subscribers. It is never mutated after
// construction.
type Message struct {
	Type      EventType `json:"type"`
	Data      Payload   `json:"data"`
	Timestamp string    `json:"timestamp"`
	UserID    string    `json:"userId,omitempty"`
}

// TimeLayout is ISO-8601 with millisecond precision, as browsers emit it.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t in UTC with TimeLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NewMessage stamps p with the current time.
func NewMessage(p Payload, userID string) Message {
	return Message{
		Type:      p.EventType(),
		Data:      p,
		Timestamp: Timestamp(time.Now()),
		UserID:    userID,
	}
}

// UnmarshalJSON decodes the data field into the variant matching type.
func (m *Message) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type      EventType       `json:"type"`
		Data      json.RawMessage `json:"data"`
		Timestamp string          `json:"timestamp"`
		UserID    string          `json:"userId"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p, err := DecodePayload(raw.Type, raw.Data)
	if err != nil {
		return err
	}
	*m = Message{Type: raw.Type, Data: p, Timestamp: raw.Timestamp, UserID: raw.UserID}
	return nil
}

// DecodePayload maps an event type and its raw JSON data onto the matching
// variant and checks required fields.
func DecodePayload(t EventType, raw json.RawMessage) (Payload, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	switch t {
	case ServiceRequestUpdatedEvent:
		var p ServiceRequestUpdated
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		if p.ServiceRequestID == "" {
			return nil, fmt.Errorf("%w: serviceRequestId is required", ErrInvalidPayload)
		}
		return p, nil
	case TaskUpdatedEvent:
		var p TaskUpdated
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		if p.TaskID == "" {
			return nil, fmt.Errorf("%w: taskId is required", ErrInvalidPayload)
		}
		return p, nil
	case AvailabilityUpdatedEvent:
		var p AvailabilityUpdated
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		if p.ServiceID == "" {
			return nil, fmt.Errorf("%w: serviceId is required", ErrInvalidPayload)
		}
		return p, nil
	case BookingCreatedEvent, BookingUpdatedEvent, BookingDeletedEvent:
		var bp BookingPayload
		if err := decode(raw, &bp); err != nil {
			return nil, err
		}
		if bp.ID == "" {
			return nil, fmt.Errorf("%w: id is required", ErrInvalidPayload)
		}
		switch t {
		case BookingCreatedEvent:
			return BookingCreated{bp}, nil
		case BookingUpdatedEvent:
			return BookingUpdated{bp}, nil
		default:
			return BookingDeleted{bp}, nil
		}
	case SystemAlertEvent:
		var p SystemAlert
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		switch p.Level {
		case AlertInfo, AlertWarn, AlertError:
		default:
			return nil, fmt.Errorf("%w: level must be info, warn or error", ErrInvalidPayload)
		}
		if strings.TrimSpace(p.Message) == "" {
			return nil, fmt.Errorf("%w: message is required", ErrInvalidPayload)
		}
		return p, nil
	case HeartbeatEvent:
		var p Heartbeat
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case ReadyEvent:
		return Ready{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
