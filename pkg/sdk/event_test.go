package sdk

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_Variants(t *testing.T) {
	tests := []struct {
		name string
		typ  EventType
		raw  string
		want Payload
	}{
		{"booking created", BookingCreatedEvent, `{"id":"b1","serviceId":7}`, BookingCreated{BookingPayload{ID: "b1", ServiceID: "7"}}},
		{"booking updated numeric id", BookingUpdatedEvent, `{"id":42}`, BookingUpdated{BookingPayload{ID: "42"}}},
		{"booking deleted", BookingDeletedEvent, `{"id":"b9","action":"deleted"}`, BookingDeleted{BookingPayload{ID: "b9", Action: "deleted"}}},
		{"task", TaskUpdatedEvent, `{"taskId":"t1","action":"completed"}`, TaskUpdated{TaskID: "t1", Action: "completed"}},
		{"service request", ServiceRequestUpdatedEvent, `{"serviceRequestId":"sr1","status":"IN_PROGRESS"}`, ServiceRequestUpdated{ServiceRequestID: "sr1", Status: "IN_PROGRESS"}},
		{"availability", AvailabilityUpdatedEvent, `{"serviceId":3,"date":"2026-10-18"}`, AvailabilityUpdated{ServiceID: "3", Date: "2026-10-18"}},
		{"alert", SystemAlertEvent, `{"level":"warn","message":"db slow"}`, SystemAlert{Level: AlertWarn, Message: "db slow"}},
		{"heartbeat", HeartbeatEvent, `{"at":"x"}`, Heartbeat{At: "x"}},
		{"ready null data", ReadyEvent, `null`, Ready{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePayload(tt.typ, json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.typ, got.EventType())
		})
	}
}

func TestDecodePayload_Rejects(t *testing.T) {
	_, err := DecodePayload("invoice-paid", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = DecodePayload(TaskUpdatedEvent, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = DecodePayload(SystemAlertEvent, json.RawMessage(`{"level":"fatal","message":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = DecodePayload(BookingUpdatedEvent, json.RawMessage(`{"id":true}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestEventTypesAreKnownAndDecodable(t *testing.T) {
	for _, et := range EventTypes {
		assert.True(t, et.Known(), et)
	}
	assert.False(t, EventType("all").Known())
}

func TestMessage_JSONShape(t *testing.T) {
	msg := Message{
		Type:      BookingUpdatedEvent,
		Data:      BookingUpdated{BookingPayload{ID: "b1"}},
		Timestamp: "2026-10-18T09:00:00.000Z",
		UserID:    "u1",
	}
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"booking-updated","data":{"id":"b1"},"timestamp":"2026-10-18T09:00:00.000Z","userId":"u1"}`, string(b))

	var back Message
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, msg, back)
}

func TestNewMessage_StampsTypeAndTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	msg := NewMessage(TaskUpdated{TaskID: "t1"}, "")
	assert.Equal(t, TaskUpdatedEvent, msg.Type)
	ts, err := time.Parse(time.RFC3339Nano, msg.Timestamp)
	require.NoError(t, err)
	assert.True(t, ts.After(before))
	assert.Equal(t, time.UTC, ts.Location())
}
