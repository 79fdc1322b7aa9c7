package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBackoff_DoublesAndCaps(t *testing.T) {
	var b Backoff
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		assert.Equal(t, w*time.Second, b.Next(), "attempt %d", i)
	}
	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestBackoff_Custom(t *testing.T) {
	b := Backoff{Initial: 10 * time.Millisecond, Max: 25 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, b.Next())
	assert.Equal(t, 20*time.Millisecond, b.Next())
	assert.Equal(t, 25*time.Millisecond, b.Next())
	assert.Equal(t, 25*time.Millisecond, b.Next())
}

func TestClient_StreamReconnectsAndDecodes(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "task-updated,booking-updated", r.URL.Query().Get("events"))
		n := attempts.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\",\"timestamp\":\"2026-10-18T09:00:00.000Z\"}\n\n")
		fmt.Fprint(w, ": ping 1760778000000\n\n")
		fmt.Fprintf(w, "data: {\"type\":\"task-updated\",\"data\":{\"taskId\":\"t%d\"},\"timestamp\":\"2026-10-18T09:00:01.000Z\"}\n\n", n)
		fmt.Fprint(w, "data: {not json}\n\n")
		// returning closes the stream and forces a reconnect
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zaptest.NewLogger(t))
	c.Backoff = Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond}
	var connects atomic.Int32
	c.OnConnect = func(time.Time) { connects.Add(1) }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var got []Message
	err := c.Stream(ctx, []string{"task-updated", "booking-updated"}, func(m Message) {
		mu.Lock()
		got = append(got, m)
		if len(got) == 2 {
			cancel()
		}
		mu.Unlock()
	})
	require.ErrorIs(t, err, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, TaskUpdated{TaskID: "t1"}, got[0].Data)
	assert.Equal(t, TaskUpdated{TaskID: "t2"}, got[1].Data)
	assert.GreaterOrEqual(t, attempts.Load(), int32(2))
	assert.GreaterOrEqual(t, connects.Load(), int32(2))
}

func TestClient_StopsOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	err := c.Stream(context.Background(), nil, func(Message) {})
	assert.ErrorIs(t, err, ErrUnauthorized)
}
