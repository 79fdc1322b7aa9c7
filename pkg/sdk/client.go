package sdk

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultStreamPath = "/api/portal/realtime"

var (
	ErrUnauthorized = errors.New("realtime: unauthorized")
	errStreamClosed = errors.New("realtime: stream closed by server")
)

// Handler receives every decoded message in arrival order.
type Handler func(Message)

// Client consumes the realtime event stream and reconnects with exponential
// backoff. Events published while disconnected are not replayed.
type Client struct {
	BaseURL string
	Token   string
	Path    string
	HTTP    *http.Client
	Log     *zap.Logger
	Backoff Backoff

	// OnConnect, when set, runs after each acknowledged connection.
	OnConnect func(at time.Time)
}

func NewClient(baseURL, token string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Path:    DefaultStreamPath,
		HTTP:    &http.Client{},
		Log:     log,
	}
}

// Stream subscribes to types (nil means all) and blocks until ctx is done or
// the server rejects the session.
func (c *Client) Stream(ctx context.Context, types []string, fn Handler) error {
	for {
		connected, err := c.streamOnce(ctx, types, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		if connected {
			c.Backoff.Reset()
		}
		d := c.Backoff.Next()
		c.Log.Warn("realtime stream lost, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", d))
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) streamURL(types []string) (string, error) {
	u, err := url.Parse(c.BaseURL + c.Path)
	if err != nil {
		return "", err
	}
	if len(types) > 0 {
		q := u.Query()
		q.Set("events", strings.Join(types, ","))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) streamOnce(ctx context.Context, types []string, fn Handler) (bool, error) {
	target, err := c.streamURL(types)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return false, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("realtime: unexpected status %d", resp.StatusCode)
	}

	connected := false
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			if c.dispatch(data.String(), fn) {
				connected = true
			}
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment / heartbeat
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return connected, err
	}
	return connected, errStreamClosed
}

// dispatch decodes one event payload. It reports whether the chunk was the
// connection acknowledgment.
func (c *Client) dispatch(raw string, fn Handler) bool {
	var head struct {
		Type      string `json:"type"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(raw), &head); err != nil {
		c.Log.Debug("realtime: skipping malformed chunk", zap.Error(err))
		return false
	}
	if head.Type == "connected" {
		if c.OnConnect != nil {
			at, _ := time.Parse(time.RFC3339Nano, head.Timestamp)
			c.OnConnect(at)
		}
		return true
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		c.Log.Debug("realtime: skipping undecodable event",
			zap.String("type", head.Type),
			zap.Error(err))
		return false
	}
	fn(msg)
	return false
}
