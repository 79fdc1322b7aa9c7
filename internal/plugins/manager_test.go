package plugins

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ahmedelshiha/NextAccounting229/pkg/sdk"
)

type recordingPublisher struct {
	mu   sync.Mutex
	sent []sdk.Payload
}

func (r *recordingPublisher) Publish(p sdk.Payload, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, p)
}

// bookingSync publishes one booking-created event on Init.
type bookingSync struct {
	initErr error
	stopped bool
	region  any
}

func (b *bookingSync) Init(ctx sdk.Context) error {
	if b.initErr != nil {
		return b.initErr
	}
	b.region = ctx.Config()["region"]
	ctx.Publisher().Publish(sdk.BookingCreated{BookingPayload: sdk.BookingPayload{ID: "b1"}}, "")
	return nil
}

func (b *bookingSync) Stop() error {
	b.stopped = true
	return nil
}

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plugins.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestManager_LoadManifest(t *testing.T) {
	pub := &recordingPublisher{}
	good := &bookingSync{}
	m := NewManager(zaptest.NewLogger(t), pub).WithOpener(func(e Entry) (sdk.Plugin, error) {
		switch e.Name {
		case "booking-sync":
			return good, nil
		case "broken":
			return &bookingSync{initErr: errors.New("boom")}, nil
		default:
			return nil, errors.New("not found")
		}
	})

	path := writeManifest(t, `{"plugins":[
		{"name":"booking-sync","version":"1.0.0","path":"sync.so","config":{"region":"eu"}},
		{"name":"broken","path":"broken.so"},
		{"name":"missing","path":"missing.so"}
	]}`)
	require.NoError(t, m.LoadManifest(path))

	assert.True(t, m.Loaded("booking-sync"))
	assert.False(t, m.Loaded("broken"))
	assert.False(t, m.Loaded("missing"))
	assert.Equal(t, "eu", good.region)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, sdk.BookingCreatedEvent, pub.sent[0].EventType())

	// reload does not init twice
	m.Reload(path)
	assert.Len(t, pub.sent, 1)

	m.Shutdown()
	assert.True(t, good.stopped)
	assert.False(t, m.Loaded("booking-sync"))
}

func TestManager_MissingManifest(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), &recordingPublisher{})
	assert.NoError(t, m.LoadManifest(""))
	assert.NoError(t, m.LoadManifest(filepath.Join(t.TempDir(), "absent.json")))
	assert.Error(t, m.LoadManifest(writeManifest(t, "{")))
}

func TestManager_Register(t *testing.T) {
	pub := &recordingPublisher{}
	m := NewManager(zaptest.NewLogger(t), pub)
	require.NoError(t, m.Register("inline", "dev", &bookingSync{}, nil))
	assert.Error(t, m.Register("inline", "dev", &bookingSync{}, nil))
	assert.Len(t, pub.sent, 1)
}

func TestOpenShared_BadPath(t *testing.T) {
	_, err := openShared(Entry{Path: filepath.Join(t.TempDir(), "nope.so")})
	assert.Error(t, err)
}
