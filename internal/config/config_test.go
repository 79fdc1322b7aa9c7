package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", c.HTTP.Bind)
	assert.Equal(t, 8080, c.HTTP.Port)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, 25*time.Second, c.Realtime.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, c.Realtime.WriteTimeout)
	assert.Empty(t, c.Database.Driver)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9090
  cors_origins: ["https://portal.example.com"]
auth:
  hmac_secret: s3cret
  issuer: nextaccounting
realtime:
  heartbeat_interval: 15s
database:
  driver: SQLite
  dsn: file:realtime.db
plugins:
  manifest: /etc/nextaccounting/plugins.json
`), 0o600))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REALTIME_HMAC_SECRET", "")
	t.Setenv("REALTIME_LOG_LEVEL", "")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.HTTP.Port)
	assert.Equal(t, []string{"https://portal.example.com"}, c.HTTP.CORSOrigins)
	assert.Equal(t, "s3cret", c.Auth.HMACSecret)
	assert.Equal(t, 15*time.Second, c.Realtime.HeartbeatInterval)
	assert.Equal(t, "sqlite", c.Database.Driver)
	assert.Equal(t, "file:realtime.db", c.Database.DSN)
	assert.Equal(t, "/etc/nextaccounting/plugins.json", c.Plugins.Manifest)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/app")
	t.Setenv("REALTIME_HMAC_SECRET", "from-env")
	t.Setenv("REALTIME_LOG_LEVEL", "debug")

	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", c.Database.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/app", c.Database.DSN)
	assert.Equal(t, "from-env", c.Auth.HMACSecret)
	assert.Equal(t, "debug", c.Logging.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
