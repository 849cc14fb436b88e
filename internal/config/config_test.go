package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfig_DefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 90*time.Second, cfg.Session.HeartbeatTimeout)
	assert.Equal(t, 30*time.Second, cfg.Session.CleanupInterval)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, "0.0.0.0:8090", cfg.HTTP.Addr())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing section", func(c *Config) { c.Session = nil }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }},
		{"zero read timeout", func(c *Config) { c.HTTP.ReadTimeout = 0 }},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"pong wait not above ping", func(c *Config) { c.WebSocket.PongWait = c.WebSocket.PingInterval }},
		{"zero read limit", func(c *Config) { c.WebSocket.ReadLimit = 0 }},
		{"heartbeat timeout below two heartbeats", func(c *Config) { c.Session.HeartbeatTimeout = 59 * time.Second }},
		{"zero cleanup interval", func(c *Config) { c.Session.CleanupInterval = 0 }},
		{"negative per-user limit", func(c *Config) { c.Session.MaxConnectionsPerUser = -1 }},
		{"audit enabled without path", func(c *Config) { c.Audit.Enabled = true; c.Audit.Path = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}

	cfg := DefaultConfig()
	cfg.Session.HeartbeatTimeout = 60 * time.Second
	cfg.Session.MaxConnectionsPerUser = 0
	assert.NoError(t, cfg.Validate(), "exactly two heartbeats and no limit are allowed")
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("FDP_HTTP_PORT", "9100")
	t.Setenv("FDP_HTTP_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("FDP_SESSION_HEARTBEAT_TIMEOUT", "2m")
	t.Setenv("FDP_SESSION_MAX_CONNECTIONS_PER_USER", "3")
	t.Setenv("FDP_AUDIT_ENABLED", "true")
	t.Setenv("FDP_LOG_LEVEL", "DEBUG")
	t.Setenv("FDP_WEBSOCKET_READ_LIMIT", "4096")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTP.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 2*time.Minute, cfg.Session.HeartbeatTimeout)
	assert.Equal(t, 3, cfg.Session.MaxConnectionsPerUser)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, int64(4096), cfg.WebSocket.ReadLimit)
}

func TestConfig_LoadFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("FDP_SESSION_CLEANUP_INTERVAL", "soon")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FDP_SESSION_CLEANUP_INTERVAL")
}

func TestConfig_LoadFromFileTOML(t *testing.T) {
	path := writeFile(t, "fdp.toml", `
[http]
port = 9200
allowed_origins = ["https://viewer.lab.example"]

[session]
heartbeat_timeout = "75s"
rate_limit_per_minute = 60

[audit]
enabled = true
path = "/var/lib/fdp/audit.db"

[logging]
level = "warn"
development = true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.HTTP.Port)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host, "omitted keys keep defaults")
	assert.Equal(t, []string{"https://viewer.lab.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 75*time.Second, cfg.Session.HeartbeatTimeout)
	assert.Equal(t, 60, cfg.Session.RateLimitPerMinute)
	assert.Equal(t, 30*time.Second, cfg.Session.CleanupInterval)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "/var/lib/fdp/audit.db", cfg.Audit.Path)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestConfig_LoadFromFileTOMLRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "fdp.toml", "[session]\nheartbeat_timout = \"90s\"\n")

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "heartbeat_timout")
}

func TestConfig_LoadFromFileJSON(t *testing.T) {
	path := writeFile(t, "fdp.json", `{
		"websocket": {"ping_interval": "20s", "pong_wait": "50s", "max_connections": 500},
		"session": {"max_connections_per_user": 4}
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 50*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 500, cfg.WebSocket.MaxConnections)
	assert.Equal(t, 4, cfg.Session.MaxConnectionsPerUser)
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, "fdp.yaml", "http: {}"))
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = LoadFromFile(writeFile(t, "fdp.json", `{"http": {"port": "eighty"}}`))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, "fdp.json", `{"session": {"cleanup_interval": "never"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.cleanup_interval")

	_, err = LoadFromFile(writeFile(t, "fdp.json", `{"session": {"heartbeat_timeout": "10s"}}`))
	assert.True(t, errors.Is(err, ErrInvalidConfig), "file values are validated")
}

func TestConfig_PrecedenceFileOverEnvOverDefaults(t *testing.T) {
	t.Setenv("FDP_HTTP_PORT", "9300")
	t.Setenv("FDP_HTTP_HOST", "127.0.0.1")
	path := writeFile(t, "fdp.toml", "[http]\nport = 9400\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9400, cfg.HTTP.Port, "file wins over env")
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host, "env wins over defaults")
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
}

func TestConfig_LoadConfigWithPrecedenceReadsEnvPath(t *testing.T) {
	path := writeFile(t, "fdp.toml", "[session]\nrate_limit_per_minute = 7\n")
	t.Setenv(EnvConfigFile, path)

	cfg, err := LoadConfigWithPrecedence("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Session.RateLimitPerMinute)
}

func TestConfig_LoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
