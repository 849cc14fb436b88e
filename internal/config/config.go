package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EnvConfigFile names the environment variable holding the config file path.
const EnvConfigFile = "FDP_CONFIG_FILE"

// ClientHeartbeatInterval is how often viewer windows send heartbeats.
// HeartbeatTimeout must cover at least two of them.
const ClientHeartbeatInterval = 30 * time.Second

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the awareness service's runtime configuration.
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Session   *SessionConfig   `json:"session"`
	Audit     *AuditConfig     `json:"audit"`
	Logging   *LoggingConfig   `json:"logging"`
}

type HTTPConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

// Addr returns host:port for the listener.
func (h *HTTPConfig) Addr() string {
	return h.Host + ":" + strconv.Itoa(h.Port)
}

type WebSocketConfig struct {
	PingInterval     time.Duration `json:"ping_interval"`
	PongWait         time.Duration `json:"pong_wait"`
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	ReadLimit        int64         `json:"read_limit"`
	MaxConnections   int           `json:"max_connections"` // 0 = unlimited
}

// SessionConfig holds the protocol timing and limits.
type SessionConfig struct {
	HeartbeatTimeout      time.Duration `json:"heartbeat_timeout"`
	CleanupInterval       time.Duration `json:"cleanup_interval"`
	MaxConnectionsPerUser int           `json:"max_connections_per_user"` // 0 = unlimited
	RateLimitPerMinute    int           `json:"rate_limit_per_minute"`    // 0 = unlimited
}

type AuditConfig struct {
	Enabled   bool          `json:"enabled"`
	Path      string        `json:"path"`
	Timeout   time.Duration `json:"timeout"`
	QueueSize int           `json:"queue_size"`
}

type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// DefaultConfig returns a configuration that runs out of the box on a
// workstation: all interfaces on 8090, audit log off.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:     30 * time.Second,
			PongWait:         75 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			ReadLimit:        64 * 1024,
		},
		Session: &SessionConfig{
			HeartbeatTimeout:      90 * time.Second,
			CleanupInterval:       30 * time.Second,
			MaxConnectionsPerUser: 8,
			RateLimitPerMinute:    120,
		},
		Audit: &AuditConfig{
			Enabled:   false,
			Path:      "./fdp-audit.db",
			Timeout:   5 * time.Second,
			QueueSize: 1024,
		},
		Logging: &LoggingConfig{
			Level: "info",
		},
	}
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}

// Validate rejects configurations the service cannot run safely with.
func (c *Config) Validate() error {
	if c.HTTP == nil || c.WebSocket == nil || c.Session == nil || c.Audit == nil || c.Logging == nil {
		return invalid("all configuration sections are required")
	}

	if c.HTTP.Host == "" {
		return invalid("http host cannot be empty")
	}
	// Port 0 binds an ephemeral port.
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return invalid("http port must be between 0 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return invalid("http timeouts must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return invalid("websocket ping interval must be positive")
	}
	if c.WebSocket.PongWait <= c.WebSocket.PingInterval {
		return invalid("websocket pong wait (%s) must exceed ping interval (%s)", c.WebSocket.PongWait, c.WebSocket.PingInterval)
	}
	if c.WebSocket.HandshakeTimeout <= 0 {
		return invalid("websocket handshake timeout must be positive")
	}
	if c.WebSocket.ReadLimit <= 0 {
		return invalid("websocket read limit must be positive")
	}
	if c.WebSocket.MaxConnections < 0 {
		return invalid("websocket max connections cannot be negative")
	}

	if c.Session.HeartbeatTimeout < 2*ClientHeartbeatInterval {
		return invalid("session heartbeat timeout must be at least %s", 2*ClientHeartbeatInterval)
	}
	if c.Session.CleanupInterval <= 0 {
		return invalid("session cleanup interval must be positive")
	}
	if c.Session.MaxConnectionsPerUser < 0 {
		return invalid("session max connections per user cannot be negative")
	}
	if c.Session.RateLimitPerMinute < 0 {
		return invalid("session rate limit cannot be negative")
	}

	if c.Audit.Enabled {
		if c.Audit.Path == "" {
			return invalid("audit path cannot be empty when audit is enabled")
		}
		if c.Audit.Timeout <= 0 {
			return invalid("audit timeout must be positive")
		}
		if c.Audit.QueueSize <= 0 {
			return invalid("audit queue size must be positive")
		}
	}

	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		return invalid("unknown log level %q", c.Logging.Level)
	}
	return nil
}

type envBinding struct {
	key   string
	apply func(c *Config, value string) error
}

var envBindings = []envBinding{
	{"FDP_HTTP_HOST", func(c *Config, v string) error { c.HTTP.Host = v; return nil }},
	{"FDP_HTTP_PORT", func(c *Config, v string) error { return setInt(&c.HTTP.Port, v) }},
	{"FDP_HTTP_READ_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.HTTP.ReadTimeout, v) }},
	{"FDP_HTTP_WRITE_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.HTTP.WriteTimeout, v) }},
	{"FDP_HTTP_SHUTDOWN_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.HTTP.ShutdownTimeout, v) }},
	{"FDP_HTTP_ALLOWED_ORIGINS", func(c *Config, v string) error { c.HTTP.AllowedOrigins = splitList(v); return nil }},
	{"FDP_WEBSOCKET_PING_INTERVAL", func(c *Config, v string) error { return setDuration(&c.WebSocket.PingInterval, v) }},
	{"FDP_WEBSOCKET_PONG_WAIT", func(c *Config, v string) error { return setDuration(&c.WebSocket.PongWait, v) }},
	{"FDP_WEBSOCKET_HANDSHAKE_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.WebSocket.HandshakeTimeout, v) }},
	{"FDP_WEBSOCKET_READ_LIMIT", func(c *Config, v string) error { return setInt64(&c.WebSocket.ReadLimit, v) }},
	{"FDP_WEBSOCKET_MAX_CONNECTIONS", func(c *Config, v string) error { return setInt(&c.WebSocket.MaxConnections, v) }},
	{"FDP_SESSION_HEARTBEAT_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Session.HeartbeatTimeout, v) }},
	{"FDP_SESSION_CLEANUP_INTERVAL", func(c *Config, v string) error { return setDuration(&c.Session.CleanupInterval, v) }},
	{"FDP_SESSION_MAX_CONNECTIONS_PER_USER", func(c *Config, v string) error { return setInt(&c.Session.MaxConnectionsPerUser, v) }},
	{"FDP_SESSION_RATE_LIMIT_PER_MINUTE", func(c *Config, v string) error { return setInt(&c.Session.RateLimitPerMinute, v) }},
	{"FDP_AUDIT_ENABLED", func(c *Config, v string) error { return setBool(&c.Audit.Enabled, v) }},
	{"FDP_AUDIT_PATH", func(c *Config, v string) error { c.Audit.Path = v; return nil }},
	{"FDP_AUDIT_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Audit.Timeout, v) }},
	{"FDP_AUDIT_QUEUE_SIZE", func(c *Config, v string) error { return setInt(&c.Audit.QueueSize, v) }},
	{"FDP_LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = strings.ToLower(v); return nil }},
	{"FDP_LOG_DEVELOPMENT", func(c *Config, v string) error { return setBool(&c.Logging.Development, v) }},
}

// LoadFromEnv returns the defaults overlaid with FDP_* environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		value, ok := lookup(b.key)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if err := b.apply(cfg, strings.TrimSpace(value)); err != nil {
			return errors.Wrapf(err, "parse %s", b.key)
		}
	}
	return nil
}

// fileConfig is the on-disk shape. Durations are strings ("90s") and every
// field is a pointer so an omitted key leaves the lower layer untouched.
type fileConfig struct {
	HTTP *struct {
		Host            *string  `json:"host" toml:"host"`
		Port            *int     `json:"port" toml:"port"`
		ReadTimeout     *string  `json:"read_timeout" toml:"read_timeout"`
		WriteTimeout    *string  `json:"write_timeout" toml:"write_timeout"`
		ShutdownTimeout *string  `json:"shutdown_timeout" toml:"shutdown_timeout"`
		AllowedOrigins  []string `json:"allowed_origins" toml:"allowed_origins"`
	} `json:"http" toml:"http"`
	WebSocket *struct {
		PingInterval     *string `json:"ping_interval" toml:"ping_interval"`
		PongWait         *string `json:"pong_wait" toml:"pong_wait"`
		HandshakeTimeout *string `json:"handshake_timeout" toml:"handshake_timeout"`
		ReadLimit        *int64  `json:"read_limit" toml:"read_limit"`
		MaxConnections   *int    `json:"max_connections" toml:"max_connections"`
	} `json:"websocket" toml:"websocket"`
	Session *struct {
		HeartbeatTimeout      *string `json:"heartbeat_timeout" toml:"heartbeat_timeout"`
		CleanupInterval       *string `json:"cleanup_interval" toml:"cleanup_interval"`
		MaxConnectionsPerUser *int    `json:"max_connections_per_user" toml:"max_connections_per_user"`
		RateLimitPerMinute    *int    `json:"rate_limit_per_minute" toml:"rate_limit_per_minute"`
	} `json:"session" toml:"session"`
	Audit *struct {
		Enabled   *bool   `json:"enabled" toml:"enabled"`
		Path      *string `json:"path" toml:"path"`
		Timeout   *string `json:"timeout" toml:"timeout"`
		QueueSize *int    `json:"queue_size" toml:"queue_size"`
	} `json:"audit" toml:"audit"`
	Logging *struct {
		Level       *string `json:"level" toml:"level"`
		Development *bool   `json:"development" toml:"development"`
	} `json:"logging" toml:"logging"`
}

// LoadFromFile returns the defaults overlaid with a .toml or .json file.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config file %s", path)
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return errors.Wrapf(err, "parse config file %s", path)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return errors.Wrapf(ErrInvalidConfig, "unknown key %q in %s", undecoded[0].String(), path)
		}
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read config file %s", path)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return errors.Wrapf(err, "parse config file %s", path)
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unsupported config file extension %q", filepath.Ext(path))
	}

	return raw.overlay(cfg)
}

func (f *fileConfig) overlay(cfg *Config) error {
	if h := f.HTTP; h != nil {
		setStringPtr(&cfg.HTTP.Host, h.Host)
		setIntPtr(&cfg.HTTP.Port, h.Port)
		if h.AllowedOrigins != nil {
			cfg.HTTP.AllowedOrigins = h.AllowedOrigins
		}
		if err := setDurations(map[string]durationField{
			"http.read_timeout":     {&cfg.HTTP.ReadTimeout, h.ReadTimeout},
			"http.write_timeout":    {&cfg.HTTP.WriteTimeout, h.WriteTimeout},
			"http.shutdown_timeout": {&cfg.HTTP.ShutdownTimeout, h.ShutdownTimeout},
		}); err != nil {
			return err
		}
	}

	if w := f.WebSocket; w != nil {
		if w.ReadLimit != nil {
			cfg.WebSocket.ReadLimit = *w.ReadLimit
		}
		setIntPtr(&cfg.WebSocket.MaxConnections, w.MaxConnections)
		if err := setDurations(map[string]durationField{
			"websocket.ping_interval":     {&cfg.WebSocket.PingInterval, w.PingInterval},
			"websocket.pong_wait":         {&cfg.WebSocket.PongWait, w.PongWait},
			"websocket.handshake_timeout": {&cfg.WebSocket.HandshakeTimeout, w.HandshakeTimeout},
		}); err != nil {
			return err
		}
	}

	if s := f.Session; s != nil {
		setIntPtr(&cfg.Session.MaxConnectionsPerUser, s.MaxConnectionsPerUser)
		setIntPtr(&cfg.Session.RateLimitPerMinute, s.RateLimitPerMinute)
		if err := setDurations(map[string]durationField{
			"session.heartbeat_timeout": {&cfg.Session.HeartbeatTimeout, s.HeartbeatTimeout},
			"session.cleanup_interval":  {&cfg.Session.CleanupInterval, s.CleanupInterval},
		}); err != nil {
			return err
		}
	}

	if a := f.Audit; a != nil {
		if a.Enabled != nil {
			cfg.Audit.Enabled = *a.Enabled
		}
		setStringPtr(&cfg.Audit.Path, a.Path)
		setIntPtr(&cfg.Audit.QueueSize, a.QueueSize)
		if err := setDurations(map[string]durationField{
			"audit.timeout": {&cfg.Audit.Timeout, a.Timeout},
		}); err != nil {
			return err
		}
	}

	if l := f.Logging; l != nil {
		if l.Level != nil {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*l.Level))
		}
		if l.Development != nil {
			cfg.Logging.Development = *l.Development
		}
	}
	return nil
}

// Load applies defaults, then FDP_* environment variables, then the file
// at path (if non-empty), and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigWithPrecedence loads using the file named by FDP_CONFIG_FILE
// when path is empty.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	return Load(path)
}

type durationField struct {
	dst *time.Duration
	src *string
}

func setDurations(fields map[string]durationField) error {
	for name, f := range fields {
		if f.src == nil {
			continue
		}
		if err := setDuration(f.dst, *f.src); err != nil {
			return errors.Wrapf(err, "parse %s", name)
		}
	}
	return nil
}

func setDuration(dst *time.Duration, value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, value string) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setBool(dst *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setStringPtr(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setIntPtr(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
