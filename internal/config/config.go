// ABOUTME: Configuration loading and parsing for sten-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultHTTPAddr     = "localhost:8080"
	DefaultAgentTimeout = 30 * time.Second
	DefaultReplayTTL    = 10 * time.Minute
	DefaultReplaySize   = 10_000
	DefaultSendRPS      = 5
	DefaultSendBurst    = 10
	DefaultLogLevel     = "info"
)

// Config represents the complete sten-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Agent    AgentConfig    `yaml:"agent"`
	Limits   LimitsConfig   `yaml:"limits"`
	Replay   ReplayConfig   `yaml:"replay"`
	CORS     CORSConfig     `yaml:"cors"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AgentConfig selects the reply generator.
// An empty URL uses the built-in canned responder.
type AgentConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// LimitsConfig holds per-guest send rate limits
type LimitsConfig struct {
	SendRPS   float64 `yaml:"send_rps"`
	SendBurst int     `yaml:"send_burst"`
}

// ReplayConfig controls how long sends are remembered by Idempotency-Key
type ReplayConfig struct {
	TTL     time.Duration `yaml:"-"`
	MaxSize int           `yaml:"max_size"`

	TTLRaw string `yaml:"ttl"`
}

// CORSConfig lists origins allowed to call the widget endpoints.
// An empty list allows any origin, since widgets embed on arbitrary sites.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration for local development backed by path.
func Default(dbPath string) *Config {
	cfg := &Config{Database: DatabaseConfig{Path: dbPath}}
	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return cfg
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyEnv lets STEN_DB_PATH and STEN_HTTP_ADDR override the file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("STEN_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("STEN_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
}

// ApplyDefaults fills zero values with the package defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Agent.Timeout == 0 {
		c.Agent.Timeout = DefaultAgentTimeout
	}
	if c.Limits.SendRPS == 0 {
		c.Limits.SendRPS = DefaultSendRPS
	}
	if c.Limits.SendBurst == 0 {
		c.Limits.SendBurst = DefaultSendBurst
	}
	if c.Replay.TTL == 0 {
		c.Replay.TTL = DefaultReplayTTL
	}
	if c.Replay.MaxSize == 0 {
		c.Replay.MaxSize = DefaultReplaySize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Agent.URL != "" && !strings.HasPrefix(c.Agent.URL, "http://") && !strings.HasPrefix(c.Agent.URL, "https://") {
		return fmt.Errorf("agent.url must be an http(s) URL, got %q", c.Agent.URL)
	}

	if c.Limits.SendRPS < 0 {
		return fmt.Errorf("limits.send_rps must not be negative")
	}
	if c.Limits.SendBurst < 0 {
		return fmt.Errorf("limits.send_burst must not be negative")
	}
	if c.Replay.MaxSize < 0 {
		return fmt.Errorf("replay.max_size must not be negative")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agent.TimeoutRaw != "" {
		cfg.Agent.Timeout, err = time.ParseDuration(cfg.Agent.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing agent.timeout %q: %w", cfg.Agent.TimeoutRaw, err)
		}
	}

	if cfg.Replay.TTLRaw != "" {
		cfg.Replay.TTL, err = time.ParseDuration(cfg.Replay.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing replay.ttl %q: %w", cfg.Replay.TTLRaw, err)
		}
	}

	return nil
}
