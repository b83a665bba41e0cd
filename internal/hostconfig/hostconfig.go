// ABOUTME: Configuration loading for the sten-widget terminal host
// ABOUTME: Loads TOML config with environment variable expansion and duration parsing

package hostconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when a field is left empty.
const (
	DefaultBackendURL  = "http://localhost:8080"
	DefaultTimeout     = 30 * time.Second
	DefaultFocusDelay  = 100 * time.Millisecond
	DefaultNoticeTTL   = 3 * time.Second
	DefaultIdentityDir = "sten"
)

type Config struct {
	Backend  BackendConfig  `toml:"backend"`
	Widget   WidgetConfig   `toml:"widget"`
	Identity IdentityConfig `toml:"identity"`
	UI       UIConfig       `toml:"ui"`
	Logging  LoggingConfig  `toml:"logging"`
}

type BackendConfig struct {
	URL     string        `toml:"url"`
	Timeout time.Duration `toml:"-"`

	TimeoutRaw string `toml:"timeout"`
}

// WidgetConfig names the widget directly or via a host page carrying the
// mount directive. ID wins when both are set.
type WidgetConfig struct {
	ID       string `toml:"id"`
	PagePath string `toml:"page"`
}

type IdentityConfig struct {
	// DBPath is the SQLite file remembering guest ids; empty keeps them in memory.
	DBPath string `toml:"db_path"`
}

type UIConfig struct {
	FocusDelay time.Duration `toml:"-"`
	NoticeTTL  time.Duration `toml:"-"`

	FocusDelayRaw string `toml:"focus_delay"`
	NoticeTTLRaw  string `toml:"notice_ttl"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes TOML text, applies defaults and validates.
func Parse(text string) (*Config, error) {
	expanded := expandEnvVars(text)

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Default returns a config pointing at a local gateway.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultIdentityPath returns ~/.config/sten/identity.db, or "" when the
// user config dir is unknown.
func DefaultIdentityPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, DefaultIdentityDir, "identity.db")
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

func (c *Config) parseDurations() error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"backend.timeout", c.Backend.TimeoutRaw, &c.Backend.Timeout},
		{"ui.focus_delay", c.UI.FocusDelayRaw, &c.UI.FocusDelay},
		{"ui.notice_ttl", c.UI.NoticeTTLRaw, &c.UI.NoticeTTL},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Backend.URL == "" {
		c.Backend.URL = DefaultBackendURL
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultTimeout
	}
	if c.UI.FocusDelay == 0 {
		c.UI.FocusDelay = DefaultFocusDelay
	}
	if c.UI.NoticeTTL == 0 {
		c.UI.NoticeTTL = DefaultNoticeTTL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "warn"
	}
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.url must use http or https scheme")
	}
	if c.Backend.Timeout < 0 || c.UI.FocusDelay < 0 || c.UI.NoticeTTL < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}
