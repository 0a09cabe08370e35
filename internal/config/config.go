package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoSources is returned when a configuration lists no source files.
var ErrNoSources = errors.New("no source files configured")

// Config represents the main configuration structure
type Config struct {
	// SrcURL is the root that relative source paths are resolved against
	SrcURL string `json:"srcUrl" toml:"srcUrl" yaml:"srcUrl"`
	// MapURL is the root for map files; defaults to SrcURL
	MapURL string `json:"mapUrl,omitempty" toml:"mapUrl" yaml:"mapUrl"`
	// HideLogs drops client log messages posted to /log
	HideLogs bool     `json:"hideLogs,omitempty" toml:"hideLogs" yaml:"hideLogs"`
	Src      []Source `json:"src" toml:"src" yaml:"src"`

	Server  ServerConfig  `json:"server" toml:"server" yaml:"server"`
	Logging LoggingConfig `json:"logging" toml:"logging" yaml:"logging"`
	Loader  LoaderConfig  `json:"loader" toml:"loader" yaml:"loader"`
}

// Source is one generated file whose stack frames should be deobfuscated.
type Source struct {
	Src string `json:"src" toml:"src" yaml:"src"`
	// Inline marks a file that embeds its map as a base64 data URL
	Inline bool `json:"inline,omitempty" toml:"inline" yaml:"inline"`
	// Map overrides the external map path; defaults to Src + ".map"
	Map string `json:"map,omitempty" toml:"map" yaml:"map"`
}

// MapFile returns the external map path relative to the map root.
func (s Source) MapFile() string {
	if s.Map != "" {
		return s.Map
	}
	return s.Src + ".map"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string   `json:"addr" toml:"addr" yaml:"addr"`
	ReadTimeout     Duration `json:"readTimeout" toml:"readTimeout" yaml:"readTimeout"`
	WriteTimeout    Duration `json:"writeTimeout" toml:"writeTimeout" yaml:"writeTimeout"`
	ShutdownTimeout Duration `json:"shutdownTimeout" toml:"shutdownTimeout" yaml:"shutdownTimeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string `json:"level" toml:"level" yaml:"level"`
	// Format is the log format: text or json
	Format string `json:"format" toml:"format" yaml:"format"`
}

// LoaderConfig holds source map loader timings.
type LoaderConfig struct {
	StartDelay Duration `json:"startDelay" toml:"startDelay" yaml:"startDelay"`
	LoadDelay  Duration `json:"loadDelay" toml:"loadDelay" yaml:"loadDelay"`
	RetryDelay Duration `json:"retryDelay" toml:"retryDelay" yaml:"retryDelay"`
	Debounce   Duration `json:"debounce" toml:"debounce" yaml:"debounce"`
}

// Duration is a time.Duration written as a string such as "2s" in config files.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText formats the duration as a string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a configuration with every optional setting filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ReadTimeout:     Duration{30 * time.Second},
			WriteTimeout:    Duration{30 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Loader: LoaderConfig{
			StartDelay: Duration{2 * time.Second},
			LoadDelay:  Duration{time.Second},
			RetryDelay: Duration{time.Second},
			Debounce:   Duration{25 * time.Millisecond},
		},
	}
}

// MapRoot returns the root for map files.
func (c *Config) MapRoot() string {
	if c.MapURL != "" {
		return c.MapURL
	}
	return c.SrcURL
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Src) == 0 {
		return ErrNoSources
	}

	for i, src := range c.Src {
		if strings.TrimSpace(src.Src) == "" {
			return fmt.Errorf("src[%d]: src is required", i)
		}
		if src.Inline && src.Map != "" {
			return fmt.Errorf("src[%d] %q: map cannot be set for an inline source", i, src.Src)
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.Logging.Format)
	}

	for name, d := range map[string]Duration{
		"loader.startDelay": c.Loader.StartDelay,
		"loader.loadDelay":  c.Loader.LoadDelay,
		"loader.retryDelay": c.Loader.RetryDelay,
		"loader.debounce":   c.Loader.Debounce,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	return nil
}
