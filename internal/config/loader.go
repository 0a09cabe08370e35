package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigPath is an explicit file; when empty SearchPaths are tried in order
	ConfigPath  string
	SearchPaths []string
	// AllowEnvOverrides applies TRACEMAP_* and LOG_* variables after decoding
	AllowEnvOverrides bool
}

// DefaultSearchPaths returns the files tried when no config path is given.
func DefaultSearchPaths() []string {
	paths := []string{
		"tracemap.json",
		"tracemap.toml",
		"tracemap.yaml",
		"tracemap.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "tracemap", "config.json"),
			filepath.Join(home, ".config", "tracemap", "config.toml"),
			filepath.Join(home, ".config", "tracemap", "config.yaml"),
		)
	}
	return paths
}

// Load reads and parses the configuration file, applying env overrides.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{ConfigPath: configPath, AllowEnvOverrides: true})
}

// LoadWithOptions reads, decodes and validates configuration.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	path, err := findConfig(opts)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if opts.AllowEnvOverrides {
		applyEnv(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func findConfig(opts LoadOptions) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	for _, candidate := range opts.SearchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("no config file found (searched %s)", strings.Join(opts.SearchPaths, ", "))
}

// decode picks a decoder from the file extension.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q (must be .json, .toml, .yaml or .yml)", filepath.Ext(path))
	}
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"TRACEMAP_ADDR":    &cfg.Server.Addr,
		"TRACEMAP_SRC_URL": &cfg.SrcURL,
		"TRACEMAP_MAP_URL": &cfg.MapURL,
		"LOG_LEVEL":        &cfg.Logging.Level,
		"LOG_FORMAT":       &cfg.Logging.Format,
	}
	for env, field := range overrides {
		if value := os.Getenv(env); value != "" {
			*field = value
		}
	}
}
