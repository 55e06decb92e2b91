package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable that points at a config file when
// --config is not given.
const EnvConfig = "SHATTER_CONFIG"

// Load builds the configuration from defaults, then the config file, then
// command-line flags, and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	if path := configSource(); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}
	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// configSource returns the file Load reads: --config, then $SHATTER_CONFIG,
// then the first existing search location. An explicit path is returned even
// when missing so the caller reports it.
func configSource() string {
	if p := ConfigPath(); p != "" {
		return p
	}
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return findConfigFile()
}

// findConfigFile looks for shatter.yaml in the working directory, then for
// config.yaml in ConfigDir.
func findConfigFile() string {
	for _, path := range []string{
		"shatter.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	} {
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path
		}
	}
	return ""
}

// ConfigDir returns the per-user shatter config directory.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "shatter")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".shatter")
	}
	return filepath.Join(os.TempDir(), "shatter")
}

// loadFromFile merges a YAML file into cfg. Unknown keys are rejected so a
// misspelled limit cannot silently fall back to its default. An empty file
// leaves cfg unchanged.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
