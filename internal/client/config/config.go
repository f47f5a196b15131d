// Package config loads the CLI configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/notely/notely/internal/client/api"
	"github.com/notely/notely/internal/client/autosave"
)

// Config is the CLI configuration.
type Config struct {
	ServerURL      string        `yaml:"server_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	StatePath      string        `yaml:"state_path"`
	Debounce       time.Duration `yaml:"debounce"`
	LogLevel       string        `yaml:"log_level"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		ServerURL:      "http://localhost:5000",
		RequestTimeout: api.DefaultTimeout,
		StatePath:      filepath.Join(baseDir(), "state.db"),
		Debounce:       autosave.DefaultDebounce,
		LogLevel:       "warn",
	}
}

// DefaultPath is ~/.config/notely/config.yaml, or the XDG equivalent.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

func baseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".notely"
	}
	return filepath.Join(dir, "notely")
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values a file can get wrong.
func (c Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.Debounce <= 0 {
		return errors.New("debounce must be positive")
	}
	if c.StatePath == "" {
		return errors.New("state_path is required")
	}
	return nil
}

// Save writes the configuration to path.
func Save(path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}
