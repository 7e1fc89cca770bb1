// Command solaar-settings inspects and edits the per-device settings
// document kept for Logitech receivers and devices.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"solaar-settings/internal/store"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Store struct {
		Backend    string `yaml:"backend"` // "file" or "bolt"
		Path       string `yaml:"path"`
		DeferSaves bool   `yaml:"defer_saves"`
		SaveDelay  string `yaml:"save_delay"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "file", "bolt":
	default:
		return fmt.Errorf("store.backend must be file or bolt, got %q", c.Store.Backend)
	}
	if _, err := c.saveDelay(); err != nil {
		return fmt.Errorf("store.save_delay: %w", err)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

func (c *Config) saveDelay() (time.Duration, error) {
	if c.Store.SaveDelay == "" {
		return store.DefaultSaveDelay, nil
	}
	d, err := time.ParseDuration(c.Store.SaveDelay)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	if cerr := a.close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "solaar-settings: close store: %v\n", cerr)
		err = cerr
	}
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the run configuration. A missing file yields defaults.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "file"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "solaar"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "warn"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
			NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		})
	}
	return slog.New(handler)
}

// openBackend selects the storage backend named in the configuration.
func openBackend(cfg *Config, logger *slog.Logger) (store.Backend, error) {
	switch cfg.Store.Backend {
	case "bolt":
		path := cfg.Store.Path
		if path == "" {
			path = filepath.Join(store.ConfigHome(), "solaar", "config.db")
		}
		b, err := store.NewBoltBackend(path)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		return b, nil
	default:
		yamlPath, jsonPath := documentPaths(cfg)
		return store.NewFileBackend(yamlPath, jsonPath, logger), nil
	}
}

// documentPaths returns the YAML document and legacy JSON paths for the file
// backend. The legacy file sits next to a configured path.
func documentPaths(cfg *Config) (yamlPath, jsonPath string) {
	if cfg.Store.Path == "" {
		return store.DefaultPaths("solaar")
	}
	yamlPath = cfg.Store.Path
	return yamlPath, strings.TrimSuffix(yamlPath, filepath.Ext(yamlPath)) + ".json"
}
