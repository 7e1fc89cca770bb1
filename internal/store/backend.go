package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrNotFound is returned when a requested entity does not exist in the backend.
var ErrNotFound = errors.New("not found")

// Backend loads and stores the serialized document.
type Backend interface {
	// Load returns the decoded document in sequence form and where it was
	// read from. A missing document is not an error: it yields nil, "", nil.
	Load() (raw any, source string, err error)

	// Prepare makes sure the destination is ready to be written.
	Prepare() error

	// Save replaces the stored document with data.
	Save(data []byte) error

	// Location describes where Save writes.
	Location() string

	Close() error
}

// ConfigHome returns $XDG_CONFIG_HOME, falling back to ~/.config.
func ConfigHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "~"
	}
	return filepath.Join(home, ".config")
}

// DefaultPaths returns the primary YAML and legacy JSON paths for app.
func DefaultPaths(app string) (yamlPath, jsonPath string) {
	dir := filepath.Join(ConfigHome(), app)
	return filepath.Join(dir, "config.yaml"), filepath.Join(dir, "config.json")
}

// FileBackend keeps the document in a YAML file. When that file is missing
// it reads the legacy JSON file instead; writes always go to the YAML file.
type FileBackend struct {
	yamlPath string
	jsonPath string
	logger   *slog.Logger
}

// NewFileBackend creates a file backend. jsonPath may be empty.
func NewFileBackend(yamlPath, jsonPath string, logger *slog.Logger) *FileBackend {
	return &FileBackend{
		yamlPath: yamlPath,
		jsonPath: jsonPath,
		logger:   logger.With("component", "file_backend"),
	}
}

func (b *FileBackend) Load() (any, string, error) {
	switch {
	case isFile(b.yamlPath):
		data, err := os.ReadFile(b.yamlPath)
		if err != nil {
			return nil, b.yamlPath, fmt.Errorf("read %s: %w", b.yamlPath, err)
		}
		raw, err := decodeDocument(data)
		if err != nil {
			return nil, b.yamlPath, fmt.Errorf("parse %s: %w", b.yamlPath, err)
		}
		return raw, b.yamlPath, nil
	case b.jsonPath != "" && isFile(b.jsonPath):
		data, err := os.ReadFile(b.jsonPath)
		if err != nil {
			return nil, b.jsonPath, fmt.Errorf("read %s: %w", b.jsonPath, err)
		}
		legacy := orderedmap.New[string, any]()
		if err := json.Unmarshal(data, legacy); err != nil {
			return nil, b.jsonPath, fmt.Errorf("parse %s: %w", b.jsonPath, err)
		}
		b.logger.Info("converting legacy configuration", "path", b.jsonPath, "entries", legacy.Len())
		return convertLegacy(legacy, b.logger), b.jsonPath, nil
	}
	return nil, "", nil
}

func (b *FileBackend) Prepare() error {
	dir := filepath.Dir(b.yamlPath)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// Save writes to a temporary file next to the target and renames it into place.
func (b *FileBackend) Save(data []byte) error {
	dir := filepath.Dir(b.yamlPath)
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, b.yamlPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename to %s: %w", b.yamlPath, err)
	}
	return nil
}

func (b *FileBackend) Location() string { return b.yamlPath }

func (b *FileBackend) Close() error { return nil }

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
