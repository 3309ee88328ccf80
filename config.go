package shelf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shelfdb/shelf/pkg/types"
)

// DefaultKeyValueCollection is the reserved collection name backing the
// key/value convenience surface when the config does not override it.
const DefaultKeyValueCollection = "keyValue"

// Config describes one database: its name, schema version, and the schema
// string for every collection.
type Config struct {
	// Name is the database name; the engine derives its file name from it.
	Name string `json:"name" yaml:"name"`

	// Version is the schema version, a positive integer. Opening with a
	// version newer than what exists runs creation/upgrade; opening with an
	// older version fails.
	Version int `json:"version" yaml:"version"`

	// Path is the directory holding the database files.
	Path string `json:"path" yaml:"path"`

	// Schema maps collection name to its comma-separated index token list.
	// The first token is the primary key path; "!" marks a unique index and
	// "[a+b]" a composite index.
	Schema map[string]string `json:"schema" yaml:"schema"`

	// KeyValueCollection is the reserved key/value collection name. When the
	// schema does not declare it, a collection keyed by "key" is synthesized.
	KeyValueCollection string `json:"key_value_collection" yaml:"key_value_collection"`
}

// Resolve fills in defaults for optional fields.
func (c *Config) Resolve() {
	if c.Path == "" {
		c.Path = "."
	}
	if c.KeyValueCollection == "" {
		c.KeyValueCollection = DefaultKeyValueCollection
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Name == "" {
		return types.NewInvalidSchema("database name is required")
	}
	if c.Version < 1 {
		return types.NewInvalidSchema(fmt.Sprintf("version must be a positive integer, got %d", c.Version))
	}
	for name := range c.Schema {
		if name == "" {
			return types.NewInvalidSchema("schema contains an empty collection name")
		}
	}
	return nil
}

// LoadConfig loads a configuration from a YAML or JSON file and applies
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	cfg.Resolve()
	return cfg, nil
}
