package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ministore/objectdb/objectdb/blob"
	"github.com/ministore/objectdb/objectdb/schema"
)

// Config holds the objectdb CLI configuration.
type Config struct {
	Storage StorageConfig          `yaml:"storage"`
	Blob    BlobConfig             `yaml:"blob"`
	Search  SearchConfig           `yaml:"search"`
	Logging LoggingConfig          `yaml:"logging"`
	Indexes map[string]IndexConfig `yaml:"indexes"`
	Types   map[string]TypeConfig  `yaml:"types"`
}

// StorageConfig selects and configures the backend.
type StorageConfig struct {
	Backend  string         `yaml:"backend"` // sqlite, postgres (default: sqlite)
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path   string `yaml:"path"`
	Driver string `yaml:"driver"` // sqlite (pure Go) or sqlite3 (cgo)
}

type PostgresConfig struct {
	DSN    string `yaml:"dsn"`
	Schema string `yaml:"schema"`
}

// BlobConfig controls how SIMPLE attributes are stored.
type BlobConfig struct {
	Compression string `yaml:"compression"` // none, lz4, zstd
	MinSize     int    `yaml:"min_size"`
}

// SearchConfig bounds query output.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Env   string `yaml:"env"`   // prod, dev, local (default: local)
	Level string `yaml:"level"` // debug, info, warn, error
}

// IndexConfig declares an inverted index.
type IndexConfig struct {
	Min    int      `yaml:"min"`
	Max    int      `yaml:"max"`
	Ignore []string `yaml:"ignore"`
}

// TypeConfig declares an object type.
type TypeConfig struct {
	Attributes map[string]AttributeConfig `yaml:"attributes"`
	Indexes    [][]string                 `yaml:"indexes"`
}

// AttributeConfig declares one attribute. Flags is a "|" or "," separated
// list such as "searchable|indexed".
type AttributeConfig struct {
	Kind          string   `yaml:"kind"`
	Flags         string   `yaml:"flags"`
	InvertedIndex string   `yaml:"inverted_index"`
	Weight        *float64 `yaml:"weight"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// Load reads a YAML configuration file. ${VAR} and ${VAR:-default} are
// expanded from the environment before parsing.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = "objects.db"
	}
	if c.Storage.SQLite.Driver == "" {
		c.Storage.SQLite.Driver = "sqlite"
	}
	if c.Storage.Postgres.Schema == "" {
		c.Storage.Postgres.Schema = "objectdb"
	}
	if c.Blob.Compression == "" {
		c.Blob.Compression = "none"
	}
	if c.Blob.MinSize <= 0 {
		c.Blob.MinSize = blob.DefaultMinSize
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 1000
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "local"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "warn"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite":
		switch c.Storage.SQLite.Driver {
		case "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.sqlite.driver must be \"sqlite\" or \"sqlite3\", got %q", c.Storage.SQLite.Driver)
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required")
		}
	default:
		return fmt.Errorf("storage.backend must be \"sqlite\" or \"postgres\", got %q", c.Storage.Backend)
	}
	if _, err := blob.ParseCompression(c.Blob.Compression); err != nil {
		return fmt.Errorf("blob.compression: %w", err)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds search.max_limit %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	for name, ix := range c.Indexes {
		if ix.Min < 0 || ix.Max < 0 || (ix.Max > 0 && ix.Min > ix.Max) {
			return fmt.Errorf("indexes.%s: invalid term length bounds %d..%d", name, ix.Min, ix.Max)
		}
	}
	for name, t := range c.Types {
		if _, err := t.Definitions(); err != nil {
			return fmt.Errorf("types.%s: %w", name, err)
		}
	}
	return nil
}

// Codec returns the blob codec described by the blob section.
func (c *Config) Codec() blob.Codec {
	comp, _ := blob.ParseCompression(c.Blob.Compression)
	return blob.Codec{Compression: comp, MinSize: c.Blob.MinSize}
}

// ClampLimit applies the search limits to a requested limit.
func (c *Config) ClampLimit(n int) int {
	if n <= 0 {
		return c.Search.DefaultLimit
	}
	if n > c.Search.MaxLimit {
		return c.Search.MaxLimit
	}
	return n
}

// IndexNames returns the declared index names in sorted order.
func (c *Config) IndexNames() []string {
	return sortedKeys(c.Indexes)
}

// TypeNames returns the declared type names in sorted order.
func (c *Config) TypeNames() []string {
	return sortedKeys(c.Types)
}

// Definition converts the declaration into an index definition.
func (ix IndexConfig) Definition(name string) schema.InvertedIndexDef {
	return schema.InvertedIndexDef{Name: name, Min: ix.Min, Max: ix.Max, Ignore: ix.Ignore}
}

// Definitions converts the declared attributes into attribute definitions.
func (t TypeConfig) Definitions() (map[string]schema.AttributeDef, error) {
	out := make(map[string]schema.AttributeDef, len(t.Attributes))
	for name, a := range t.Attributes {
		kind, err := schema.ParseKind(a.Kind)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		flags, err := schema.ParseFlags(a.Flags)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = schema.AttributeDef{Kind: kind, Flags: flags, InvertedIndex: a.InvertedIndex, Weight: a.Weight}
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
