package cli

import (
	"bytes"
	_ "embed"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var configSchema string

// Store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
)

// DefaultStorePath is the SQLite database used when no config is given.
const DefaultStorePath = "minisync.db"

// Config is the YAML configuration file.
type Config struct {
	Store         StoreConfig   `yaml:"store"`
	Client        ClientConfig  `yaml:"client"`
	PartSizeLimit int64         `yaml:"part_size_limit"`
	Resolve       ResolveConfig `yaml:"resolve"`
}

// StoreConfig selects and configures the primary store.
type StoreConfig struct {
	Kind string `yaml:"kind"`

	// Path is the database file for sqlite and bolt.
	Path string `yaml:"path"`

	// Redis connection.
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`

	// ID names a memory store in its URLs.
	ID string `yaml:"id"`

	// PublicURL is the base under which the store's files are served,
	// usually "<serve address>/files".
	PublicURL string `yaml:"public_url"`
}

// ClientConfig is written into the indexes this installation saves.
type ClientConfig struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
}

// ResolveConfig controls how URLs of other stores are fetched.
type ResolveConfig struct {
	// HTTP enables downloading http(s) URLs.
	HTTP bool `yaml:"http"`

	// Prefixes restricts HTTP downloads to these URL prefixes.
	Prefixes []string `yaml:"prefixes"`

	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() *Config {
	return &Config{
		Store:   StoreConfig{Kind: StoreSQLite, Path: DefaultStorePath},
		Resolve: ResolveConfig{HTTP: true},
	}
}

// LoadConfig reads path, or returns DefaultConfig when path is empty.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return ParseConfig(data)
}

// ParseConfig validates data against the config schema and decodes it.
func ParseConfig(data []byte) (*Config, error) {
	if err := validateConfig(data); err != nil {
		return nil, err
	}

	cfg := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "parse config")
	}
	if cfg.Store.Kind == "" {
		cfg.Store = DefaultConfig().Store
	}
	return cfg, nil
}

// validateConfig unifies the YAML document with the #Config definition.
// Definitions are closed, so unknown keys fail as well.
func validateConfig(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "parse config")
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(configSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return errors.Wrap(err, "compile config schema")
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
