// Package config loads the sqlgraph configuration: a YAML file overlaid with
// SQLGRAPH_* environment variables, decoded onto the documented defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/sqlgraph/internal/workflow"
	"github.com/aretw0/sqlgraph/pkg/adapters/openai"
	"github.com/aretw0/sqlgraph/pkg/adapters/process"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/persistence/middleware"
)

const (
	// EnvPrefix prefixes every environment override, e.g. SQLGRAPH_LLM_API_KEY.
	EnvPrefix = "SQLGRAPH_"
	// EnvConfig names the config file when --config is not given.
	EnvConfig = EnvPrefix + "CONFIG"
	// DefaultFile is read from the working directory when present.
	DefaultFile = "sqlgraph.yaml"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Retrieval drivers.
const (
	RetrievalMemory = "memory"
	RetrievalSQLite = "sqlite"
)

// Config is the full application configuration.
type Config struct {
	Server      ServerConfig        `mapstructure:"server"`
	LLM         openai.Config       `mapstructure:"llm"`
	Store       StoreConfig         `mapstructure:"store"`
	Retrieval   RetrievalConfig     `mapstructure:"retrieval"`
	Workflow    WorkflowConfig      `mapstructure:"workflow"`
	Sandbox     process.Config      `mapstructure:"sandbox"`
	Datasources []domain.Datasource `mapstructure:"datasources"`
	Log         LogConfig           `mapstructure:"log"`
}

// ServerConfig configures the HTTP and MCP/SSE listeners.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	MCPAddr        string        `mapstructure:"mcp_addr"`
	BaseURL        string        `mapstructure:"base_url"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
	Metrics        bool          `mapstructure:"metrics"`
}

// StoreConfig selects where suspended sessions are kept.
type StoreConfig struct {
	Driver        string        `mapstructure:"driver"`
	Path          string        `mapstructure:"path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	// EncryptionKey is a base64 or hex AES-256 key. Empty disables encryption.
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
	// RedactKeys are state key patterns masked before a checkpoint is written.
	RedactKeys []string `mapstructure:"redact_keys"`
}

// RetrievalConfig selects the schema index and the recall limits.
type RetrievalConfig struct {
	Driver string `mapstructure:"driver"`
	// Path is the SQLite index file. Empty means an in-memory index.
	Path string `mapstructure:"path"`
	// Catalog is a YAML schema catalog indexed at startup.
	Catalog            string `mapstructure:"catalog"`
	TopKTables         int    `mapstructure:"top_k_tables"`
	MaxColumnsPerTable int    `mapstructure:"max_columns_per_table"`
	MaxColumns         int    `mapstructure:"max_columns"`
	SampleValues       bool   `mapstructure:"sample_values"`
}

// WorkflowConfig is the workflow tuning plus the worker pool size.
type WorkflowConfig struct {
	workflow.Config `mapstructure:",squash"`
	WorkerPoolSize  int `mapstructure:"worker_pool_size"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the documented defaults.
func Default() Config {
	wf := workflow.DefaultConfig()
	sandbox := process.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:      ":8080",
			MCPAddr:   ":8081",
			Heartbeat: 15 * time.Second,
			Metrics:   true,
		},
		LLM: openai.Config{
			Model:   openai.DefaultModel,
			Timeout: 60 * time.Second,
		},
		Store: StoreConfig{
			Driver:  StoreMemory,
			Path:    ".sqlgraph/sessions",
			TTL:     24 * time.Hour,
			LockTTL: 30 * time.Second,
		},
		Retrieval: RetrievalConfig{
			Driver:             RetrievalMemory,
			TopKTables:         wf.Retrieval.TopKTables,
			MaxColumnsPerTable: wf.Retrieval.MaxColumnsPerTable,
			MaxColumns:         wf.Retrieval.MaxColumns,
		},
		Workflow: WorkflowConfig{Config: wf, WorkerPoolSize: 8},
		Sandbox:  sandbox,
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (or the file named by SQLGRAPH_CONFIG, or ./sqlgraph.yaml
// when it exists), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.Environ())
}

func load(path string, environ []string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = lookup(environ, EnvConfig)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultFile
	}

	raw := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	overlayEnv(raw, environ)

	cfg := Default()
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

var sections = map[string]bool{
	"server": true, "llm": true, "store": true, "retrieval": true,
	"workflow": true, "sandbox": true, "log": true,
}

// overlayEnv maps SQLGRAPH_<SECTION>_<KEY> onto raw[section][key].
// Variables naming no known section are left alone.
func overlayEnv(raw map[string]any, environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		section, key, ok := strings.Cut(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "_")
		if !ok || key == "" || !sections[section] {
			continue
		}
		m, ok := raw[section].(map[string]any)
		if !ok {
			m = map[string]any{}
			raw[section] = m
		}
		m[key] = value
	}
}

func lookup(environ []string, name string) string {
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k == name {
			return v
		}
	}
	return ""
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case StoreMemory, StoreFile:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.EncryptionKey != "" {
		if _, err := middleware.DecodeKey(c.Store.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("store.encryption_key: %w", err))
		}
	}
	for i, k := range c.Store.FallbackKeys {
		if _, err := middleware.DecodeKey(k); err != nil {
			errs = append(errs, fmt.Errorf("store.fallback_keys[%d]: %w", i, err))
		}
	}
	for _, p := range c.Store.RedactKeys {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("store.redact_keys: %w", err))
		}
	}
	switch c.Retrieval.Driver {
	case RetrievalMemory, RetrievalSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown retrieval driver %q", c.Retrieval.Driver))
	}
	if c.Workflow.QualityThreshold < 0 || c.Workflow.QualityThreshold > 1 {
		errs = append(errs, fmt.Errorf("workflow.quality_threshold must be within [0,1], got %v", c.Workflow.QualityThreshold))
	}
	if c.Workflow.WorkerPoolSize < 1 {
		errs = append(errs, errors.New("workflow.worker_pool_size must be positive"))
	}
	seen := map[string]bool{}
	for i, ds := range c.Datasources {
		if ds.ID == "" || ds.Scope == "" || ds.Dialect == "" {
			errs = append(errs, fmt.Errorf("datasources[%d]: id, scope and dialect are required", i))
		}
		if seen[ds.ID] {
			errs = append(errs, fmt.Errorf("datasources[%d]: duplicate id %q", i, ds.ID))
		}
		seen[ds.ID] = true
	}
	return errors.Join(errs...)
}

// WorkflowSettings merges the retrieval limits into the workflow tuning.
func (c *Config) WorkflowSettings() workflow.Config {
	wf := c.Workflow.Config
	wf.Retrieval.TopKTables = c.Retrieval.TopKTables
	wf.Retrieval.MaxColumnsPerTable = c.Retrieval.MaxColumnsPerTable
	wf.Retrieval.MaxColumns = c.Retrieval.MaxColumns
	wf.SampleValues = c.Retrieval.SampleValues
	return wf
}
