// Package config provides configuration management for the health recorder
// server. It loads a YAML file, applies environment overrides and exposes
// typed accessors with defaults for the model, generation endpoint, storage
// location and logging settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort          = 5000
	DefaultModel         = "gemma3:4b"
	DefaultEndpoint      = "http://localhost:11434/api/generate"
	DefaultDataDir       = "data"
	DefaultLogDir        = "logs"
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 5

	StoreBackendFile   = "file"
	StoreBackendObject = "object"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the interface to bind. Empty binds all interfaces.
	Host string `yaml:"host" json:"host"`

	// Port is the HTTP listen port.
	Port int `yaml:"port" json:"port"`

	// Debug enables gin debug mode and debug logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LogLevel is one of debug, info, warn, error, quiet. Debug overrides it.
	LogLevel string `yaml:"log-level,omitempty" json:"log-level,omitempty"`

	// LoggingToFile mirrors logs into a rotating file under LogDir.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is the directory for the rotating log file.
	LogDir string `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`

	// LogMaxSizeMB rotates the log file after this many megabytes.
	LogMaxSizeMB int `yaml:"log-max-size-mb,omitempty" json:"log-max-size-mb,omitempty"`

	// LogMaxBackups is the number of rotated files kept.
	LogMaxBackups int `yaml:"log-max-backups,omitempty" json:"log-max-backups,omitempty"`

	// Model is the generation model identifier.
	Model string `yaml:"model" json:"model"`

	// GenerateEndpoint is the URL receiving generation requests.
	GenerateEndpoint string `yaml:"generate-endpoint" json:"generate-endpoint"`

	// RequestTimeoutSeconds bounds a generation call. <= 0 keeps the transport default.
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds,omitempty" json:"request-timeout-seconds,omitempty"`

	// ProxyURL routes generation calls through an http(s) or socks5 proxy.
	ProxyURL string `yaml:"proxy-url,omitempty" json:"proxy-url,omitempty"`

	// DataDir is where record files are written.
	DataDir string `yaml:"data-dir" json:"data-dir"`

	// Context limits how much history reaches the prompt.
	Context ContextConfig `yaml:"context,omitempty" json:"context,omitempty"`

	// Metrics toggles the /metrics endpoint. nil means default (true).
	Metrics *bool `yaml:"metrics,omitempty" json:"metrics,omitempty"`

	// Store selects the record backend.
	Store StoreConfig `yaml:"store,omitempty" json:"store,omitempty"`

	// ObjectStore configures the S3-compatible backend.
	ObjectStore ObjectStoreConfig `yaml:"objectstore,omitempty" json:"objectstore,omitempty"`

	// AnswerCache reuses answers for identical prompts.
	AnswerCache AnswerCacheConfig `yaml:"answer-cache,omitempty" json:"answer-cache,omitempty"`
}

// AnswerCacheConfig controls the in-memory answer cache. Zero sizes fall back
// to the cache's defaults.
type AnswerCacheConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	MaxEntries int  `yaml:"max-entries,omitempty" json:"max-entries,omitempty"`
	TTLSeconds int  `yaml:"ttl-seconds,omitempty" json:"ttl-seconds,omitempty"`
}

// TTL returns the entry lifetime, zero meaning the cache default.
func (a AnswerCacheConfig) TTL() time.Duration {
	if a.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(a.TTLSeconds) * time.Second
}

// ContextConfig caps the prompt's context section.
type ContextConfig struct {
	// MaxRecords keeps only the most recent N records. 0 means no cap.
	MaxRecords int `yaml:"max-records,omitempty" json:"max-records,omitempty"`

	// MaxTokens bounds the context section in tokens. 0 means no cap.
	MaxTokens int `yaml:"max-tokens,omitempty" json:"max-tokens,omitempty"`
}

// StoreConfig selects the record backend.
type StoreConfig struct {
	// Backend is "file" (default) or "object".
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`
}

// ObjectStoreConfig holds S3-compatible bucket settings.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKey string `yaml:"access-key,omitempty" json:"-"`
	SecretKey string `yaml:"secret-key,omitempty" json:"-"`
	Bucket    string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	UseSSL    bool   `yaml:"use-ssl,omitempty" json:"use-ssl,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the YAML file at path. A missing file yields defaults.
// Environment overrides are applied after the file.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, errUnmarshal)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides file values from the environment.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	get := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if value, ok := lookup(key); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed, true
				}
			}
		}
		return "", false
	}
	if v, ok := get("HEALTH_RECORDER_MODEL", "OLLAMA_MODEL"); ok {
		c.Model = v
	}
	if v, ok := get("HEALTH_RECORDER_ENDPOINT", "OLLAMA_ENDPOINT"); ok {
		c.GenerateEndpoint = v
	}
	if v, ok := get("HEALTH_RECORDER_DATA_DIR", "DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := get("HEALTH_RECORDER_PORT", "PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v, ok := get("HEALTH_RECORDER_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("OBJECTSTORE_ENDPOINT", "objectstore_endpoint"); ok {
		c.ObjectStore.Endpoint = v
		if c.Store.Backend == "" {
			c.Store.Backend = StoreBackendObject
		}
	}
	if v, ok := get("OBJECTSTORE_ACCESS_KEY", "objectstore_access_key"); ok {
		c.ObjectStore.AccessKey = v
	}
	if v, ok := get("OBJECTSTORE_SECRET_KEY", "objectstore_secret_key"); ok {
		c.ObjectStore.SecretKey = v
	}
	if v, ok := get("OBJECTSTORE_BUCKET", "objectstore_bucket"); ok {
		c.ObjectStore.Bucket = v
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultModel
	}
	if strings.TrimSpace(c.GenerateEndpoint) == "" {
		c.GenerateEndpoint = DefaultEndpoint
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.LogMaxSizeMB <= 0 {
		c.LogMaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.LogMaxBackups <= 0 {
		c.LogMaxBackups = DefaultLogMaxBackups
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendFile
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Store.Backend {
	case StoreBackendFile:
	case StoreBackendObject:
		if c.ObjectStore.Endpoint == "" || c.ObjectStore.Bucket == "" {
			return errors.New("object store backend requires objectstore.endpoint and objectstore.bucket")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Context.MaxRecords < 0 || c.Context.MaxTokens < 0 {
		return errors.New("context limits must not be negative")
	}
	if c.AnswerCache.MaxEntries < 0 || c.AnswerCache.TTLSeconds < 0 {
		return errors.New("answer-cache limits must not be negative")
	}
	return nil
}

// IsMetricsEnabled reports whether /metrics is served.
func (c *Config) IsMetricsEnabled() bool {
	if c == nil || c.Metrics == nil {
		return true
	}
	return *c.Metrics
}

// RequestTimeout returns the generation timeout, zero meaning transport default.
func (c *Config) RequestTimeout() time.Duration {
	if c == nil || c.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EffectiveLogLevel resolves Debug against LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

// PipelineChanged reports whether a reload touches settings used per request.
func (c *Config) PipelineChanged(other *Config) bool {
	if c == nil || other == nil {
		return c != other
	}
	return c.Model != other.Model ||
		c.GenerateEndpoint != other.GenerateEndpoint ||
		c.RequestTimeoutSeconds != other.RequestTimeoutSeconds ||
		c.ProxyURL != other.ProxyURL ||
		c.Context != other.Context
}
