// Package config loads attest settings from an optional YAML file and
// ATTEST_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, so audit.store
// becomes ATTEST_AUDIT_STORE.
const EnvPrefix = "ATTEST"

// Audit store backends.
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Oracle providers.
const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
)

// Analyzer modes.
const (
	AnalyzerLLM     = "llm"
	AnalyzerKeyword = "keyword"
)

// Config is the full attest configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Loop     LoopConfig     `mapstructure:"loop"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Contacts ContactsConfig `mapstructure:"contacts"`
	Registry RegistryConfig `mapstructure:"registry"`
	Server   ServerConfig   `mapstructure:"server"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

type LoopConfig struct {
	MaxIterations int           `mapstructure:"max_iterations"`
	OracleTimeout time.Duration `mapstructure:"oracle_timeout"`
}

type AuditConfig struct {
	Store        string           `mapstructure:"store"`
	Dir          string           `mapstructure:"dir"`
	WriteTimeout time.Duration    `mapstructure:"write_timeout"`
	Redis        RedisConfig      `mapstructure:"redis"`
	SQLite       SQLiteConfig     `mapstructure:"sqlite"`
	Postgres     PostgresConfig   `mapstructure:"postgres"`
	Redaction    RedactionConfig  `mapstructure:"redaction"`
	Encryption   EncryptionConfig `mapstructure:"encryption"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	// Lock serializes appends per session across processes sharing the server.
	Lock    bool          `mapstructure:"lock"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedactionConfig struct {
	Keywords        []string `mapstructure:"keywords"`
	Allow           []string `mapstructure:"allow"`
	MaxStringLength int      `mapstructure:"max_string_length"`
}

// EncryptionConfig enables at-rest encryption of record payloads.
// Keys are base64 encoded 32-byte AES keys; an empty Key disables it.
type EncryptionConfig struct {
	Key          string   `mapstructure:"key"`
	FallbackKeys []string `mapstructure:"fallback_keys"`
}

type OracleConfig struct {
	Provider          string  `mapstructure:"provider"`
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	Model             string  `mapstructure:"model"`
	MaxRetries        int     `mapstructure:"max_retries"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type AnalyzerConfig struct {
	Mode string `mapstructure:"mode"`
}

type ContactsConfig struct {
	Path string `mapstructure:"path"`
}

type RegistryConfig struct {
	Overrides string `mapstructure:"overrides"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("loop.max_iterations", 5)
	v.SetDefault("loop.oracle_timeout", 60*time.Second)

	v.SetDefault("audit.store", StoreFile)
	v.SetDefault("audit.dir", "./data/audit_logs")
	v.SetDefault("audit.write_timeout", 5*time.Second)
	v.SetDefault("audit.redis.addr", "localhost:6379")
	v.SetDefault("audit.redis.password", "")
	v.SetDefault("audit.redis.db", 0)
	v.SetDefault("audit.redis.prefix", "attest:audit:")
	v.SetDefault("audit.redis.ttl", time.Duration(0))
	v.SetDefault("audit.redis.lock", false)
	v.SetDefault("audit.redis.lock_ttl", 30*time.Second)
	v.SetDefault("audit.sqlite.path", "./data/audit.db")
	v.SetDefault("audit.postgres.dsn", "")
	v.SetDefault("audit.redaction.keywords", []string{"password", "secret", "token", "key"})
	v.SetDefault("audit.redaction.allow", []string{"key_phrases"})
	v.SetDefault("audit.redaction.max_string_length", 1000)
	v.SetDefault("audit.encryption.key", "")
	v.SetDefault("audit.encryption.fallback_keys", []string{})

	v.SetDefault("oracle.provider", ProviderMock)
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("oracle.model", "")
	v.SetDefault("oracle.max_retries", 3)
	v.SetDefault("oracle.max_tokens", 2000)
	v.SetDefault("oracle.requests_per_second", 0.0)

	v.SetDefault("analyzer.mode", AnalyzerLLM)
	v.SetDefault("contacts.path", "")
	v.SetDefault("registry.overrides", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.service_name", "attest")
}

// Load reads the file at path (when non-empty), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Oracle.APIKey = expandEnv(cfg.Oracle.APIKey)
	cfg.Audit.Postgres.DSN = expandEnv(cfg.Audit.Postgres.DSN)
	cfg.Audit.Redis.Password = expandEnv(cfg.Audit.Redis.Password)
	cfg.Audit.Encryption.Key = expandEnv(cfg.Audit.Encryption.Key)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults alone always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// expandEnv resolves a value of the form ${VAR} or $VAR. Anything else is
// returned unchanged.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	return os.ExpandEnv(s)
}

// Validate rejects settings no component can act on.
func (c *Config) Validate() error {
	var errs []error
	switch c.Audit.Store {
	case StoreFile, StoreMemory, StoreRedis, StoreSQLite, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("audit.store: unknown backend %q", c.Audit.Store))
	}
	if c.Audit.Store == StorePostgres && c.Audit.Postgres.DSN == "" {
		errs = append(errs, errors.New("audit.postgres.dsn: required for the postgres store"))
	}
	switch c.Oracle.Provider {
	case ProviderMock, ProviderOpenAI, ProviderGroq:
	default:
		errs = append(errs, fmt.Errorf("oracle.provider: unknown provider %q", c.Oracle.Provider))
	}
	switch c.Analyzer.Mode {
	case AnalyzerLLM, AnalyzerKeyword:
	default:
		errs = append(errs, fmt.Errorf("analyzer.mode: unknown mode %q", c.Analyzer.Mode))
	}
	if c.Loop.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("loop.max_iterations: must be positive, got %d", c.Loop.MaxIterations))
	}
	if c.Loop.OracleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("loop.oracle_timeout: must be positive, got %s", c.Loop.OracleTimeout))
	}
	return errors.Join(errs...)
}
