package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Loop.MaxIterations)
	assert.Equal(t, 60*time.Second, cfg.Loop.OracleTimeout)
	assert.Equal(t, StoreFile, cfg.Audit.Store)
	assert.Equal(t, "./data/audit_logs", cfg.Audit.Dir)
	assert.Equal(t, 5*time.Second, cfg.Audit.WriteTimeout)
	assert.Equal(t, []string{"password", "secret", "token", "key"}, cfg.Audit.Redaction.Keywords)
	assert.Equal(t, []string{"key_phrases"}, cfg.Audit.Redaction.Allow)
	assert.Equal(t, ProviderMock, cfg.Oracle.Provider)
	assert.Equal(t, 3, cfg.Oracle.MaxRetries)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "attest", cfg.Tracing.ServiceName)

	assert.Equal(t, cfg, Default())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
loop:
  max_iterations: 3
  oracle_timeout: 15s
audit:
  store: sqlite
  sqlite:
    path: /tmp/attest.db
oracle:
  provider: groq
  api_key: ${ATTEST_TEST_GROQ_KEY}
`), 0o644))

	t.Setenv("ATTEST_TEST_GROQ_KEY", "gsk-test")
	t.Setenv("ATTEST_LOOP_MAX_ITERATIONS", "4")
	t.Setenv("ATTEST_SERVER_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Loop.MaxIterations, "environment wins over the file")
	assert.Equal(t, 15*time.Second, cfg.Loop.OracleTimeout)
	assert.Equal(t, StoreSQLite, cfg.Audit.Store)
	assert.Equal(t, "/tmp/attest.db", cfg.Audit.SQLite.Path)
	assert.Equal(t, ProviderGroq, cfg.Oracle.Provider)
	assert.Equal(t, "gsk-test", cfg.Oracle.APIKey)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown store", func(c *Config) { c.Audit.Store = "s3" }, "audit.store"},
		{"postgres without dsn", func(c *Config) { c.Audit.Store = StorePostgres }, "audit.postgres.dsn"},
		{"unknown provider", func(c *Config) { c.Oracle.Provider = "ollama" }, "oracle.provider"},
		{"unknown analyzer", func(c *Config) { c.Analyzer.Mode = "regex" }, "analyzer.mode"},
		{"zero cap", func(c *Config) { c.Loop.MaxIterations = 0 }, "loop.max_iterations"},
		{"negative timeout", func(c *Config) { c.Loop.OracleTimeout = -time.Second }, "loop.oracle_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("ATTEST_TEST_SECRET", "s3cr3t")
	assert.Equal(t, "s3cr3t", expandEnv("${ATTEST_TEST_SECRET}"))
	assert.Equal(t, "s3cr3t", expandEnv("$ATTEST_TEST_SECRET"))
	assert.Equal(t, "literal", expandEnv("literal"))
	assert.Equal(t, "", expandEnv("${ATTEST_TEST_UNSET_VAR}"))
}
