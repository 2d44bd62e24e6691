package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rangeledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1024, cfg.Pipeline.PersistChanSize)
	assert.Equal(t, 2048, cfg.Pipeline.ProjectionChanSize)
	assert.Equal(t, int64(100_000), cfg.Snapshot.Interval)
	assert.Equal(t, int32(9), cfg.Ledger.TokenDecimals)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.GRPCAddr)
	assert.Equal(t, 10*time.Millisecond, cfg.Pipeline.PersistFlushTimeout)
}

func TestLoad_YAMLMergesOntoDefaults(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
postgres:
  dsn: postgres://u:p@db:5432/x
  conn_max_lifetime: 90s
pipeline:
  persist_batch_size: 200
redis:
  addr: redis:6379
  lease_ttl: 30s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Postgres.DSN)
	assert.Equal(t, 90*time.Second, cfg.Postgres.ConnMaxLifetime)
	assert.Equal(t, 200, cfg.Pipeline.PersistBatchSize)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Redis.LeaseTTL)

	// untouched keys keep their defaults
	assert.Equal(t, 20, cfg.Postgres.MaxOpenConns)
	assert.Equal(t, "rangeledger:writer", cfg.Redis.LeaseKey)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "server:\n  http_addr: \":8000\"\n")
	t.Setenv("RANGE_HTTP_ADDR", ":8181")
	t.Setenv("RANGE_SNAPSHOT_INTERVAL", "500")
	t.Setenv("RANGE_INGEST_RATE", "12.5")
	t.Setenv("RANGE_TOKEN_DECIMALS", "6")
	t.Setenv("RANGE_RUN_MIGRATIONS", "false")
	t.Setenv("RANGE_PERSIST_FLUSH_TIMEOUT", "25ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8181", cfg.Server.HTTPAddr)
	assert.Equal(t, int64(500), cfg.Snapshot.Interval)
	assert.InDelta(t, 12.5, cfg.Ingest.RatePerSecond, 1e-9)
	assert.Equal(t, int32(6), cfg.Ledger.TokenDecimals)
	assert.False(t, cfg.Postgres.RunMigrations)
	assert.Equal(t, 25*time.Millisecond, cfg.Pipeline.PersistFlushTimeout)
}

func TestLoad_IgnoresMalformedEnv(t *testing.T) {
	t.Setenv("RANGE_PERSIST_BATCH_SIZE", "lots")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Pipeline.PersistBatchSize)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "pipeline: [not, a, map]"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing dsn", func(c *Config) { c.Postgres.DSN = "" }, "postgres.dsn"},
		{"zero channel", func(c *Config) { c.Pipeline.PublishChanSize = 0 }, "pipeline.publish_chan_size"},
		{"snapshot interval", func(c *Config) { c.Snapshot.Interval = 0 }, "snapshot.interval"},
		{"decimals", func(c *Config) { c.Ledger.TokenDecimals = 19 }, "token_decimals"},
		{"negative rate", func(c *Config) { c.Ingest.RatePerSecond = -1 }, "rate_per_second"},
		{"short lease", func(c *Config) {
			c.Redis.Addr = "localhost:6379"
			c.Redis.LeaseTTL = 100 * time.Millisecond
		}, "lease"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
