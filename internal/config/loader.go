package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load merges the YAML file at path (skipped when path is empty) onto the
// defaults, then applies RANGE_* environment overrides. A .env file in the
// working directory is loaded first if present. The result is validated.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Log.Level, "RANGE_LOG_LEVEL")

	setStr(&cfg.Postgres.DSN, "RANGE_POSTGRES_DSN")
	setInt(&cfg.Postgres.MaxOpenConns, "RANGE_POSTGRES_MAX_OPEN_CONNS")
	setInt(&cfg.Postgres.MaxIdleConns, "RANGE_POSTGRES_MAX_IDLE_CONNS")
	setDuration(&cfg.Postgres.ConnMaxLifetime, "RANGE_POSTGRES_CONN_MAX_LIFETIME")
	setStr(&cfg.Postgres.MigrationsDir, "RANGE_MIGRATIONS_DIR")
	setBool(&cfg.Postgres.RunMigrations, "RANGE_RUN_MIGRATIONS")

	setStr(&cfg.NATS.URL, "RANGE_NATS_URL")

	setStr(&cfg.Redis.Addr, "RANGE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RANGE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RANGE_REDIS_DB")
	setStr(&cfg.Redis.LeaseKey, "RANGE_LEASE_KEY")
	setDuration(&cfg.Redis.LeaseTTL, "RANGE_LEASE_TTL")

	setStr(&cfg.Server.GRPCAddr, "RANGE_GRPC_ADDR")
	setStr(&cfg.Server.HTTPAddr, "RANGE_HTTP_ADDR")
	setStr(&cfg.Server.MetricsAddr, "RANGE_METRICS_ADDR")

	setInt(&cfg.Pipeline.CoreQueueSize, "RANGE_CORE_QUEUE_SIZE")
	setInt(&cfg.Pipeline.PersistChanSize, "RANGE_PERSIST_CHAN_SIZE")
	setInt(&cfg.Pipeline.ProjectionChanSize, "RANGE_PROJECTION_CHAN_SIZE")
	setInt(&cfg.Pipeline.PublishChanSize, "RANGE_PUBLISH_CHAN_SIZE")
	setInt(&cfg.Pipeline.InboundChanSize, "RANGE_INBOUND_CHAN_SIZE")
	setInt(&cfg.Pipeline.PersistBatchSize, "RANGE_PERSIST_BATCH_SIZE")
	setDuration(&cfg.Pipeline.PersistFlushTimeout, "RANGE_PERSIST_FLUSH_TIMEOUT")

	setInt64(&cfg.Snapshot.Interval, "RANGE_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Snapshot.CheckEvery, "RANGE_SNAPSHOT_CHECK_EVERY")

	setFloat64(&cfg.Ingest.RatePerSecond, "RANGE_INGEST_RATE")
	setInt(&cfg.Ingest.Burst, "RANGE_INGEST_BURST")

	if v := os.Getenv("RANGE_TOKEN_DECIMALS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.Ledger.TokenDecimals = int32(n)
		}
	}
	setInt(&cfg.Ledger.IdempotencyWarmKeys, "RANGE_IDEMPOTENCY_WARM_KEYS")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
