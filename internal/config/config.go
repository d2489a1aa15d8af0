/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string

	// Playout building
	DaysToBuild       int
	History           time.Duration
	SchedulerInterval time.Duration
	Timezone          string
	Location          *time.Location
	SkipMissingItems  bool

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string
	NATSURL               string
	LockLease             time.Duration

	// Collection cache
	CacheEnabled       bool
	CollectionCacheTTL time.Duration

	// Operations
	LogBufferSize  int
	WebhookTimeout time.Duration

	LegacyEnvWarnings []string
}

// Load reads an optional .env file and the environment, applies defaults,
// and validates the result.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file. A missing file is ignored;
// variables already set in the environment win over the file.
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Environment: getEnvAny([]string{"GRIMNIR_ENV", "PLAYOUT_ENV"}, "development"),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"GRIMNIR_DB_BACKEND", "PLAYOUT_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:       getEnvAny([]string{"GRIMNIR_DB_DSN", "PLAYOUT_DB_DSN"}, ""),
		MetricsBind: getEnvAny([]string{"GRIMNIR_METRICS_BIND", "PLAYOUT_METRICS_BIND"}, "127.0.0.1:9000"),

		DaysToBuild:       getEnvIntAny([]string{"GRIMNIR_PLAYOUT_DAYS_TO_BUILD", "PLAYOUT_DAYS_TO_BUILD"}, 2),
		History:           time.Duration(getEnvIntAny([]string{"GRIMNIR_PLAYOUT_HISTORY_HOURS", "PLAYOUT_HISTORY_HOURS"}, 4)) * time.Hour,
		SchedulerInterval: time.Duration(getEnvIntAny([]string{"GRIMNIR_SCHEDULER_INTERVAL_SECONDS", "PLAYOUT_SCHEDULER_INTERVAL_SECONDS"}, 60)) * time.Second,
		Timezone:          getEnvAny([]string{"GRIMNIR_TIMEZONE", "PLAYOUT_TIMEZONE", "TZ"}, "Local"),
		SkipMissingItems:  getEnvBoolAny([]string{"GRIMNIR_SKIP_MISSING_ITEMS", "PLAYOUT_SKIP_MISSING_ITEMS"}, false),

		TracingEnabled:    getEnvBoolAny([]string{"GRIMNIR_TRACING_ENABLED", "PLAYOUT_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"GRIMNIR_OTLP_ENDPOINT", "PLAYOUT_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"GRIMNIR_TRACING_SAMPLE_RATE", "PLAYOUT_TRACING_SAMPLE_RATE"}, 1.0),

		LeaderElectionEnabled: getEnvBoolAny([]string{"GRIMNIR_LEADER_ELECTION_ENABLED", "PLAYOUT_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"GRIMNIR_REDIS_ADDR", "PLAYOUT_REDIS_ADDR"}, ""),
		RedisPassword:         getEnvAny([]string{"GRIMNIR_REDIS_PASSWORD", "PLAYOUT_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"GRIMNIR_REDIS_DB", "PLAYOUT_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"GRIMNIR_INSTANCE_ID", "PLAYOUT_INSTANCE_ID"}, ""),
		NATSURL:               getEnvAny([]string{"GRIMNIR_NATS_URL", "PLAYOUT_NATS_URL"}, ""),
		LockLease:             time.Duration(getEnvIntAny([]string{"GRIMNIR_LOCK_LEASE_SECONDS", "PLAYOUT_LOCK_LEASE_SECONDS"}, 300)) * time.Second,

		CacheEnabled:       getEnvBoolAny([]string{"GRIMNIR_CACHE_ENABLED", "PLAYOUT_CACHE_ENABLED"}, false),
		CollectionCacheTTL: time.Duration(getEnvIntAny([]string{"GRIMNIR_COLLECTION_CACHE_TTL_SECONDS", "PLAYOUT_COLLECTION_CACHE_TTL_SECONDS"}, 300)) * time.Second,

		LogBufferSize:  getEnvIntAny([]string{"GRIMNIR_LOG_BUFFER_SIZE", "PLAYOUT_LOG_BUFFER_SIZE"}, 5000),
		WebhookTimeout: time.Duration(getEnvIntAny([]string{"GRIMNIR_WEBHOOK_TIMEOUT_SECONDS", "PLAYOUT_WEBHOOK_TIMEOUT_SECONDS"}, 10)) * time.Second,
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("GRIMNIR_DB_DSN or PLAYOUT_DB_DSN must be provided")
	}

	if cfg.DaysToBuild < 1 {
		return nil, fmt.Errorf("days to build must be at least 1, got %d", cfg.DaysToBuild)
	}
	if cfg.History < 0 {
		return nil, fmt.Errorf("history must not be negative")
	}
	if cfg.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive")
	}
	if cfg.LogBufferSize < 0 {
		return nil, fmt.Errorf("log buffer size must not be negative")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.LeaderElectionEnabled && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("GRIMNIR_REDIS_ADDR is required when leader election is enabled")
	}
	if cfg.CacheEnabled && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("GRIMNIR_REDIS_ADDR is required when the collection cache is enabled")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":         "use GRIMNIR_ENV (or PLAYOUT_ENV)",
		"DATABASE_URL":        "use GRIMNIR_DB_DSN (or PLAYOUT_DB_DSN)",
		"REDIS_URL":           "use GRIMNIR_REDIS_ADDR",
		"NATS_URL":            "use GRIMNIR_NATS_URL",
		"TRACING_ENABLED":     "use GRIMNIR_TRACING_ENABLED (or PLAYOUT_TRACING_ENABLED)",
		"OTLP_ENDPOINT":       "use GRIMNIR_OTLP_ENDPOINT (or PLAYOUT_OTLP_ENDPOINT)",
		"TRACING_SAMPLE_RATE": "use GRIMNIR_TRACING_SAMPLE_RATE (or PLAYOUT_TRACING_SAMPLE_RATE)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
