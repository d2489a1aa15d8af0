/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GRIMNIR_DB_DSN", "file::memory:")
	t.Setenv("GRIMNIR_TIMEZONE", "UTC")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Errorf("backend = %q, want sqlite", cfg.DBBackend)
	}
	if cfg.DaysToBuild != 2 || cfg.History != 4*time.Hour || cfg.SchedulerInterval != time.Minute {
		t.Errorf("unexpected playout defaults: %+v", cfg)
	}
	if cfg.Location != time.UTC {
		t.Errorf("location = %v, want UTC", cfg.Location)
	}
	if cfg.LogBufferSize != 5000 || cfg.WebhookTimeout != 10*time.Second {
		t.Errorf("unexpected operations defaults: %+v", cfg)
	}
}

func TestLoadLegacyKeys(t *testing.T) {
	t.Setenv("PLAYOUT_DB_DSN", "legacy.db")
	t.Setenv("PLAYOUT_DAYS_TO_BUILD", "5")
	t.Setenv("GRIMNIR_TIMEZONE", "UTC")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN != "legacy.db" || cfg.DaysToBuild != 5 {
		t.Errorf("legacy keys not applied: dsn=%q days=%d", cfg.DBDSN, cfg.DaysToBuild)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing dsn", map[string]string{"GRIMNIR_DB_DSN": ""}},
		{"unknown backend", map[string]string{"GRIMNIR_DB_BACKEND": "oracle"}},
		{"zero days", map[string]string{"GRIMNIR_PLAYOUT_DAYS_TO_BUILD": "0"}},
		{"unknown timezone", map[string]string{"GRIMNIR_TIMEZONE": "Mars/Olympus_Mons"}},
		{"leader election without redis", map[string]string{"GRIMNIR_LEADER_ELECTION_ENABLED": "true"}},
		{"cache without redis", map[string]string{"GRIMNIR_CACHE_ENABLED": "yes"}},
		{"negative log buffer", map[string]string{"GRIMNIR_LOG_BUFFER_SIZE": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GRIMNIR_DB_DSN", "playout.db")
			t.Setenv("GRIMNIR_TIMEZONE", "UTC")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadFile(""); err == nil {
				t.Fatal("expected config load to fail")
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "GRIMNIR_DB_BACKEND=postgres\nGRIMNIR_DB_DSN=host=db user=playout\nGRIMNIR_TIMEZONE=UTC\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// godotenv never overrides a variable that is present, even when empty
	for _, k := range []string{"GRIMNIR_DB_BACKEND", "GRIMNIR_DB_DSN", "GRIMNIR_TIMEZONE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabasePostgres || cfg.DBDSN != "host=db user=playout" {
		t.Errorf("env file not applied: backend=%q dsn=%q", cfg.DBBackend, cfg.DBDSN)
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	t.Setenv("GRIMNIR_DB_DSN", "playout.db")
	t.Setenv("GRIMNIR_TIMEZONE", "UTC")
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("GRIMNIR_DB_DSN", "playout.db")
	t.Setenv("GRIMNIR_TIMEZONE", "UTC")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}
