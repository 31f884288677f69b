package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8080")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if !cfg.Admission.Enabled {
		t.Error("Admission.Enabled should default to true")
	}
	if cfg.Admission.CleanupInterval != "5m" {
		t.Errorf("CleanupInterval = %q, want %q", cfg.Admission.CleanupInterval, "5m")
	}
	if cfg.Admission.ViolationRetention != "1h" {
		t.Errorf("ViolationRetention = %q, want %q", cfg.Admission.ViolationRetention, "1h")
	}
	if cfg.Admission.SuspiciousThreshold != 5 {
		t.Errorf("SuspiciousThreshold = %d, want 5", cfg.Admission.SuspiciousThreshold)
	}
	if cfg.Audit.ChannelSize != 1000 || cfg.Audit.BatchSize != 100 {
		t.Errorf("audit defaults = (%d, %d), want (1000, 100)", cfg.Audit.ChannelSize, cfg.Audit.BatchSize)
	}
	if cfg.Store.Path != "snipvault.db" {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, "snipvault.db")
	}
	if cfg.Executor.Timeout != "30s" {
		t.Errorf("Executor.Timeout = %q, want %q", cfg.Executor.Timeout, "30s")
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{HTTPAddr: ":9090", LogLevel: "warn"},
		Admission: AdmissionConfig{
			CleanupInterval:     "1m",
			SuspiciousThreshold: 10,
		},
		Store: StoreConfig{Path: ":memory:"},
	}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, ":9090")
	}
	if cfg.Server.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "warn")
	}
	if cfg.Admission.CleanupInterval != "1m" {
		t.Errorf("CleanupInterval = %q, want %q", cfg.Admission.CleanupInterval, "1m")
	}
	if cfg.Admission.SuspiciousThreshold != 10 {
		t.Errorf("SuspiciousThreshold = %d, want 10", cfg.Admission.SuspiciousThreshold)
	}
	if cfg.Store.Path != ":memory:" {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, ":memory:")
	}
}

func TestConfig_SetDevDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q in dev mode", cfg.Server.LogLevel, "debug")
	}
	if len(cfg.Auth.Users) != 1 {
		t.Fatalf("dev users = %d, want 1", len(cfg.Auth.Users))
	}
	if cfg.Auth.Users[0].ID != "dev-user" {
		t.Errorf("dev user id = %q, want %q", cfg.Auth.Users[0].ID, "dev-user")
	}
	if cfg.Store.Path != ":memory:" {
		t.Errorf("Store.Path = %q, want %q in dev mode", cfg.Store.Path, ":memory:")
	}
}

func TestConfig_SetDevDefaults_NoopWhenDisabled(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDevDefaults()

	if len(cfg.Auth.Users) != 0 {
		t.Errorf("users = %d, want 0 when dev mode off", len(cfg.Auth.Users))
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	if got := Duration("90s", time.Minute); got != 90*time.Second {
		t.Errorf("Duration(90s) = %v, want 90s", got)
	}
	if got := Duration("", time.Minute); got != time.Minute {
		t.Errorf("Duration(empty) = %v, want fallback 1m", got)
	}
	if got := Duration("garbage", time.Minute); got != time.Minute {
		t.Errorf("Duration(garbage) = %v, want fallback 1m", got)
	}
}

func TestFindConfigFileInPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if found := findConfigFileInPaths([]string{dir}); found != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", found)
	}

	path := filepath.Join(dir, "snipvault.yaml")
	if err := os.WriteFile(path, []byte("dev_mode: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if found := findConfigFileInPaths([]string{dir}); found != path {
		t.Errorf("findConfigFileInPaths() = %q, want %q", found, path)
	}
}
