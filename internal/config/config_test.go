package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigHasSaneValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Pool.BasePoolSize <= 0 || cfg.Pool.MaxPoolSize < cfg.Pool.BasePoolSize {
		t.Fatalf("pool sizing invalid: %+v", cfg.Pool)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("default cache backend = %q, want memory", cfg.Cache.Backend)
	}
}

func TestLoadFromFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sandbox.yaml")
	yamlContent := `
postgres:
  dsn: "postgres://custom/dsn"
pool:
  max_pool_size: 42
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Postgres.DSN != "postgres://custom/dsn" {
		t.Fatalf("DSN = %q, want override", cfg.Postgres.DSN)
	}
	if cfg.Pool.MaxPoolSize != 42 {
		t.Fatalf("MaxPoolSize = %d, want 42", cfg.Pool.MaxPoolSize)
	}
	// Unset fields keep their defaults.
	if cfg.Pool.BasePoolSize != DefaultConfig().Pool.BasePoolSize {
		t.Fatalf("BasePoolSize = %d, want default preserved", cfg.Pool.BasePoolSize)
	}
}

func TestLoadFromEnvOverridesFileAndDefaults(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("SANDBOX_PG_DSN", "postgres://env/dsn")
	t.Setenv("SANDBOX_POOL_MAX_SIZE", "7")
	t.Setenv("SANDBOX_FUNCTION_TIMEOUT", "15s")
	t.Setenv("SANDBOX_CACHE_BACKEND", "redis")

	LoadFromEnv(cfg)

	if cfg.Postgres.DSN != "postgres://env/dsn" {
		t.Fatalf("DSN = %q, want env override", cfg.Postgres.DSN)
	}
	if cfg.Pool.MaxPoolSize != 7 {
		t.Fatalf("MaxPoolSize = %d, want 7", cfg.Pool.MaxPoolSize)
	}
	if cfg.Engine.FunctionTimeout != 15*time.Second {
		t.Fatalf("FunctionTimeout = %v, want 15s", cfg.Engine.FunctionTimeout)
	}
	if cfg.Cache.Backend != "redis" {
		t.Fatalf("Cache.Backend = %q, want redis", cfg.Cache.Backend)
	}
}

func TestLoadFromFileMissingReturnsError(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
