package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Driver != StoreMemory || cfg.Server.Port != "8080" || cfg.Quiz.BankSource != BankEmbedded {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  port: \"9000\"\nstore:\n  driver: redis\nredis:\n  addr: localhost:6379\n  ttl: 1h\nquiz:\n  types: [a, b]\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("REDIS_ADDR", "cache:6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9000" || cfg.Store.Driver != StoreRedis {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Redis.Addr != "cache:6380" {
		t.Fatalf("expected env override, got %q", cfg.Redis.Addr)
	}
	if len(cfg.Quiz.Types) != 2 || cfg.Analytics.Timeout != "2s" {
		t.Fatalf("expected defaults kept under file values: %+v", cfg.Quiz)
	}
	if got := TTLDuration(cfg.Redis.TTL, 0); got != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", got)
	}
}

func TestLoadRejectsIncompleteDrivers(t *testing.T) {
	t.Setenv("QUIZ_STORE", "postgres")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected postgres store without url to fail")
	}
	t.Setenv("QUIZ_STORE", "cassandra")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
	if got := TTLDuration("bogus", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback on bad input, got %v", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
}
