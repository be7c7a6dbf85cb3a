package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
store:
  backend: redis
redis:
  addr: localhost:6379
  db: 2
codes:
  ttl: 1m
`)
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Store.Backend != BackendRedis || cfg.Redis.DB != 2 {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Fatalf("expected env override, got %q", cfg.Redis.Addr)
	}
	if cfg.Redis.Prefix != "survey:" || cfg.Log.Level != "info" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if got := TTLDuration(cfg.Codes.TTL, time.Hour); got != time.Minute {
		t.Fatalf("expected 1m, got %v", got)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != BackendMemory || cfg.Server.Port != "8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadValidatesBackend(t *testing.T) {
	cases := map[string]string{
		"unknown":         "store:\n  backend: etcd\n",
		"redis no addr":   "store:\n  backend: redis\n",
		"postgres no url": "store:\n  backend: postgres\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %v", got)
	}
	if got := TTLDuration("soon", time.Second); got != time.Second {
		t.Fatalf("expected fallback for garbage, got %v", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SURVEY_DOTENV_PROBE=yes\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SURVEY_DOTENV_PROBE") })
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if os.Getenv("SURVEY_DOTENV_PROBE") != "yes" {
		t.Fatalf("variable not exported")
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "none.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}
