package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_WritesDefaultConfigWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if resolved != path {
		t.Errorf("expected resolved path %s, got %s", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "addr: \":9090\"\ntyping_ttl: 3s\ndatabase_path: from-file.db\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHATCORE_DATABASE_PATH", "from-env.db")
	t.Setenv("CHATCORE_REDIS_ADDR", "localhost:6379")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("expected addr from file, got %q", cfg.Addr)
	}
	if cfg.TypingTTL != 3*time.Second {
		t.Errorf("expected typing_ttl 3s, got %v", cfg.TypingTTL)
	}
	if cfg.DatabasePath != "from-env.db" {
		t.Errorf("expected env to override file, got %q", cfg.DatabasePath)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected redis addr from env, got %q", cfg.RedisAddr)
	}
	if cfg.JWTTTL != Default().JWTTTL {
		t.Errorf("expected default jwt_ttl, got %v", cfg.JWTTTL)
	}
}

func TestUpdateFrom_OnlyNonZero(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{LogLevel: "debug", RedisDB: 2})

	if cfg.LogLevel != "debug" || cfg.RedisDB != 2 {
		t.Errorf("expected overrides applied, got %+v", cfg)
	}
	if cfg.Addr != Default().Addr {
		t.Errorf("expected addr untouched, got %q", cfg.Addr)
	}
}
