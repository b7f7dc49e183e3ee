package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LINGOSWAP_CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppPort != 8080 || cfg.Store != StorePostgres || cfg.RecommendLimit != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Auth.AccessTTL != 15*24*time.Hour {
		t.Fatalf("expected 15 day access ttl got %s", cfg.Auth.AccessTTL)
	}
	if !cfg.UsesDevSecret() {
		t.Fatal("expected development secret by default")
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lingoswap.yaml")
	contents := []byte(`
port: 9090
store: memory
session_store: redis
redis:
  addr: redis:6379
  db: 2
auth:
  jwt_secret: from-file
  access_ttl: 1h
stream:
  api_key: file-key
recommend_limit: 20
object_store:
  bucket: avatars
`)
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LINGOSWAP_CONFIG_FILE", path)
	t.Setenv("LINGOSWAP_PORT", "7070")
	t.Setenv("LINGOSWAP_STREAM_API_SECRET", "env-secret")
	t.Setenv("LINGOSWAP_COOKIE_SECURE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AppPort != 7070 {
		t.Fatalf("expected env port to win got %d", cfg.AppPort)
	}
	if cfg.Store != StoreMemory || cfg.SessionStore != StoreRedis {
		t.Fatalf("unexpected stores %q/%q", cfg.Store, cfg.SessionStore)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Auth.JWTSecret != "from-file" || cfg.Auth.AccessTTL != time.Hour || !cfg.Auth.CookieSecure {
		t.Fatalf("unexpected auth config %+v", cfg.Auth)
	}
	if cfg.Auth.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("expected default refresh ttl to survive got %s", cfg.Auth.RefreshTTL)
	}
	if cfg.Stream.APIKey != "file-key" || cfg.Stream.APISecret != "env-secret" {
		t.Fatalf("unexpected stream config %+v", cfg.Stream)
	}
	if cfg.RecommendLimit != 20 || cfg.ObjectStore.Bucket != "avatars" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"unknownStore":          {"LINGOSWAP_STORE": "mongo"},
		"unknownSessionStore":   {"LINGOSWAP_SESSION_STORE": "file"},
		"postgresSessionMemory": {"LINGOSWAP_STORE": "memory", "LINGOSWAP_SESSION_STORE": "postgres"},
		"badTrustedProxy":       {"LINGOSWAP_TRUSTED_PROXIES": "10.0.0.0/8,not-an-ip"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("LINGOSWAP_CONFIG_FILE", "")
			for key, value := range env {
				t.Setenv(key, value)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("LINGOSWAP_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestTrustedProxies(t *testing.T) {
	t.Setenv("LINGOSWAP_CONFIG_FILE", "")
	t.Setenv("LINGOSWAP_TRUSTED_PROXIES", " 10.1.2.3/8, 192.168.0.7 ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	prefixes, err := cfg.Auth.ProxyPrefixes()
	if err != nil {
		t.Fatalf("proxy prefixes: %v", err)
	}
	if len(prefixes) != 2 || prefixes[0].String() != "10.0.0.0/8" || prefixes[1].String() != "192.168.0.7/32" {
		t.Fatalf("unexpected prefixes %v", prefixes)
	}

	t.Setenv("LINGOSWAP_TRUSTED_PROXIES", "")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load without proxies: %v", err)
	}
	if prefixes, _ := cfg.Auth.ProxyPrefixes(); len(prefixes) != 0 {
		t.Fatalf("expected no trusted proxies by default, got %v", prefixes)
	}
}
