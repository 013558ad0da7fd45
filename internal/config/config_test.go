package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigOptional_MissingFileAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err != nil {
		t.Fatalf("LoadConfigOptional returned error: %v", err)
	}
	if cfg.SessionDir != DefaultSessionDir {
		t.Fatalf("expected session dir %q, got %q", DefaultSessionDir, cfg.SessionDir)
	}
	if cfg.Auth.CallbackPort != DefaultCallbackPort {
		t.Fatalf("expected callback port %d, got %d", DefaultCallbackPort, cfg.Auth.CallbackPort)
	}
	if cfg.Storage.AccessLevel != "guest" {
		t.Fatalf("expected guest access level, got %q", cfg.Storage.AccessLevel)
	}
	if cfg.Locale != "pt" {
		t.Fatalf("expected pt locale, got %q", cfg.Locale)
	}
}

func TestLoadConfig_MissingFileIsError(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing required config")
	}
}

func TestLoadConfig_ParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
debug: true
session-dir: /tmp/lojinha
locale: EN
auth:
  client-id: abc
  token-url: https://auth.example.com/oauth2/token
  scopes: [openid]
api:
  endpoint: https://api.example.com/graphql
  page-size: 20
storage:
  endpoint: s3.example.com
  bucket: lojinha-images
  url-expiry: 5m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !cfg.Debug {
		t.Fatalf("expected debug to be enabled")
	}
	if cfg.Locale != "en" {
		t.Fatalf("expected locale to be normalized to en, got %q", cfg.Locale)
	}
	if !cfg.AuthConfigured() {
		t.Fatalf("expected auth to be configured")
	}
	if !cfg.StorageConfigured() {
		t.Fatalf("expected storage to be configured")
	}
	if cfg.API.PageSize != 20 {
		t.Fatalf("expected page size 20, got %d", cfg.API.PageSize)
	}
	if cfg.Storage.URLExpiry != 5*time.Minute {
		t.Fatalf("expected url expiry 5m, got %v", cfg.Storage.URLExpiry)
	}
	if len(cfg.Auth.Scopes) != 1 || cfg.Auth.Scopes[0] != "openid" {
		t.Fatalf("expected scopes to be kept, got %v", cfg.Auth.Scopes)
	}
}

func TestApplyDefaults_UnknownLocaleFallsBack(t *testing.T) {
	cfg := &Config{Locale: "zh"}
	cfg.ApplyDefaults()
	if cfg.Locale != DefaultLocale {
		t.Fatalf("expected fallback locale %q, got %q", DefaultLocale, cfg.Locale)
	}
}
