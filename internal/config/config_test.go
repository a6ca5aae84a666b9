package config

import (
	"context"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", "/nonexistent/.env")
	t.Setenv("AUTH_BASE_URL", "https://auth.sorrel.kitchen")
	t.Setenv("AUTH_API_KEY", "anon-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SessionRefreshInterval != 2*time.Minute {
		t.Fatalf("unexpected refresh interval: %v", cfg.SessionRefreshInterval)
	}
	if cfg.TokenMaxAge != 24*time.Hour {
		t.Fatalf("unexpected token max age: %v", cfg.TokenMaxAge)
	}
	if cfg.StoragePrefix != "backoffice_auth" {
		t.Fatalf("unexpected storage prefix: %q", cfg.StoragePrefix)
	}
	if !cfg.IsPublicRoute("/api/v1/auth/signin") || !cfg.IsPublicRoute("/health/live") {
		t.Fatal("expected auth and health routes to be public by default")
	}
	if cfg.IsPublicRoute("/api/v1/inventory") {
		t.Fatal("did not expect inventory route to be public")
	}
}

func TestLoadMissingProviderSettingsIsFatal(t *testing.T) {
	t.Setenv("ENV_FILE", "/nonexistent/.env")
	t.Setenv("AUTH_BASE_URL", "")
	t.Setenv("AUTH_API_KEY", "")

	if _, err := Load(context.Background()); err == nil {
		t.Fatal("expected error for missing AUTH_BASE_URL")
	} else if !strings.Contains(err.Error(), "AUTH_BASE_URL") {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Setenv("AUTH_BASE_URL", "https://auth.sorrel.kitchen")
	if _, err := Load(context.Background()); err == nil {
		t.Fatal("expected error for missing AUTH_API_KEY")
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	setRequiredEnv(t)

	t.Setenv("AUTH_BASE_URL", "not a url")
	if _, err := Load(context.Background()); err == nil {
		t.Fatal("expected error for malformed base URL")
	}
	t.Setenv("AUTH_BASE_URL", "https://auth.sorrel.kitchen")

	t.Setenv("SESSION_REFRESH_INTERVAL", "soon")
	if _, err := Load(context.Background()); err == nil {
		t.Fatal("expected parse error for refresh interval")
	}
	t.Setenv("SESSION_REFRESH_INTERVAL", "5s")
	if _, err := Load(context.Background()); err == nil {
		t.Fatal("expected validation error for too-short refresh interval")
	}
	t.Setenv("SESSION_REFRESH_INTERVAL", "")

	t.Setenv("GOOGLE_CLIENT_ID", "client-id-only")
	if _, err := Load(context.Background()); err == nil {
		t.Fatal("expected validation error for partial google credentials")
	}
}
