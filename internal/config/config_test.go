package config

import (
	"os"
	"testing"
	"time"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "CATALOG_URL", "CATALOG_PATH", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "CHAT_LOG_ENABLED")
	t.Setenv("PROXY_TIMEOUT", "not-a-duration")
	t.Setenv("CATALOG_WATCH", "maybe")
	t.Setenv("CATALOG_TIMEOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Assistant.Timeout != 30*time.Second {
		t.Errorf("expected fallback timeout 30s, got %v", cfg.Assistant.Timeout)
	}
	if cfg.RateLimit.RequestsPerWindow != 10 {
		t.Errorf("expected 10 requests per window, got %d", cfg.RateLimit.RequestsPerWindow)
	}
	if !cfg.Catalog.Watch {
		t.Error("expected catalog watching on by default")
	}
	if cfg.Catalog.Timeout != 15*time.Second {
		t.Errorf("expected catalog timeout 15s independent of PROXY_TIMEOUT, got %v", cfg.Catalog.Timeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CATALOG_URL", "https://example.com/products.json")
	t.Setenv("PROXY_URL", "https://proxy.example.com/")
	t.Setenv("PROXY_TIMEOUT", "5s")
	t.Setenv("CATALOG_TIMEOUT", "3s")
	t.Setenv("CHAT_LOG_ENABLED", "yes")
	t.Setenv("CHAT_LOG_QUEUE_SIZE", "-3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.Assistant.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.Assistant.Timeout)
	}
	if cfg.Catalog.Timeout != 3*time.Second {
		t.Errorf("expected 3s catalog timeout, got %v", cfg.Catalog.Timeout)
	}
	if !cfg.ChatLog.Enabled {
		t.Error("expected chat log to be enabled")
	}
	if cfg.ChatLog.QueueSize != 256 {
		t.Errorf("expected queue size fallback 256, got %d", cfg.ChatLog.QueueSize)
	}
	if !cfg.AssistantEnabled() {
		t.Error("expected assistant to be enabled with a proxy URL")
	}
}

func TestValidateRejectsUnknownCatalogExtension(t *testing.T) {
	cfg := &Config{
		Port:      "8080",
		DBPath:    "db",
		Catalog:   CatalogConfig{Path: "products.csv", Timeout: time.Second},
		Assistant: AssistantConfig{Timeout: time.Second},
		RateLimit: RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for .csv catalog path")
	}

	cfg.Catalog.Path = "catalog.XLSX"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected xlsx catalog to validate, got %v", err)
	}
}

func TestIsDevelopment(t *testing.T) {
	cases := map[string]bool{
		"":                           true,
		"http://localhost:5173":      true,
		"http://127.0.0.1:8080":      true,
		"https://picker.example.com": false,
	}
	for url, want := range cases {
		cfg := &Config{FrontendURL: url}
		if got := cfg.IsDevelopment(); got != want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", url, got, want)
		}
	}
}
