// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	SessionTTL  time.Duration
	Catalog     CatalogConfig
	Assistant   AssistantConfig
	RateLimit   RateLimitConfig
	ChatLog     ChatLogConfig
}

// CatalogConfig selects where the product catalog is read from.
// URL takes precedence over Path. Watch reloads live sessions when the
// file at Path changes. Timeout bounds each fetch from URL.
type CatalogConfig struct {
	URL     string
	Path    string
	Watch   bool
	Timeout time.Duration
}

// AssistantConfig controls how chat requests reach the language model.
// ProxyURL takes precedence over a direct OpenAI-compatible API.
type AssistantConfig struct {
	ProxyURL  string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// RateLimitConfig bounds chat requests per anonymous user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ChatLogConfig controls NDJSON chat transcript logging.
type ChatLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CHAT_LOG_QUEUE_SIZE", 256)
	if queueSize <= 0 {
		queueSize = 256
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/picker.db"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 2*time.Hour),
		Catalog: CatalogConfig{
			URL:     getEnv("CATALOG_URL", ""),
			Path:    getEnv("CATALOG_PATH", "./products.json"),
			Watch:   getEnvBool("CATALOG_WATCH", true),
			Timeout: getEnvDuration("CATALOG_TIMEOUT", 15*time.Second),
		},
		Assistant: AssistantConfig{
			ProxyURL:  getEnv("PROXY_URL", ""),
			APIKey:    getEnv("OPENAI_API_KEY", ""),
			BaseURL:   getEnv("OPENAI_BASE_URL", ""),
			Model:     getEnv("OPENAI_MODEL", "gpt-4o"),
			MaxTokens: getEnvInt("MAX_TOKENS", 400),
			Timeout:   getEnvDuration("PROXY_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ChatLog: ChatLogConfig{
			Enabled:   getEnvBool("CHAT_LOG_ENABLED", false),
			Dir:       getEnv("CHAT_LOG_DIR", "./data/logs/chat"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Catalog.URL == "" && c.Catalog.Path == "" {
		return fmt.Errorf("one of CATALOG_URL or CATALOG_PATH must be set")
	}
	if c.Catalog.URL == "" {
		switch strings.ToLower(filepath.Ext(c.Catalog.Path)) {
		case ".json", ".xlsx":
		default:
			return fmt.Errorf("CATALOG_PATH must point to a .json or .xlsx file, got %q", c.Catalog.Path)
		}
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("CATALOG_TIMEOUT must be > 0")
	}
	if c.Assistant.Timeout <= 0 {
		return fmt.Errorf("PROXY_TIMEOUT must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ChatLog.Enabled && c.ChatLog.Dir == "" {
		return fmt.Errorf("CHAT_LOG_DIR cannot be empty when chat logging is enabled")
	}
	return nil
}

// AssistantEnabled reports whether any route to a language model is configured.
func (c *Config) AssistantEnabled() bool {
	return c.Assistant.ProxyURL != "" || c.Assistant.APIKey != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
