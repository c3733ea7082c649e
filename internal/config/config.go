package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the finance assistant service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	LogLevel  string
	LogFormat string

	DatabaseURL string

	FinanceProviderMode    string
	FinanceProviderURL     string
	FinanceProviderTimeout time.Duration

	AssistantBrain   string
	AssistantHTTPURL string
	AssistantAPIKey  string
	AssistantModel   string
	AssistantTimeout time.Duration

	// 0 keeps the full conversation.
	ChatHistoryLimit int

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
}

// Load reads an optional .env file, then environment variables, and applies safe defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf(".env parse error: %w", err)
	}

	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "financeai"),
		AllowAnyOrigin:      false,
		LogLevel:            envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:           envOrDefault("APP_LOG_FORMAT", "text"),
		DatabaseURL:         stringsTrimSpace("DATABASE_URL"),
		FinanceProviderMode: envOrDefault("FINANCE_PROVIDER_MODE", "static"),
		FinanceProviderURL:  stringsTrimSpace("FINANCE_PROVIDER_URL"),
		AssistantBrain:      envOrDefault("ASSISTANT_BRAIN", "rules"),
		AssistantHTTPURL:    stringsTrimSpace("ASSISTANT_HTTP_URL"),
		AssistantAPIKey:     stringsTrimSpace("ASSISTANT_API_KEY"),
		AssistantModel:      envOrDefault("ASSISTANT_MODEL", "openai/gpt-3.5-turbo"),
		GoogleClientID:      stringsTrimSpace("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:  stringsTrimSpace("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURI:   stringsTrimSpace("GOOGLE_REDIRECT_URI"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		FinanceProviderTimeout:   10 * time.Second,
		AssistantTimeout:         60 * time.Second,
		ChatHistoryLimit:         0,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.FinanceProviderTimeout, err = durationFromEnv("FINANCE_PROVIDER_TIMEOUT", cfg.FinanceProviderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AssistantTimeout, err = durationFromEnv("ASSISTANT_TIMEOUT", cfg.AssistantTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatHistoryLimit, err = intFromEnv("CHAT_HISTORY_LIMIT", cfg.ChatHistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Load calls it; the CLI calls it again after flag overrides.
func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.FinanceProviderTimeout <= 0 {
		return fmt.Errorf("FINANCE_PROVIDER_TIMEOUT must be positive")
	}
	if c.AssistantTimeout <= 0 {
		return fmt.Errorf("ASSISTANT_TIMEOUT must be positive")
	}
	if c.ChatHistoryLimit < 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be >= 0")
	}
	switch strings.ToLower(c.FinanceProviderMode) {
	case "static", "mock":
	case "http":
		if c.FinanceProviderURL == "" {
			return fmt.Errorf("FINANCE_PROVIDER_URL is required when FINANCE_PROVIDER_MODE=http")
		}
	default:
		return fmt.Errorf("invalid FINANCE_PROVIDER_MODE: %q (expected static|http)", c.FinanceProviderMode)
	}
	switch strings.ToLower(c.AssistantBrain) {
	case "rules":
	case "http":
		if c.AssistantHTTPURL == "" {
			return fmt.Errorf("ASSISTANT_HTTP_URL is required when ASSISTANT_BRAIN=http")
		}
	default:
		return fmt.Errorf("invalid ASSISTANT_BRAIN: %q (expected rules|http)", c.AssistantBrain)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid APP_LOG_FORMAT: %q (expected text|json)", c.LogFormat)
	}
	return nil
}

// GoogleOAuthEnabled reports whether the Google login redirect can be built.
func (c Config) GoogleOAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleRedirectURI != ""
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
