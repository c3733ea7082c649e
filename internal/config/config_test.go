package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8000" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8000")
	}
	if cfg.FinanceProviderMode != "static" {
		t.Fatalf("FinanceProviderMode = %q, want %q", cfg.FinanceProviderMode, "static")
	}
	if cfg.AssistantBrain != "rules" {
		t.Fatalf("AssistantBrain = %q, want %q", cfg.AssistantBrain, "rules")
	}
	if cfg.ChatHistoryLimit != 0 {
		t.Fatalf("ChatHistoryLimit = %d, want unbounded (0)", cfg.ChatHistoryLimit)
	}
	if cfg.SessionInactivityTimeout != 30*time.Minute {
		t.Fatalf("SessionInactivityTimeout = %v, want 30m", cfg.SessionInactivityTimeout)
	}
	if cfg.GoogleOAuthEnabled() {
		t.Fatalf("GoogleOAuthEnabled() = true with no client id")
	}
}

func TestLoadHTTPProviderRequiresURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("FINANCE_PROVIDER_MODE", "http")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error without FINANCE_PROVIDER_URL")
	}

	t.Setenv("FINANCE_PROVIDER_URL", "https://example.test/UserProfile")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FinanceProviderURL != "https://example.test/UserProfile" {
		t.Fatalf("FinanceProviderURL = %q", cfg.FinanceProviderURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"APP_SESSION_INACTIVITY_TIMEOUT": "1s",
		"CHAT_HISTORY_LIMIT":             "-1",
		"APP_ALLOW_ANY_ORIGIN":           "maybe",
		"ASSISTANT_BRAIN":                "oracle",
		"APP_LOG_FORMAT":                 "xml",
		"FINANCE_PROVIDER_TIMEOUT":       "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() expected error for %s=%q", key, value)
			}
		})
	}
}

func TestLoadHistoryLimit(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("CHAT_HISTORY_LIMIT", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChatHistoryLimit != 20 {
		t.Fatalf("ChatHistoryLimit = %d, want 20", cfg.ChatHistoryLimit)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_LOG_LEVEL",
		"APP_LOG_FORMAT",
		"DATABASE_URL",
		"FINANCE_PROVIDER_MODE",
		"FINANCE_PROVIDER_URL",
		"FINANCE_PROVIDER_TIMEOUT",
		"ASSISTANT_BRAIN",
		"ASSISTANT_HTTP_URL",
		"ASSISTANT_API_KEY",
		"ASSISTANT_MODEL",
		"ASSISTANT_TIMEOUT",
		"CHAT_HISTORY_LIMIT",
		"GOOGLE_CLIENT_ID",
		"GOOGLE_CLIENT_SECRET",
		"GOOGLE_REDIRECT_URI",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
