package siteadmin

import (
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PAGEIT_ADMIN_KEY", "admin-key")
	t.Setenv("APP_BASE_URL", "https://admin.pageit.test/")
	t.Setenv("STRIPE_API_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("STRIPE_DEFAULT_PRICE_ID", "price_123")
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DataDir != "/data" || cfg.BindAddress != "0.0.0.0" || cfg.Port != 8080 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.BaseURL != "https://admin.pageit.test" {
		t.Fatalf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.EmailFrom != "noreply@pageit.app" || cfg.WebhookRateLimit != 120 || cfg.PublicMetrics {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RegistryDir() != "/data/siteadmin" {
		t.Fatalf("RegistryDir = %q", cfg.RegistryDir())
	}
}

func TestLoadConfigListsAllMissingVariables(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"PAGEIT_ADMIN_KEY", "APP_BASE_URL", "STRIPE_API_KEY", "STRIPE_WEBHOOK_SECRET", "STRIPE_DEFAULT_PRICE_ID"} {
		t.Setenv(k, "")
	}

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, k := range []string{"PAGEIT_ADMIN_KEY", "APP_BASE_URL", "STRIPE_API_KEY", "STRIPE_WEBHOOK_SECRET", "STRIPE_DEFAULT_PRICE_ID"} {
		if !strings.Contains(err.Error(), k) {
			t.Errorf("error %q does not mention %s", err, k)
		}
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port not a number", "PAGEIT_PORT", "http"},
		{"port out of range", "PAGEIT_PORT", "70000"},
		{"bad scheme", "APP_BASE_URL", "ftp://admin.pageit.test"},
		{"no host", "APP_BASE_URL", "https://"},
		{"bad bool", "PAGEIT_PUBLIC_METRICS", "sometimes"},
		{"zero rate limit", "PAGEIT_WEBHOOK_RATE_LIMIT", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestConfigSummaryOmitsSecrets(t *testing.T) {
	cfg := &Config{
		AdminKey:            "admin-secret",
		StripeAPIKey:        "sk_live_secret",
		StripeWebhookSecret: "whsec_secret",
		PostmarkServerToken: "pm-secret",
	}
	for _, kv := range cfg.Summary() {
		for _, secret := range []string{"admin-secret", "sk_live_secret", "whsec_secret", "pm-secret"} {
			if kv[1] == secret {
				t.Fatalf("summary leaks %s", kv[0])
			}
		}
	}
}
