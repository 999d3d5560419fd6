package siteadmin

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the site admin service.
type Config struct {
	DataDir              string
	BindAddress          string
	Port                 int
	AdminKey             string
	BaseURL              string // public base URL used for checkout redirects and emails
	StripeAPIKey         string
	StripeWebhookSecret  string
	StripeDefaultPriceID string
	PostmarkServerToken  string // optional; emails are logged when empty
	EmailFrom            string
	PublicMetrics        bool
	WebhookRateLimit     int // requests per minute per client IP
	LogLevel             string
	LogFormat            string
}

// RegistryDir returns the directory holding the site registry database.
func (c *Config) RegistryDir() string {
	return filepath.Join(c.DataDir, "siteadmin")
}

// LoadConfig loads configuration from environment variables.
// A .env file is loaded if present but not required.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	port, err := envOrDefaultInt("PAGEIT_PORT", 8080)
	if err != nil {
		return nil, err
	}
	rateLimit, err := envOrDefaultInt("PAGEIT_WEBHOOK_RATE_LIMIT", defaultRateLimit)
	if err != nil {
		return nil, err
	}
	publicMetrics, err := envOrDefaultBool("PAGEIT_PUBLIC_METRICS", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:              envOrDefault("PAGEIT_DATA_DIR", "/data"),
		BindAddress:          envOrDefault("PAGEIT_BIND_ADDRESS", "0.0.0.0"),
		Port:                 port,
		AdminKey:             strings.TrimSpace(os.Getenv("PAGEIT_ADMIN_KEY")),
		BaseURL:              strings.TrimRight(strings.TrimSpace(os.Getenv("APP_BASE_URL")), "/"),
		StripeAPIKey:         strings.TrimSpace(os.Getenv("STRIPE_API_KEY")),
		StripeWebhookSecret:  strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		StripeDefaultPriceID: strings.TrimSpace(os.Getenv("STRIPE_DEFAULT_PRICE_ID")),
		PostmarkServerToken:  strings.TrimSpace(os.Getenv("POSTMARK_SERVER_TOKEN")),
		EmailFrom:            envOrDefault("PAGEIT_EMAIL_FROM", "noreply@pageit.app"),
		PublicMetrics:        publicMetrics,
		WebhookRateLimit:     rateLimit,
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		LogFormat:            envOrDefault("LOG_FORMAT", "auto"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate site admin config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.AdminKey == "" {
		missing = append(missing, "PAGEIT_ADMIN_KEY")
	}
	if c.BaseURL == "" {
		missing = append(missing, "APP_BASE_URL")
	}
	if c.StripeAPIKey == "" {
		missing = append(missing, "STRIPE_API_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.StripeDefaultPriceID == "" {
		missing = append(missing, "STRIPE_DEFAULT_PRICE_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PAGEIT_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.WebhookRateLimit <= 0 {
		return fmt.Errorf("PAGEIT_WEBHOOK_RATE_LIMIT must be greater than 0, got %d", c.WebhookRateLimit)
	}

	parsedBaseURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("APP_BASE_URL must be a valid URL: %w", err)
	}
	if parsedBaseURL.Scheme != "http" && parsedBaseURL.Scheme != "https" {
		return fmt.Errorf("APP_BASE_URL must use http or https scheme")
	}
	if parsedBaseURL.Host == "" {
		return fmt.Errorf("APP_BASE_URL must include a host")
	}
	return nil
}

// Summary returns the non-secret settings for display.
func (c *Config) Summary() [][2]string {
	emailMode := "log-only"
	if c.PostmarkServerToken != "" {
		emailMode = "postmark"
	}
	return [][2]string{
		{"PAGEIT_DATA_DIR", c.DataDir},
		{"PAGEIT_BIND_ADDRESS", c.BindAddress},
		{"PAGEIT_PORT", strconv.Itoa(c.Port)},
		{"APP_BASE_URL", c.BaseURL},
		{"STRIPE_DEFAULT_PRICE_ID", c.StripeDefaultPriceID},
		{"PAGEIT_EMAIL_FROM", c.EmailFrom},
		{"email", emailMode},
		{"PAGEIT_PUBLIC_METRICS", strconv.FormatBool(c.PublicMetrics)},
		{"PAGEIT_WEBHOOK_RATE_LIMIT", strconv.Itoa(c.WebhookRateLimit)},
		{"LOG_LEVEL", c.LogLevel},
		{"LOG_FORMAT", c.LogFormat},
	}
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultBool(key string, fallback bool) (bool, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		return b, nil
	}
	return fallback, nil
}
