// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Store settings
	Currency   string // ISO code stamped on every payment, e.g. "USD"
	StoreName  string // appears in notification emails
	StoreURL   string // base URL for signed download links
	AdminEmail string // default recipient for admin/refund notices

	// Request validation
	RequireSSL       bool     // reject non-TLS calls with NO_SSL
	WhitelistEnforce bool     // false disables the source URL whitelist entirely
	Whitelist        []string // allowed source domains

	// Downloads
	DownloadSecret string        // HMAC key for signed download URLs
	DownloadTTL    time.Duration // signed URL lifetime

	// Notifications
	RefundNoticeEmail string // overrides AdminEmail for refund notices
	SMTPAddr          string // host:port; empty disables outbound mail
	SMTPUser          string
	SMTPPassword      string
	MailFrom          string

	// Audit log
	AuditLogEnabled bool

	// Tracing
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort        = "8080"
	DefaultEnv         = "development"
	DefaultLogLevel    = "info"
	DefaultCurrency    = "USD"
	DefaultDownloadTTL = 24 * time.Hour
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		Currency:          getEnv("CURRENCY", DefaultCurrency),
		StoreName:         getEnv("STORE_NAME", "Store"),
		StoreURL:          getEnv("STORE_URL", "http://localhost:8080"),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		RequireSSL:        getEnvBool("REQUIRE_SSL", true),
		WhitelistEnforce:  getEnvBool("WHITELIST_ENFORCE", true),
		Whitelist:         splitList(os.Getenv("SOURCE_WHITELIST")),
		DownloadSecret:    os.Getenv("DOWNLOAD_SECRET"),
		DownloadTTL:       getEnvDuration("DOWNLOAD_TTL", DefaultDownloadTTL),
		RefundNoticeEmail: os.Getenv("REFUND_NOTICE_EMAIL"),
		SMTPAddr:          os.Getenv("SMTP_ADDR"),
		SMTPUser:          os.Getenv("SMTP_USER"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		MailFrom:          getEnv("MAIL_FROM", "store@localhost"),
		AuditLogEnabled:   getEnvBool("AUDIT_LOG_ENABLED", true),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.DownloadSecret == "" {
		return fmt.Errorf("DOWNLOAD_SECRET is required")
	}
	if len(c.DownloadSecret) < 16 {
		return fmt.Errorf("DOWNLOAD_SECRET must be at least 16 characters")
	}
	if c.DownloadTTL <= 0 {
		return fmt.Errorf("DOWNLOAD_TTL must be positive")
	}
	return nil
}

// RefundRecipient returns the address refund notices go to.
// Falls back to the site admin address when no override is configured.
func (c *Config) RefundRecipient() string {
	if c.RefundNoticeEmail != "" {
		return c.RefundNoticeEmail
	}
	return c.AdminEmail
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
