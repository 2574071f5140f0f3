package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the service.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Env         string `env:"ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./data/dobro.db"`
	RedisURL    string `env:"REDIS_URL"`

	// Hosted backend / auth service
	SupabaseURL            string `env:"SUPABASE_URL"`
	SupabasePublishableKey string `env:"SUPABASE_PUBLISHABLE_KEY"`
	JWTSecret              string `env:"SUPABASE_JWT_SECRET"`

	// LLM gateway (server-side only)
	GatewayKey string `env:"LOVABLE_API_KEY"`
	GatewayURL string `env:"AI_GATEWAY_URL" envDefault:"https://ai.gateway.lovable.dev/v1"`
	ChatModel  string `env:"AI_CHAT_MODEL" envDefault:"google/gemini-2.5-flash"`
	ImageModel string `env:"AI_IMAGE_MODEL" envDefault:"google/gemini-2.5-flash-image-preview"`

	// Hosts accepted for https:// image URLs (exact match or subdomain)
	ImageHostAllowlist []string `env:"IMAGE_HOST_ALLOWLIST" envSeparator:"," envDefault:"supabase.co,images.unsplash.com,lovable.app"`

	// Rate limiting
	RateLimitWhitelist []string `env:"RATE_LIMIT_WHITELIST" envSeparator:","` // IPs or CIDRs
	AutoBlockEnabled   bool     `env:"AUTO_BLOCK_ENABLED" envDefault:"false"`

	// Tenancy
	TenantBaseDomain string `env:"TENANT_BASE_DOMAIN"`
	DefaultTenant    string `env:"DEFAULT_TENANT" envDefault:"default"`

	// Expert hand-off
	TelegramBotToken     string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramExpertChatID int64  `env:"TELEGRAM_EXPERT_CHAT_ID"`
}

// Load reads configuration from environment variables.
// A .env file is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Env != "production" {
		return nil
	}
	var errs []error
	if c.GatewayKey == "" {
		errs = append(errs, errors.New("LOVABLE_API_KEY is required in production"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required in production"))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// TelegramEnabled reports whether escalations should be pushed to Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramExpertChatID != 0
}
