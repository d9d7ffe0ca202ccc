// Package config содержит логику чтения конфигурации сервиса учёта расходов.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`

	RevenueCatAPIKey      string `env:"REVENUECAT_API_KEY"`
	RevenueCatBaseURL     string `env:"REVENUECAT_BASE_URL" envDefault:"https://api.revenuecat.com/v1"`
	RevenueCatEntitlement string `env:"REVENUECAT_ENTITLEMENT" envDefault:"pro"`

	SupabaseJWTSecret string `env:"SUPABASE_JWT_SECRET"`
	SupabaseURL       string `env:"SUPABASE_URL"`

	AMQPURL   string `env:"AMQP_URL"`
	AMQPQueue string `env:"AMQP_QUEUE" envDefault:"budget_alerts"`

	EntitlementSyncInterval time.Duration `env:"ENTITLEMENT_SYNC_INTERVAL" envDefault:"1m"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"DEVELOPMENT"`
}

// TokenIssuer возвращает ожидаемый issuer токенов Supabase.
func (c *Config) TokenIssuer() string {
	if c.SupabaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.SupabaseURL, "/") + "/auth/v1"
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envOpenAIKey := cfg.OpenAIAPIKey

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.OpenAIAPIKey, "k", "", "OpenAI API key for receipt OCR")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envOpenAIKey != "" {
		cfg.OpenAIAPIKey = envOpenAIKey
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.EntitlementSyncInterval <= 0 {
		return nil, fmt.Errorf("entitlement sync interval must be positive, got %s", cfg.EntitlementSyncInterval)
	}

	return cfg, nil
}
