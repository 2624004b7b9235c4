// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

type Config struct {
	Port        string
	LLMProvider string
	APIKey      string
	BaseURL     string
	Model       string
	SeedDir     string
	LogLevel    string
	CORSOrigin  string
}

// Load reads the environment (after loading .env if present) and applies
// defaults. Missing credentials are not an error here: the provider factory
// falls back to the mock provider so the service stays usable offline.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:        getenv("PORT", "8080"),
		LLMProvider: getenv("LLM_PROVIDER", ProviderOpenAI),
		APIKey:      os.Getenv("LLM_API_KEY"),
		BaseURL:     os.Getenv("LLM_BASE_URL"),
		Model:       os.Getenv("LLM_MODEL"),
		SeedDir:     getenv("SEED_CSV_DIR", "./seed"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		CORSOrigin:  getenv("CORS_ORIGIN", "http://localhost:5173"),
	}

	// Legacy variable names kept for existing deployments.
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
