package config

import "os"

// Config holds the application configuration
type Config struct {
	// Environment
	Environment string
	Port        string

	// Database
	DatabaseURL string

	// Observability
	SentryDSN string // Sentry DSN for error tracking

	// Auth mode
	// - "none": No auth (self-hosted, local dev)
	// - "jwt": Validate bearer tokens signed with JWTSecret
	AuthMode  string
	JWTSecret string
}

func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/tactus?sslmode=disable"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
		AuthMode:    getEnv("AUTH_MODE", "none"), // Default to no auth for self-hosted
		JWTSecret:   getEnv("JWT_SECRET", ""),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

// RequiresAuth returns true if the API validates bearer tokens
func (c *Config) RequiresAuth() bool {
	return c.AuthMode == "jwt"
}
