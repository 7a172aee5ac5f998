package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds server configuration loaded from environment variables
type Config struct {
	// HTTP server
	Port        string
	Environment string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Redis (pub/sub, presence, viewport cache)
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// S3 photo storage
	S3Bucket string
	S3Region string

	// Logging
	LogLevel string
	LogFile  string

	// Discovery
	MaxSearchRadiusKm float64
}

// Load reads configuration from the environment. JWT_SECRET is the only
// hard requirement - everything else has a development default.
func Load() (*Config, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set - this is REQUIRED for auth to work")
	}

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8787"),
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),

		JWTSecret: jwtSecret,
		TokenTTL:  getEnvDuration("TOKEN_TTL", 7*24*time.Hour),

		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		S3Bucket: getEnvOrDefault("S3_BUCKET", "tabledrop-photos"),
		S3Region: getEnvOrDefault("S3_REGION", "us-east-1"),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),

		MaxSearchRadiusKm: getEnvFloat("MAX_SEARCH_RADIUS_KM", 50),
	}

	return cfg, nil
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
