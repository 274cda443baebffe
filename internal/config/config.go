package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env               string
	Host              string
	Port              int
	DatabaseURL       string
	RedisAddr         string
	KPICacheTTL       time.Duration
	AuthSecret        string
	TokenTTL          time.Duration
	ReceiptWebhookURL string
}

// Load reads configuration from the environment. A .env file is applied
// first when present; real environment variables win over it.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:               getEnv("APP_ENV", "development"),
		Host:              getEnv("HTTP_HOST", "0.0.0.0"),
		Port:              getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		KPICacheTTL:       getEnvDuration("KPI_CACHE_TTL", 30*time.Second),
		AuthSecret:        getEnv("AUTH_SECRET", ""),
		TokenTTL:          getEnvDuration("AUTH_TOKEN_TTL", 8*time.Hour),
		ReceiptWebhookURL: getEnv("RECEIPT_WEBHOOK_URL", ""),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) Production() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
