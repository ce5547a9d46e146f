package config

import (
	"os"
	"time"
)

type Config struct {
	Port          string
	LogLevel      string
	GinMode       string
	BackendURL    string
	ConsentDBPath string
	RotationDelay time.Duration
	KafkaBroker   string
	KafkaTopic    string
}

func Load() *Config {
	return &Config{
		Port:          GetEnv("PORT", "8080"),
		LogLevel:      GetEnv("LOG_LEVEL", "info"),
		GinMode:       GetEnv("GIN_MODE", "debug"),
		BackendURL:    GetEnv("BACKEND_URL", "http://localhost:8000"),
		ConsentDBPath: GetEnv("CONSENT_DB_PATH", "consent.db"),
		RotationDelay: GetDuration("ROTATION_DELAY", 2*time.Second),
		KafkaBroker:   GetEnv("KAFKA_BROKER", "localhost:9092"),
		KafkaTopic:    GetEnv("KAFKA_TOPIC", "ad-feedback"),
	}
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetDuration parses a time.Duration from the environment, falling back
// to the default on absent or malformed values.
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
