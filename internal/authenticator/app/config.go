package app

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/keyfob/internal/authenticator/service"
)

type Config struct {
	BackendURL string // Backend base URL (default: http://localhost:8080)
	Platform   string // Platform reported at device registration (default: runtime.GOOS)
	PushToken  string // Optional: push token forwarded at device registration
	MachineID  string // Optional: stable device id; a random one is generated and persisted otherwise

	DatabaseFile       string // Path to the SQLite vault file (default: ./keyfob.db)
	SessionTimeoutDays int    // Idle days before a persisted session is discarded; 0 disables (default: 7)

	RequesterInterval time.Duration // Challenge status poll cadence (default: 500ms)
	ResponderInterval time.Duration // Pending challenge poll cadence (default: 5s)
	LivenessInterval  time.Duration // Session re-validation cadence (default: 1m)
	RefreshInterval   time.Duration // Code recompute cadence (default: 1s)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	// Best effort: a missing .env file is fine.
	_ = godotenv.Load()

	return Config{
		BackendURL: getEnvOrDefault("KEYFOB_BACKEND_URL", "http://localhost:8080"),
		Platform:   getEnvOrDefault("KEYFOB_PLATFORM", runtime.GOOS),
		PushToken:  os.Getenv("KEYFOB_PUSH_TOKEN"),
		MachineID:  os.Getenv("KEYFOB_MACHINE_ID"),

		DatabaseFile:       getEnvOrDefault("KEYFOB_DATABASE_FILE", "keyfob.db"),
		SessionTimeoutDays: getEnvIntOrDefault("KEYFOB_SESSION_TIMEOUT_DAYS", 7),

		RequesterInterval: getEnvDurationOrDefault("KEYFOB_REQUESTER_INTERVAL", service.DefaultRequesterPollInterval),
		ResponderInterval: getEnvDurationOrDefault("KEYFOB_RESPONDER_INTERVAL", service.DefaultResponderPollInterval),
		LivenessInterval:  getEnvDurationOrDefault("KEYFOB_LIVENESS_INTERVAL", service.DefaultLivenessInterval),
		RefreshInterval:   getEnvDurationOrDefault("KEYFOB_REFRESH_INTERVAL", service.DefaultRefreshInterval),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// SessionTimeout converts the day-based setting to a duration; zero means
// the session never idles out.
func (c Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutDays) * 24 * time.Hour
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
