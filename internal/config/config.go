package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pliu/securemsg/internal/auth"
)

// Config holds all application configuration
type Config struct {
	Addr            string
	Database        DatabaseConfig
	JWT             JWTConfig
	CORSOrigins     []string
	Realtime        RealtimeConfig
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type JWTConfig struct {
	Key        string
	Issuer     string
	Audience   string
	Expiration time.Duration
}

type RealtimeConfig struct {
	MaxMessageSize int64
	RateBurst      int
	RateInterval   time.Duration
	// DeliverToConversation pushes new messages to the conversation group
	// instead of the recipient's connections.
	DeliverToConversation bool
}

// Load reads an optional .env file, then the environment, falling back to
// defaults for anything unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Addr: getEnv("ADDR", ":8080"),
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite3"),
			DSN:    getEnv("DB_DSN", "securemsg.db"),
		},
		JWT: JWTConfig{
			Key:        os.Getenv("JWT_KEY"),
			Issuer:     getEnv("JWT_ISSUER", "securemsg"),
			Audience:   getEnv("JWT_AUDIENCE", "securemsg-client"),
			Expiration: time.Duration(getEnvInt("JWT_EXPIRATION_MINUTES", 60)) * time.Minute,
		},
		CORSOrigins: parseList(getEnv("CORS_ORIGINS", "http://localhost:4200")),
		Realtime: RealtimeConfig{
			MaxMessageSize:        int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 64*1024)),
			RateBurst:             getEnvInt("WS_RATE_LIMIT_BURST", 20),
			RateInterval:          time.Duration(getEnvInt("WS_RATE_LIMIT_REFILL_SECONDS", 1)) * time.Second,
			DeliverToConversation: getEnv("WS_DELIVERY", "user") == "conversation",
		},
		ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	if len(cfg.JWT.Key) < auth.MinKeyLength {
		return nil, fmt.Errorf("JWT_KEY is required and must be at least %d bytes", auth.MinKeyLength)
	}
	switch cfg.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	return cfg, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses a positive integer, falling back to the default when the
// variable is unset or invalid.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		log.Printf("Ignoring invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
